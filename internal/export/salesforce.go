package export

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/salesforce"
)

// DefaultLeadSource is the Salesforce LeadSource picklist value.
const DefaultLeadSource = "Lead Generator"

// Lead.LastName is required by Salesforce; businesses have no contact name.
const unknownLastName = "Unknown"

// SalesforceExporter creates one Lead sObject per lead. Leads whose email
// already exists as a Salesforce Lead are skipped.
type SalesforceExporter struct {
	client     salesforce.Client
	leadSource string
}

// NewSalesforceExporter creates a SalesforceExporter.
func NewSalesforceExporter(client salesforce.Client, leadSource string) *SalesforceExporter {
	if leadSource == "" {
		leadSource = DefaultLeadSource
	}
	return &SalesforceExporter{client: client, leadSource: leadSource}
}

// Export creates Leads in batches. Per-record failures are counted in the
// summary; a failed batch call is returned as an error.
func (e *SalesforceExporter) Export(ctx context.Context, leads []model.Lead) (*Summary, error) {
	sum := &Summary{}

	var emails []string
	for _, l := range leads {
		if em := contactEmail(l); em != "" {
			emails = append(emails, em)
		}
	}
	existing, err := salesforce.FindLeadsByEmail(ctx, e.client, emails)
	if err != nil {
		return sum, eris.Wrap(err, "salesforce export: lookup existing")
	}

	var (
		records []map[string]any
		pending []model.Lead
	)
	for _, l := range leads {
		if em := contactEmail(l); em != "" {
			if _, ok := existing[strings.ToLower(em)]; ok {
				sum.Skipped++
				continue
			}
		}
		records = append(records, LeadRecord(l, e.leadSource))
		pending = append(pending, l)
	}

	results, err := salesforce.CreateLeads(ctx, e.client, records)
	for i, r := range results {
		if r.Success {
			sum.Created++
			continue
		}
		sum.fail(pending[i], eris.New(strings.Join(r.Errors, "; ")))
	}

	zap.L().Info("salesforce export: complete",
		zap.Int("created", sum.Created),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	if err != nil {
		return sum, eris.Wrap(err, "salesforce export: create leads")
	}
	return sum, nil
}

// LeadRecord maps a lead to Salesforce Lead fields.
func LeadRecord(l model.Lead, leadSource string) map[string]any {
	rec := map[string]any{
		"Company":     truncate(l.Name, 255),
		"LastName":    unknownLastName,
		"LeadSource":  leadSource,
		"Description": truncate(describe(l), 32000),
	}
	if v := contactEmail(l); v != "" {
		rec["Email"] = v
	}
	if v := contactPhone(l); v != "" {
		rec["Phone"] = truncate(v, 40)
	}
	if v := l.Website; v != "" {
		rec["Website"] = truncate(v, 255)
	}
	if v := l.Address; v != "" {
		rec["Street"] = truncate(v, 255)
	}
	if l.Latitude != nil && l.Longitude != nil {
		rec["Latitude"] = *l.Latitude
		rec["Longitude"] = *l.Longitude
	}
	return rec
}

func describe(l model.Lead) string {
	var b strings.Builder
	b.WriteString("Sources: " + l.SourceList())
	if s := socialList(l.Enrichment.SocialLinks); s != "" {
		b.WriteString("\n" + s)
	}
	return b.String()
}
