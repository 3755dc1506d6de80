package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// Lead is the subset of the Lead sObject read back for dedup.
type Lead struct {
	ID    string `json:"Id" salesforce:"Id"`
	Email string `json:"Email" salesforce:"Email"`
}

// FindLeadsByEmail returns existing Lead IDs keyed by lowercased email.
func FindLeadsByEmail(ctx context.Context, c Client, emails []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(emails) == 0 {
		return out, nil
	}

	for start := 0; start < len(emails); start += maxBatchSize {
		end := min(start+maxBatchSize, len(emails))
		quoted := make([]string, 0, end-start)
		for _, e := range emails[start:end] {
			quoted = append(quoted, "'"+escapeSoql(e)+"'")
		}
		soql := fmt.Sprintf("SELECT Id, Email FROM Lead WHERE Email IN (%s)", strings.Join(quoted, ", "))

		var leads []Lead
		if err := c.Query(ctx, soql, &leads); err != nil {
			return nil, eris.Wrap(err, "sf: find leads by email")
		}
		for _, l := range leads {
			out[strings.ToLower(l.Email)] = l.ID
		}
	}
	return out, nil
}

// CreateLeads inserts Lead records in batches of 200. Results from
// batches that succeeded are returned alongside an error.
func CreateLeads(ctx context.Context, c Client, records []map[string]any) ([]CollectionResult, error) {
	var all []CollectionResult
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		for _, r := range records[start:end] {
			if r["Company"] == nil || r["Company"] == "" {
				return all, eris.New("sf: lead Company is required")
			}
		}
		results, err := c.InsertCollection(ctx, "Lead", records[start:end])
		if err != nil {
			return all, eris.Wrapf(err, "sf: create leads batch %d-%d", start, end)
		}
		all = append(all, results...)
	}
	return all, nil
}

// escapeSoql escapes single quotes in SOQL string literals.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
