package export

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/notion"
)

// Notion database property names.
const (
	PropName       = "Name"
	PropLeadID     = "Lead ID"
	PropRunID      = "Run ID"
	PropAddress    = "Address"
	PropEmail      = "Email"
	PropPhone      = "Phone"
	PropWebsite    = "Website"
	PropSources    = "Sources"
	PropConfidence = "Confidence"
	PropSocial     = "Social"
)

// Notion rich text is capped at 2000 characters per block.
const notionTextLimit = 2000

// NotionExporter upserts leads as pages of one Notion database, keyed by
// the "Lead ID" property.
type NotionExporter struct {
	client notion.Client
	dbID   string
}

// NewNotionExporter creates a NotionExporter for database dbID.
func NewNotionExporter(client notion.Client, dbID string) *NotionExporter {
	return &NotionExporter{client: client, dbID: dbID}
}

// Export writes every lead. A lead that fails is counted and the export
// continues; only a cancelled context stops it.
func (e *NotionExporter) Export(ctx context.Context, leads []model.Lead) (*Summary, error) {
	sum := &Summary{}
	for _, l := range leads {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "notion export: cancelled")
		}

		existing, err := notion.FindByText(ctx, e.client, e.dbID, PropLeadID, l.ID)
		if err != nil {
			sum.fail(l, err)
			continue
		}

		props := leadProperties(l)
		if len(existing) > 0 {
			_, err = e.client.UpdatePage(ctx, string(existing[0].ID), &notionapi.PageUpdateRequest{Properties: props})
			if err != nil {
				sum.fail(l, eris.Wrap(err, "notion export: update page"))
				continue
			}
			sum.Updated++
			continue
		}

		_, err = e.client.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(e.dbID),
			},
			Properties: props,
		})
		if err != nil {
			sum.fail(l, eris.Wrap(err, "notion export: create page"))
			continue
		}
		sum.Created++
	}

	zap.L().Info("notion export: complete",
		zap.String("database", e.dbID),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func leadProperties(l model.Lead) notionapi.Properties {
	props := notionapi.Properties{
		PropName:       notion.Title(l.Name),
		PropLeadID:     notion.Text(l.ID),
		PropRunID:      notion.Text(l.RunID),
		PropAddress:    notion.Text(truncate(l.Address, notionTextLimit)),
		PropEmail:      notion.Text(contactEmail(l)),
		PropPhone:      notion.Text(contactPhone(l)),
		PropConfidence: notionapi.NumberProperty{Number: l.ConfidenceScore},
		PropSocial:     notion.Text(truncate(socialList(l.Enrichment.SocialLinks), notionTextLimit)),
	}
	if w := strings.TrimSpace(l.Website); w != "" {
		props[PropWebsite] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: w}
	}
	if len(l.Sources) > 0 {
		opts := make([]notionapi.Option, 0, len(l.Sources))
		for _, s := range l.Sources {
			opts = append(opts, notionapi.Option{Name: s})
		}
		props[PropSources] = notionapi.MultiSelectProperty{MultiSelect: opts}
	}
	return props
}
