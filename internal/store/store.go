// Package store persists runs, leads, drafts, opt-outs, logs and provider
// usage.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// LeadFilter narrows a run's leads. Leads come back best score first.
type LeadFilter struct {
	MinScore float64 `json:"min_score,omitempty"`
	HasEmail bool    `json:"has_email,omitempty"`
	Limit    int     `json:"limit,omitempty"`
	Offset   int     `json:"offset,omitempty"`
}

// Store defines the persistence interface for lead-generation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, totalLeads int) error
	FailRun(ctx context.Context, runID string, msg string) error

	// Leads
	SaveLeads(ctx context.Context, runID string, leads []model.MergedLead) ([]model.Lead, error)
	ListLeads(ctx context.Context, runID string, filter LeadFilter) ([]model.Lead, error)

	// Drafts
	SaveEmailDrafts(ctx context.Context, drafts []model.EmailDraft) error
	ListEmailDrafts(ctx context.Context, runID string) ([]model.EmailDraft, error)
	GetEmailDraft(ctx context.Context, draftID string) (*model.EmailDraft, error)
	// UpdateEmailDraftStatus sets status and error; moving to sent also
	// stamps sent_at.
	UpdateEmailDraftStatus(ctx context.Context, draftID string, status model.EmailStatus, errMsg string) error

	// Opt-outs. Addresses are matched case-insensitively.
	AddOptOut(ctx context.Context, email string) error
	IsOptedOut(ctx context.Context, email string) (bool, error)

	// Logs
	AddLog(ctx context.Context, runID string, level model.LogLevel, msg string) error
	ListLogs(ctx context.Context, runID string) ([]model.LogEntry, error)

	// Provider usage
	AddUsage(ctx context.Context, provider string, day time.Time, credits int) error
	UsageSince(ctx context.Context, provider string, since time.Time) (int, error)
	UsageByProvider(ctx context.Context, since time.Time) (map[string]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// normalizeAddress is the stored form of an opted-out address.
func normalizeAddress(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// draftStatus defaults an unset status to drafted.
func draftStatus(s model.EmailStatus) model.EmailStatus {
	if s == "" {
		return model.EmailDrafted
	}
	return s
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// leadJSON holds the JSON-encoded columns of a lead row.
type leadJSON struct {
	sources    []byte
	provenance []byte
	additional []byte
	enrichment []byte
}

func encodeLead(l model.MergedLead) (leadJSON, error) {
	var out leadJSON
	var err error
	sources := l.Sources
	if sources == nil {
		sources = []string{}
	}
	if out.sources, err = json.Marshal(sources); err != nil {
		return out, eris.Wrap(err, "store: marshal sources")
	}
	if out.provenance, err = json.Marshal(l.FieldProvenance); err != nil {
		return out, eris.Wrap(err, "store: marshal provenance")
	}
	if out.additional, err = json.Marshal(l.Additional); err != nil {
		return out, eris.Wrap(err, "store: marshal additional data")
	}
	if out.enrichment, err = json.Marshal(l.Enrichment); err != nil {
		return out, eris.Wrap(err, "store: marshal enrichment")
	}
	return out, nil
}

func decodeLead(l *model.Lead, j leadJSON) error {
	if err := json.Unmarshal(j.sources, &l.Sources); err != nil {
		return eris.Wrap(err, "store: unmarshal sources")
	}
	if len(j.provenance) > 0 {
		if err := json.Unmarshal(j.provenance, &l.FieldProvenance); err != nil {
			return eris.Wrap(err, "store: unmarshal provenance")
		}
	}
	if len(j.additional) > 0 {
		if err := json.Unmarshal(j.additional, &l.Additional); err != nil {
			return eris.Wrap(err, "store: unmarshal additional data")
		}
	}
	if len(j.enrichment) > 0 {
		if err := json.Unmarshal(j.enrichment, &l.Enrichment); err != nil {
			return eris.Wrap(err, "store: unmarshal enrichment")
		}
	}
	return nil
}
