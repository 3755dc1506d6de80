package model

import "time"

// RunStatus represents the current state of a lead-generation run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRequest is the input to a lead-generation run.
type RunRequest struct {
	Location       string         `json:"location"`
	Category       string         `json:"category"`
	Providers      []string       `json:"providers,omitempty"`
	Limits         map[string]int `json:"limits,omitempty"`
	SkipEnrichment bool           `json:"skip_enrichment,omitempty"`
	DraftEmails    bool           `json:"draft_emails,omitempty"`
	// RequireApproval holds drafts until approved one by one.
	RequireApproval bool `json:"require_approval,omitempty"`
	// DryRun drafts without ever sending.
	DryRun bool `json:"dry_run,omitempty"`
}

// Run is a single collection run for one location and category.
type Run struct {
	ID          string     `json:"id"`
	Request     RunRequest `json:"request"`
	Status      RunStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	TotalLeads  int        `json:"total_leads"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID           string         `json:"run_id"`
	RawLeads        int            `json:"raw_leads"`
	MergedLeads     int            `json:"merged_leads"`
	Enriched        int            `json:"enriched"`
	Drafts          int            `json:"drafts"`
	Sent            int            `json:"sent"`
	SendFailed      int            `json:"send_failed,omitempty"`
	Usage           map[string]int `json:"usage"`
	FailedProviders []string       `json:"failed_providers,omitempty"`
	SkippedQuota    []string       `json:"skipped_quota,omitempty"`
	Duration        time.Duration  `json:"duration"`
}

// Lead is a persisted, scored MergedLead.
type Lead struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	MergedLead
}

// EmailStatus tracks a draft from generation to delivery.
type EmailStatus string

const (
	EmailDrafted         EmailStatus = "drafted"
	EmailPendingApproval EmailStatus = "pending_approval"
	EmailApproved        EmailStatus = "approved"
	EmailSent            EmailStatus = "sent"
	EmailFailed          EmailStatus = "failed"
	EmailSuppressed      EmailStatus = "suppressed"
)

// EmailDraft is an outreach email prepared for a lead.
type EmailDraft struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	LeadID    string      `json:"lead_id"`
	ToAddress string      `json:"to_address"`
	Subject   string      `json:"subject"`
	Body      string      `json:"body"`
	Language  string      `json:"language"`
	Generator string      `json:"generator"`
	Status    EmailStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	SentAt    *time.Time  `json:"sent_at,omitempty"`
}

// InitialStatus is the status a fresh draft gets under req: held for
// approval, parked by a dry run, or queued for sending.
func InitialStatus(req RunRequest) EmailStatus {
	switch {
	case req.RequireApproval:
		return EmailPendingApproval
	case req.DryRun:
		return EmailDrafted
	default:
		return EmailApproved
	}
}

// LogLevel tags a persisted run log line.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry is one persisted line of a run's log.
type LogEntry struct {
	ID        int64     `json:"id,omitempty"`
	RunID     string    `json:"run_id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage is credits consumed by one provider on one day.
type Usage struct {
	Provider string    `json:"provider"`
	Day      time.Time `json:"day"`
	Credits  int       `json:"credits"`
}
