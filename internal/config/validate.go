package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings required by a command mode: "run",
// "serve", "emails", "export-salesforce" or "export-notion".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch mode {
	case "run", "serve":
		if c.Collect.DefaultLimit <= 0 {
			errs = append(errs, "collect.default_limit must be > 0")
		}
		if c.Enrich.BatchSize <= 0 {
			errs = append(errs, "enrich.batch_size must be > 0")
		}
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		if c.Outreach.Enabled && c.Outreach.SenderName == "" {
			errs = append(errs, "outreach.sender_name is required when outreach is enabled")
		}
		errs = append(errs, c.Scoring.problems()...)
		errs = append(errs, c.Outreach.problems()...)
	case "emails":
		errs = append(errs, c.Outreach.problems()...)
	case "export-salesforce":
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	case "export-notion":
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.LeadDB == "" {
			errs = append(errs, "notion.lead_db is required")
		}
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks that the weights keep scores in [0,1] monotonic in the
// evidence a lead carries.
func (s ScoringConfig) Validate() error {
	if errs := s.problems(); len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (s ScoringConfig) problems() []string {
	var errs []string
	weights := []struct {
		name string
		w    float64
	}{
		{"website", s.Website},
		{"business_email", s.BusinessEmail},
		{"any_email", s.AnyEmail},
		{"phone", s.Phone},
		{"social", s.Social},
		{"multi_source", s.MultiSource},
	}
	for _, w := range weights {
		if w.w < 0 {
			errs = append(errs, fmt.Sprintf("scoring.%s must be >= 0", w.name))
		}
	}
	// A business email must never score below a personal one.
	if s.BusinessEmail < s.AnyEmail {
		errs = append(errs, "scoring.business_email must be >= scoring.any_email")
	}
	return errs
}

// problems checks the delivery settings once SMTP sending is configured.
func (o OutreachConfig) problems() []string {
	if o.SMTPHost == "" {
		return nil
	}
	var errs []string
	if o.SenderEmail == "" {
		errs = append(errs, "outreach.sender_email is required when outreach.smtp_host is set")
	}
	if o.SMTPPort <= 0 || o.SMTPPort > 65535 {
		errs = append(errs, "outreach.smtp_port must be between 1 and 65535")
	}
	if o.MaxPerMinute <= 0 {
		errs = append(errs, "outreach.max_per_minute must be > 0")
	}
	return errs
}

// ReadyProviders returns the IDs of providers that are enabled and have
// their credentials.
func (c *Config) ReadyProviders() []string {
	var ids []string
	for id, p := range c.Providers {
		if p.Ready() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
