// Package monitoring summarizes recent runs and provider quota, and
// raises alerts when either looks unhealthy.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// Snapshot is a point-in-time view of run health and provider usage.
type Snapshot struct {
	// Runs created within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsFailed    int     `json:"runs_failed"`
	RunsRunning   int     `json:"runs_running"`
	RunsPending   int     `json:"runs_pending"`
	FailRate      float64 `json:"fail_rate"`
	LeadsTotal    int     `json:"leads_total"`
	AvgLeads      float64 `json:"avg_leads_per_run"`

	// Credits consumed per provider within the window.
	Credits map[string]int `json:"credits"`
	// Quota standing per configured provider in its own period.
	Quotas []cost.Status `json:"quotas,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunSource is the store surface the collector reads.
type RunSource interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	UsageByProvider(ctx context.Context, since time.Time) (map[string]int, error)
}

// QuotaReporter reports per-provider quota standing.
type QuotaReporter interface {
	Report(ctx context.Context) ([]cost.Status, error)
}

// Collector gathers snapshots.
type Collector struct {
	runs   RunSource
	quotas QuotaReporter
	now    func() time.Time
}

// NewCollector creates a Collector. quotas may be nil.
func NewCollector(runs RunSource, quotas QuotaReporter) *Collector {
	return &Collector{runs: runs, quotas: quotas, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{CreatedAfter: cutoff, Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RunsCompleted++
			snap.LeadsTotal += r.TotalLeads
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		case model.RunStatusPending:
			snap.RunsPending++
		}
	}
	if finished := snap.RunsCompleted + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.RunsCompleted > 0 {
		snap.AvgLeads = float64(snap.LeadsTotal) / float64(snap.RunsCompleted)
	}

	snap.Credits, err = c.runs.UsageByProvider(ctx, store.Day(cutoff))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: usage by provider")
	}

	if c.quotas != nil {
		snap.Quotas, err = c.quotas.Report(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: quota report")
		}
	}
	return snap, nil
}
