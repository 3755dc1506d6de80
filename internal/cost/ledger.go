// Package cost tracks provider credit usage against configured quotas.
package cost

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
)

// Quota periods.
const (
	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"
)

// UsageStore is the slice of the store the ledger needs.
type UsageStore interface {
	AddUsage(ctx context.Context, provider string, day time.Time, credits int) error
	UsageSince(ctx context.Context, provider string, since time.Time) (int, error)
}

// Ledger records per-provider credits and answers quota questions.
type Ledger struct {
	store     UsageStore
	providers map[string]config.ProviderConfig
	now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a Ledger over the given provider table.
func NewLedger(st UsageStore, providers map[string]config.ProviderConfig, opts ...Option) *Ledger {
	l := &Ledger{store: st, providers: providers, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// PeriodStart returns the UTC start of the quota period containing now.
// Unknown periods are treated as daily.
func PeriodStart(period string, now time.Time) time.Time {
	now = now.UTC()
	if period == PeriodMonthly {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Status is a provider's usage in its current period.
type Status struct {
	Provider  string    `json:"provider"`
	Period    string    `json:"period"`
	Since     time.Time `json:"since"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Exhausted bool      `json:"exhausted"`
}

// Remaining returns credits left, or -1 for providers without a quota.
func (s Status) Remaining() int {
	if s.Limit <= 0 {
		return -1
	}
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// Status loads the current-period usage of one provider.
func (l *Ledger) Status(ctx context.Context, id string) (Status, error) {
	pc := l.providers[id]
	period := pc.QuotaPeriod
	if period == "" {
		period = PeriodDaily
	}
	since := PeriodStart(period, l.now())
	used, err := l.store.UsageSince(ctx, id, since)
	if err != nil {
		return Status{}, eris.Wrapf(err, "cost: usage for %s", id)
	}
	return Status{
		Provider:  id,
		Period:    period,
		Since:     since,
		Used:      used,
		Limit:     pc.QuotaLimit,
		Exhausted: pc.QuotaLimit > 0 && used >= pc.QuotaLimit,
	}, nil
}

// Gate splits ids into providers with quota left and providers whose
// period usage has reached quota_limit. Order is preserved.
func (l *Ledger) Gate(ctx context.Context, ids []string) (allowed, exhausted []string, err error) {
	for _, id := range ids {
		st, err := l.Status(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if st.Exhausted {
			zap.L().Warn("cost: provider quota exhausted",
				zap.String("provider", id),
				zap.String("period", st.Period),
				zap.Int("used", st.Used),
				zap.Int("limit", st.Limit),
			)
			exhausted = append(exhausted, id)
			continue
		}
		allowed = append(allowed, id)
	}
	return allowed, exhausted, nil
}

// Record books a run's per-provider credits on today's row. Zero
// entries are skipped.
func (l *Ledger) Record(ctx context.Context, usage map[string]int) error {
	ids := make([]string, 0, len(usage))
	for id := range usage {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	today := l.now()
	for _, id := range ids {
		if usage[id] <= 0 {
			continue
		}
		if err := l.store.AddUsage(ctx, id, today, usage[id]); err != nil {
			return eris.Wrapf(err, "cost: record usage for %s", id)
		}
	}
	return nil
}

// Report returns the status of every configured provider, sorted by ID.
func (l *Ledger) Report(ctx context.Context) ([]Status, error) {
	ids := make([]string, 0, len(l.providers))
	for id := range l.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		st, err := l.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
