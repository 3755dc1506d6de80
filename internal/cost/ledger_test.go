package cost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/config"
)

type usageKey struct {
	provider string
	day      time.Time
}

type memUsage struct {
	rows map[usageKey]int
	err  error
}

func newMemUsage() *memUsage { return &memUsage{rows: make(map[usageKey]int)} }

func (m *memUsage) AddUsage(_ context.Context, provider string, day time.Time, credits int) error {
	if m.err != nil {
		return m.err
	}
	d := PeriodStart(PeriodDaily, day)
	m.rows[usageKey{provider, d}] += credits
	return nil
}

func (m *memUsage) UsageSince(_ context.Context, provider string, since time.Time) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	total := 0
	for k, v := range m.rows {
		if k.provider == provider && !k.day.Before(since) {
			total += v
		}
	}
	return total, nil
}

var testProviders = map[string]config.ProviderConfig{
	"openstreetmap": {QuotaPeriod: PeriodDaily},
	"google_places": {QuotaLimit: 10, QuotaPeriod: PeriodMonthly},
	"tomtom":        {QuotaLimit: 5, QuotaPeriod: PeriodDaily},
}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 3, 17, 14, 5, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), PeriodStart(PeriodDaily, now))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), PeriodStart(PeriodMonthly, now))
	assert.Equal(t, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), PeriodStart("weekly", now))
}

func TestGate(t *testing.T) {
	now := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)
	st := newMemUsage()
	ctx := context.Background()

	// Earlier this month, counts toward the monthly google quota.
	require.NoError(t, st.AddUsage(ctx, "google_places", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 10))
	// Yesterday, outside the daily tomtom window.
	require.NoError(t, st.AddUsage(ctx, "tomtom", now.Add(-24*time.Hour), 5))
	require.NoError(t, st.AddUsage(ctx, "openstreetmap", now, 1000))

	l := NewLedger(st, testProviders, fixedClock(now))
	allowed, exhausted, err := l.Gate(ctx, []string{"openstreetmap", "google_places", "tomtom"})
	require.NoError(t, err)
	assert.Equal(t, []string{"openstreetmap", "tomtom"}, allowed)
	assert.Equal(t, []string{"google_places"}, exhausted)
}

func TestGate_DailyExhausted(t *testing.T) {
	now := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)
	st := newMemUsage()
	l := NewLedger(st, testProviders, fixedClock(now))

	require.NoError(t, l.Record(context.Background(), map[string]int{"tomtom": 3}))
	_, exhausted, err := l.Gate(context.Background(), []string{"tomtom"})
	require.NoError(t, err)
	assert.Empty(t, exhausted)

	require.NoError(t, l.Record(context.Background(), map[string]int{"tomtom": 2}))
	allowed, exhausted, err := l.Gate(context.Background(), []string{"tomtom"})
	require.NoError(t, err)
	assert.Empty(t, allowed)
	assert.Equal(t, []string{"tomtom"}, exhausted)
}

func TestGate_StoreError(t *testing.T) {
	st := newMemUsage()
	st.err = errors.New("db down")
	_, _, err := NewLedger(st, testProviders).Gate(context.Background(), []string{"tomtom"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cost: usage for tomtom")
}

func TestRecord_SkipsZero(t *testing.T) {
	now := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)
	st := newMemUsage()
	l := NewLedger(st, testProviders, fixedClock(now))

	require.NoError(t, l.Record(context.Background(), map[string]int{"openstreetmap": 0, "google_places": 2}))
	assert.Len(t, st.rows, 1)
	assert.Equal(t, 2, st.rows[usageKey{"google_places", PeriodStart(PeriodDaily, now)}])
}

func TestStatus_Remaining(t *testing.T) {
	now := time.Date(2026, 3, 17, 12, 0, 0, 0, time.UTC)
	st := newMemUsage()
	l := NewLedger(st, testProviders, fixedClock(now))
	require.NoError(t, l.Record(context.Background(), map[string]int{"google_places": 4}))

	report, err := l.Report(context.Background())
	require.NoError(t, err)
	require.Len(t, report, 3)
	assert.Equal(t, "google_places", report[0].Provider)
	assert.Equal(t, 6, report[0].Remaining())
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), report[0].Since)
	assert.Equal(t, -1, report[1].Remaining())
	assert.Equal(t, 5, report[2].Remaining())
}
