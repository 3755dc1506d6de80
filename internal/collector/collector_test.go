package collector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/metrics"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
)

type fakeProvider struct {
	id        string
	leads     []model.RawLead
	err       error
	panicMsg  string
	delay     time.Duration
	available bool
	gotLimit  atomic.Int64
	calls     atomic.Int64
}

func (f *fakeProvider) ID() string { return f.id }
func (f *fakeProvider) Name() string { return "Fake " + f.id }

func (f *fakeProvider) Search(ctx context.Context, _, _ string, limit int) ([]model.RawLead, error) {
	f.calls.Add(1)
	f.gotLimit.Store(int64(limit))
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.leads, f.err
}

func (f *fakeProvider) CalculateCredits(_, count int) int { return count }
func (f *fakeProvider) RateLimit() provider.RateLimit { return provider.RateLimit{} }
func (f *fakeProvider) Available() bool { return f.available }

func leads(names ...string) []model.RawLead {
	out := make([]model.RawLead, len(names))
	for i, n := range names {
		out[i] = model.RawLead{Name: n}
	}
	return out
}

func TestCollect_FailingProviderIsIsolated(t *testing.T) {
	bad := &fakeProvider{id: "bad", available: true, panicMsg: "boom"}
	good := &fakeProvider{id: "good", available: true, leads: leads("Bakery Sun", "Cafe Central")}

	c := New([]provider.Provider{bad, good})
	res, err := c.Collect(context.Background(), Request{Location: "Berlin", Category: "bakery"})
	require.NoError(t, err)

	require.Len(t, res.Leads, 2)
	assert.Equal(t, "Bakery Sun", res.Leads[0].Name)
	assert.Equal(t, "Fake good", res.Leads[0].Source)
	assert.Equal(t, map[string]int{"good": 2}, res.Usage)
	assert.Equal(t, []string{"bad"}, res.Failed)
}

func TestCollect_ErrorProviderIsIsolated(t *testing.T) {
	bad := &fakeProvider{id: "bad", available: true, err: errors.New("503")}
	good := &fakeProvider{id: "good", available: true, leads: leads("A")}

	res, err := New([]provider.Provider{bad, good}).Collect(context.Background(), Request{})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 1)
	assert.NotContains(t, res.Usage, "bad")
	assert.Equal(t, []string{"bad"}, res.Failed)
}

func TestCollect_RegistrationOrder(t *testing.T) {
	slow := &fakeProvider{id: "slow", available: true, delay: 50 * time.Millisecond, leads: leads("S1", "S2")}
	fast := &fakeProvider{id: "fast", available: true, leads: leads("F1")}

	res, err := New([]provider.Provider{slow, fast}).Collect(context.Background(), Request{})
	require.NoError(t, err)

	var names []string
	for _, l := range res.Leads {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"S1", "S2", "F1"}, names)
}

func TestCollect_NoProviders(t *testing.T) {
	off := &fakeProvider{id: "off", available: false, leads: leads("X")}

	res, err := New([]provider.Provider{off}).Collect(context.Background(), Request{})
	require.NoError(t, err)
	assert.Empty(t, res.Leads)
	assert.Empty(t, res.Usage)
	assert.Zero(t, off.calls.Load())
}

func TestCollect_SelectionAndUnknownIDs(t *testing.T) {
	a := &fakeProvider{id: "a", available: true, leads: leads("A")}
	b := &fakeProvider{id: "b", available: true, leads: leads("B")}

	res, err := New([]provider.Provider{a, b}).Collect(context.Background(), Request{Providers: []string{"b", "nope"}})
	require.NoError(t, err)
	require.Len(t, res.Leads, 1)
	assert.Equal(t, "B", res.Leads[0].Name)
	assert.Zero(t, a.calls.Load())
}

func TestCollect_DefaultProviders(t *testing.T) {
	a := &fakeProvider{id: "a", available: true, leads: leads("A")}
	b := &fakeProvider{id: "b", available: true, leads: leads("B")}

	c := New([]provider.Provider{a, b}, WithDefaultProviders([]string{"a"}))
	res, err := c.Collect(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, res.Usage)
	assert.Zero(t, b.calls.Load())
}

func TestCollect_LimitsTruncate(t *testing.T) {
	greedy := &fakeProvider{id: "greedy", available: true, leads: leads("1", "2", "3", "4")}
	other := &fakeProvider{id: "other", available: true, leads: leads("x")}

	c := New([]provider.Provider{greedy, other}, WithDefaultLimit(7))
	res, err := c.Collect(context.Background(), Request{Limits: map[string]int{"greedy": 2}})
	require.NoError(t, err)

	assert.Len(t, res.Leads, 3)
	assert.Equal(t, 2, res.Usage["greedy"])
	assert.EqualValues(t, 2, greedy.gotLimit.Load())
	assert.EqualValues(t, 7, other.gotLimit.Load())
}

func TestCollect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Collect(ctx, Request{})
	assert.Error(t, err)
}

func TestCollect_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ok := &fakeProvider{id: "ok", available: true, leads: leads("A", "B")}
	bad := &fakeProvider{id: "bad", available: true, err: fmt.Errorf("down")}

	_, err := New([]provider.Provider{ok, bad}, WithMetrics(m)).Collect(context.Background(), Request{})
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("ok", metrics.OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("bad", metrics.OutcomeError)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ProviderLeads.WithLabelValues("ok")), 0)
}
