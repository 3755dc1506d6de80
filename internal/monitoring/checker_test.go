package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/cost"
)

type webhookRecorder struct {
	mu    sync.Mutex
	alert []Alert
}

func (w *webhookRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var a Alert
		if err := json.NewDecoder(r.Body).Decode(&a); err == nil {
			w.mu.Lock()
			w.alert = append(w.alert, a)
			w.mu.Unlock()
		}
		rw.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (w *webhookRecorder) keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, a := range w.alert {
		out = append(out, a.Key())
	}
	return out
}

func TestChecker_Check_SendsOnlyNewAlerts(t *testing.T) {
	hook := &webhookRecorder{}
	srv := hook.server(t)

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, LookbackWindowHours: 24, QuotaWarnRatio: 0.9}
	quotas := &fakeQuotas{statuses: []cost.Status{
		{Provider: "google_places", Period: cost.PeriodDaily, Used: 100, Limit: 100, Exhausted: true},
	}}
	checker := NewChecker(NewCollector(&fakeRuns{}, quotas), NewAlerter(cfg), cfg)
	ctx := context.Background()

	assert.Equal(t, 1, checker.Check(ctx))
	assert.Equal(t, 0, checker.Check(ctx), "still active, not resent")

	quotas.statuses = append(quotas.statuses, cost.Status{Provider: "tomtom", Period: cost.PeriodMonthly, Used: 95, Limit: 100})
	assert.Equal(t, 1, checker.Check(ctx))

	// google_places clears, then comes back.
	quotas.statuses = quotas.statuses[1:]
	assert.Equal(t, 0, checker.Check(ctx))
	quotas.statuses = append(quotas.statuses, cost.Status{Provider: "google_places", Used: 100, Limit: 100, Exhausted: true})
	assert.Equal(t, 1, checker.Check(ctx))

	assert.Equal(t, []string{
		"quota_exhausted:google_places",
		"quota_low:tomtom",
		"quota_exhausted:google_places",
	}, hook.keys())
}

func TestChecker_Check_CollectError(t *testing.T) {
	checker := NewChecker(NewCollector(&fakeRuns{listErr: assert.AnError}, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Zero(t, checker.Check(context.Background()))
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	hook := &webhookRecorder{}
	srv := hook.server(t)

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, CheckIntervalSecs: 1, LookbackWindowHours: 24}
	quotas := &fakeQuotas{statuses: []cost.Status{{Provider: "geoapify", Used: 3000, Limit: 3000, Exhausted: true}}}
	checker := NewChecker(NewCollector(&fakeRuns{}, quotas), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(hook.keys()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestNewChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&fakeRuns{}, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, 5*time.Minute, checker.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestAlert_Key(t *testing.T) {
	assert.Equal(t, "run_failure_rate", Alert{Type: AlertRunFailureRate}.Key())
	assert.Equal(t, "quota_low:tomtom", Alert{Type: AlertQuotaLow, Details: map[string]any{"provider": "tomtom"}}.Key())
}
