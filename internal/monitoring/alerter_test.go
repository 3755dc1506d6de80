package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/cost"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10, QuotaWarnRatio: 0.9})

	snap := &Snapshot{
		RunsTotal:     100,
		RunsCompleted: 95,
		RunsFailed:    5,
		FailRate:      0.05,
		Quotas:        []cost.Status{{Provider: "google_places", Used: 10, Limit: 100}},
		LookbackHours: 24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_RunFailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &Snapshot{
		RunsTotal:     20,
		RunsCompleted: 12,
		RunsFailed:    8,
		FailRate:      0.4,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_TooFewRuns(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})

	snap := &Snapshot{RunsCompleted: 1, RunsFailed: 2, FailRate: 0.66}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_Quota(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{QuotaWarnRatio: 0.9})

	snap := &Snapshot{Quotas: []cost.Status{
		{Provider: "openstreetmap", Used: 500, Limit: 0},
		{Provider: "geoapify", Period: cost.PeriodDaily, Used: 3000, Limit: 3000, Exhausted: true},
		{Provider: "google_places", Period: cost.PeriodMonthly, Used: 950, Limit: 1000},
		{Provider: "tomtom", Period: cost.PeriodDaily, Used: 100, Limit: 2500},
	}}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertQuotaExhausted, alerts[0].Type)
	assert.Equal(t, "geoapify", alerts[0].Details["provider"])
	assert.Equal(t, AlertQuotaLow, alerts[1].Type)
	assert.Equal(t, "medium", alerts[1].Severity)
	assert.Contains(t, alerts[1].Message, "50 of 1000 monthly")
}

func TestAlerter_Evaluate_QuotaWarnDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	snap := &Snapshot{Quotas: []cost.Status{{Provider: "google_places", Used: 999, Limit: 1000}}}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertQuotaExhausted, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})

	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}
