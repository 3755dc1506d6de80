// Package metrics holds the Prometheus collectors for provider calls,
// enrichment, runs and outreach delivery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePanic   = "panic"
	OutcomeSkipped = "skipped"
)

// Metrics holds all Prometheus metrics for the application. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ProviderRequests *prometheus.CounterVec
	ProviderLeads    *prometheus.CounterVec
	ProviderCredits  *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	EnrichResults    *prometheus.CounterVec
	LeadsMerged      prometheus.Counter
	Runs             *prometheus.CounterVec
	Emails           *prometheus.CounterVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_provider_requests_total",
			Help: "Provider searches by outcome",
		}, []string{"provider", "outcome"}),
		ProviderLeads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_provider_leads_total",
			Help: "Raw leads returned per provider",
		}, []string{"provider"}),
		ProviderCredits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_provider_credits_total",
			Help: "Quota credits consumed per provider",
		}, []string{"provider"}),
		ProviderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadgen_provider_search_seconds",
			Help:    "Provider search latency",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"provider"}),
		EnrichResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_enrich_results_total",
			Help: "Lead enrichments by outcome",
		}, []string{"outcome"}),
		LeadsMerged: f.NewCounter(prometheus.CounterOpts{
			Name: "leadgen_leads_merged_total",
			Help: "Merged leads produced by deduplication",
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_runs_total",
			Help: "Finished runs by status",
		}, []string{"status"}),
		Emails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_emails_total",
			Help: "Outreach delivery attempts by resulting draft status",
		}, []string{"status"}),
	}
}

// ObserveSearch records one provider search.
func (m *Metrics) ObserveSearch(provider, outcome string, leads, credits int, took time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(took.Seconds())
	if outcome != OutcomeSuccess {
		return
	}
	m.ProviderLeads.WithLabelValues(provider).Add(float64(leads))
	m.ProviderCredits.WithLabelValues(provider).Add(float64(credits))
}

// IncEnrich records one enrichment outcome.
func (m *Metrics) IncEnrich(outcome string) {
	if m == nil {
		return
	}
	m.EnrichResults.WithLabelValues(outcome).Inc()
}

// AddMerged records merged leads from one dedupe pass.
func (m *Metrics) AddMerged(n int) {
	if m == nil {
		return
	}
	m.LeadsMerged.Add(float64(n))
}

// IncRun records a finished run.
func (m *Metrics) IncRun(status string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
}

// IncEmail records one delivery attempt by the status it left the draft in.
func (m *Metrics) IncEmail(status string) {
	if m == nil {
		return
	}
	m.Emails.WithLabelValues(status).Inc()
}
