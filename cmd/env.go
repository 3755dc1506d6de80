package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/collector"
	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/dedupe"
	"github.com/sells-group/leadgen-cli/internal/enrich"
	"github.com/sells-group/leadgen-cli/internal/metrics"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/outreach"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/provider"
	"github.com/sells-group/leadgen-cli/internal/provider/geoapify"
	"github.com/sells-group/leadgen-cli/internal/provider/googleplaces"
	"github.com/sells-group/leadgen-cli/internal/provider/mapsscrape"
	"github.com/sells-group/leadgen-cli/internal/provider/overpass"
	"github.com/sells-group/leadgen-cli/internal/provider/tomtom"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/scorer"
	"github.com/sells-group/leadgen-cli/internal/scrape"
	"github.com/sells-group/leadgen-cli/internal/store"
	anthropicpkg "github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/jina"
)

// appEnv holds everything the run and serve commands share.
type appEnv struct {
	Store     store.Store
	Registry  *provider.Registry
	Collector *collector.Collector
	Ledger    *cost.Ledger
	Pipeline  *pipeline.Pipeline
	Outbox    *outreach.Outbox
	Monitor   *monitoring.Collector
	Metrics   *metrics.Metrics
	Prom      *prometheus.Registry
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens the store and wires the
// pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
	providers := buildProviders(cfg, jinaClient)

	coll := collector.New(providers.All(),
		collector.WithDefaultProviders(cfg.Collect.DefaultProviders),
		collector.WithDefaultLimit(cfg.Collect.DefaultLimit),
		collector.WithMetrics(m),
	)
	ledger := cost.NewLedger(st, cfg.Providers)

	outbox, err := buildOutbox(cfg, st, m)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithQuota(ledger),
		pipeline.WithMetrics(m),
		pipeline.WithMailer(outbox),
	}
	if cfg.Outreach.Enabled {
		opts = append(opts, pipeline.WithDrafter(buildDrafter(cfg)))
	}

	p := pipeline.New(st, coll,
		dedupe.New(dedupe.Thresholds{
			Name:          cfg.Dedupe.NameThreshold,
			Maybe:         cfg.Dedupe.MaybeThreshold,
			Address:       cfg.Dedupe.AddressThreshold,
			MaxDistanceKM: cfg.Dedupe.MaxDistanceKM,
		}),
		buildEnricher(cfg, jinaClient, m),
		scorer.New(cfg.Scoring),
		opts...,
	)

	return &appEnv{
		Store:     st,
		Registry:  providers,
		Collector: coll,
		Ledger:    ledger,
		Pipeline:  p,
		Outbox:    outbox,
		Monitor:   monitoring.NewCollector(st, ledger),
		Metrics:   m,
		Prom:      reg,
	}, nil
}

// buildProviders registers every adapter in a fixed order: the free open
// data source first, then commercial APIs, then the browser scrape.
func buildProviders(c *config.Config, reader jina.Client) *provider.Registry {
	opts := func(id string) []provider.Option {
		return []provider.Option{provider.WithPolicy(resilience.NewPolicy("provider."+id, c.Resilience))}
	}

	reg := provider.NewRegistry()
	reg.Register(overpass.New(c.Providers[config.ProviderOpenStreetMap], opts(config.ProviderOpenStreetMap)...))
	reg.Register(googleplaces.New(c.Providers[config.ProviderGooglePlaces], nil, opts(config.ProviderGooglePlaces)))
	reg.Register(geoapify.New(c.Providers[config.ProviderGeoapify], opts(config.ProviderGeoapify)...))
	reg.Register(tomtom.New(c.Providers[config.ProviderTomTom], opts(config.ProviderTomTom)...))
	reg.Register(mapsscrape.New(c.Providers[config.ProviderMapsBrowser], reader, opts(config.ProviderMapsBrowser)...))

	for _, p := range reg.All() {
		zap.L().Debug("provider registered",
			zap.String("provider", p.ID()),
			zap.Bool("available", p.Available()),
			zap.Stringer("rate_limit", p.RateLimit()),
		)
	}
	return reg
}

func buildEnricher(c *config.Config, reader jina.Client, m *metrics.Metrics) *enrich.Enricher {
	local := scrape.NewLocalScraper(
		scrape.WithUserAgent(c.Enrich.UserAgent),
		scrape.WithTimeout(time.Duration(c.Enrich.TimeoutSecs)*time.Second),
	)
	chain := scrape.NewChain(scrape.NewPathMatcher([]string{"*.pdf", "*.jpg", "*.png", "*.zip"}), local, scrape.NewJinaAdapter(reader))

	copts := []enrich.CrawlerOption{enrich.WithPhoneRegion(c.Enrich.PhoneRegion)}
	if c.Enrich.RespectRobots {
		copts = append(copts, enrich.WithRobots(&http.Client{Timeout: 10 * time.Second}, c.Enrich.UserAgent))
	}

	return enrich.New(enrich.NewWebCrawler(chain, copts...),
		enrich.WithBatchSize(c.Enrich.BatchSize),
		enrich.WithMaxContactPages(c.Enrich.MaxContactPages),
		enrich.WithRegion(c.Enrich.PhoneRegion),
		enrich.WithMetrics(m),
	)
}

func buildDrafter(c *config.Config) *outreach.Drafter {
	var client anthropicpkg.Client
	if c.Anthropic.Key != "" {
		client = anthropicpkg.NewClient(c.Anthropic.Key)
	} else {
		zap.L().Info("outreach: no anthropic key, drafts use the template")
	}
	return outreach.New(client, c.Outreach, outreach.WithModel(c.Anthropic.Model, c.Anthropic.MaxTokens))
}

// buildOutbox attaches an SMTP sender when outreach.smtp_host is set.
// Without one, drafts can still be approved or suppressed but none is sent.
func buildOutbox(c *config.Config, st store.Store, m *metrics.Metrics) (*outreach.Outbox, error) {
	if c.Outreach.SMTPHost == "" {
		return outreach.NewOutbox(st, nil, outreach.WithOutboxMetrics(m)), nil
	}
	transport, err := outreach.NewSMTPTransport(c.Outreach)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("outreach: smtp sending enabled",
		zap.String("host", c.Outreach.SMTPHost),
		zap.Int("max_per_minute", c.Outreach.MaxPerMinute),
		zap.Bool("dry_run", c.Outreach.DryRun),
	)
	sender := outreach.NewSender(transport, st, c.Outreach)
	return outreach.NewOutbox(st, sender, outreach.WithOutboxMetrics(m)), nil
}
