// Package collector fans a search out to every selected provider at once
// and joins whatever comes back.
package collector

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/metrics"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
)

// DefaultLimit is the per-provider limit when neither the request nor
// the collector sets one.
const DefaultLimit = 20

// Request is one collection query.
type Request struct {
	Location  string
	Category  string
	Providers []string       // empty means the configured defaults
	Limits    map[string]int // per provider ID
}

// Result is the joined output of one Collect call.
type Result struct {
	Leads  []model.RawLead `json:"leads"`
	Usage  map[string]int  `json:"usage"`
	Failed []string        `json:"failed,omitempty"`
}

// Collector runs provider searches concurrently. Each search is isolated:
// an error or panic in one provider drops only that provider's leads.
type Collector struct {
	providers    []provider.Provider
	defaults     []string
	defaultLimit int
	metrics      *metrics.Metrics
}

// Option configures a Collector.
type Option func(*Collector)

// WithDefaultProviders sets the provider IDs used when a request names none.
func WithDefaultProviders(ids []string) Option {
	return func(c *Collector) { c.defaults = ids }
}

// WithDefaultLimit sets the per-provider limit used when a request has none.
func WithDefaultLimit(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.defaultLimit = n
		}
	}
}

// WithMetrics records provider outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// New creates a Collector over providers, kept in the given order.
func New(providers []provider.Provider, opts ...Option) *Collector {
	c := &Collector{
		providers:    providers,
		defaultLimit: DefaultLimit,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Providers returns every registered provider.
func (c *Collector) Providers() []provider.Provider {
	return c.providers
}

// Select resolves ids to available providers in registration order. An
// empty ids selects the defaults, or every provider when no defaults are set.
func (c *Collector) Select(ids []string) []provider.Provider {
	if len(ids) == 0 {
		ids = c.defaults
	}

	known := make(map[string]bool, len(c.providers))
	for _, p := range c.providers {
		known[p.ID()] = true
	}
	for _, id := range ids {
		if !known[id] {
			zap.L().Warn("collector: ignoring unknown provider", zap.String("provider", id))
		}
	}

	var out []provider.Provider
	for _, p := range c.providers {
		if len(ids) > 0 && !slices.Contains(ids, p.ID()) {
			continue
		}
		if !p.Available() {
			zap.L().Debug("collector: provider unavailable", zap.String("provider", p.ID()))
			continue
		}
		out = append(out, p)
	}
	return out
}

type outcome struct {
	leads   []model.RawLead
	credits int
	err     error
}

// Collect searches every selected provider concurrently and flattens the
// results in registration order. Provider failures are logged and listed
// in Result.Failed; they never fail the call. The only error is a context
// that is already done before fan-out.
func (c *Collector) Collect(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "collector: collect")
	}

	res := &Result{Usage: make(map[string]int)}
	selected := c.Select(req.Providers)
	if len(selected) == 0 {
		zap.L().Warn("collector: no providers available",
			zap.Strings("requested", req.Providers),
		)
		return res, nil
	}

	outcomes := make([]outcome, len(selected))
	var g errgroup.Group
	for i, p := range selected {
		g.Go(func() error {
			outcomes[i] = c.search(ctx, p, req)
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range selected {
		o := outcomes[i]
		if o.err != nil {
			res.Failed = append(res.Failed, p.ID())
			continue
		}
		res.Leads = append(res.Leads, o.leads...)
		res.Usage[p.ID()] = o.credits
	}

	zap.L().Info("collector: collection complete",
		zap.String("location", req.Location),
		zap.String("category", req.Category),
		zap.Int("providers", len(selected)),
		zap.Int("leads", len(res.Leads)),
		zap.Strings("failed", res.Failed),
	)
	return res, nil
}

func (c *Collector) limitFor(req Request, id string) int {
	if n, ok := req.Limits[id]; ok && n > 0 {
		return n
	}
	return c.defaultLimit
}

func (c *Collector) search(ctx context.Context, p provider.Provider, req Request) (o outcome) {
	log := zap.L().With(zap.String("provider", p.ID()))
	limit := c.limitFor(req, p.ID())
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: eris.New(fmt.Sprintf("collector: %s panicked: %v", p.ID(), r))}
			log.Error("collector: provider panicked", zap.Any("panic", r))
			c.metrics.ObserveSearch(p.ID(), metrics.OutcomePanic, 0, 0, time.Since(start))
		}
	}()

	leads, err := p.Search(ctx, req.Location, req.Category, limit)
	if err != nil {
		log.Warn("collector: provider search failed", zap.Error(err))
		c.metrics.ObserveSearch(p.ID(), metrics.OutcomeError, 0, 0, time.Since(start))
		return outcome{err: eris.Wrapf(err, "collector: search %s", p.ID())}
	}

	if len(leads) > limit {
		leads = leads[:limit]
	}
	tagged := make([]model.RawLead, len(leads))
	for i, l := range leads {
		l.Source = p.Name()
		tagged[i] = l
	}

	credits := p.CalculateCredits(limit, len(tagged))
	log.Info("collector: provider returned leads",
		zap.Int("count", len(tagged)),
		zap.Int("credits", credits),
		zap.Duration("took", time.Since(start)),
	)
	c.metrics.ObserveSearch(p.ID(), metrics.OutcomeSuccess, len(tagged), credits, time.Since(start))
	return outcome{leads: tagged, credits: credits}
}
