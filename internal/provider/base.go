package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// maxBody caps provider response bodies.
const maxBody = 8 << 20

// Base carries the config, HTTP client, throttle and resilience policy
// shared by the HTTP adapters. Adapters embed it.
type Base struct {
	id      string
	cfg     config.ProviderConfig
	limit   RateLimit
	http    *http.Client
	limiter *rate.Limiter
	policy  *resilience.Policy
}

// Option configures a Base.
type Option func(*Base)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Base) { b.http = c }
}

// WithLimiter overrides the throttle built from the rate limit.
func WithLimiter(l *rate.Limiter) Option {
	return func(b *Base) { b.limiter = l }
}

// WithPolicy sets the retry and circuit breaker policy.
func WithPolicy(p *resilience.Policy) Option {
	return func(b *Base) { b.policy = p }
}

// WithBaseURL overrides the configured endpoint.
func WithBaseURL(u string) Option {
	return func(b *Base) { b.cfg.BaseURL = u }
}

// NewBase builds the shared adapter state.
func NewBase(id string, cfg config.ProviderConfig, limit RateLimit, opts ...Option) Base {
	b := Base{
		id:    id,
		cfg:   cfg,
		limit: limit,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(&b)
	}
	if b.limiter == nil {
		b.limiter = NewLimiter(limit)
	}
	return b
}

// NewLimiter converts a RateLimit into a token bucket with burst 1.
func NewLimiter(rl RateLimit) *rate.Limiter {
	if rl.Requests <= 0 || rl.Per <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(rl.Per/time.Duration(rl.Requests)), 1)
}

// ID returns the provider ID.
func (b *Base) ID() string { return b.id }

// Name returns the configured display name, defaulting to the ID.
func (b *Base) Name() string {
	if b.cfg.Name != "" {
		return b.cfg.Name
	}
	return b.id
}

// RateLimit returns the adapter's request budget.
func (b *Base) RateLimit() RateLimit { return b.limit }

// Available reports whether the provider is enabled and has its key.
func (b *Base) Available() bool { return b.cfg.Ready() }

// Config returns the injected provider config.
func (b *Base) Config() config.ProviderConfig { return b.cfg }

// Wait blocks until the adapter's throttle admits one request.
func (b *Base) Wait(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "%s: rate limit wait", b.id)
	}
	return nil
}

// Policy returns the resilience policy, which may be nil.
func (b *Base) Policy() *resilience.Policy { return b.policy }

// ClampLimit bounds a requested limit by the configured query limit.
// A non-positive request means the configured limit.
func (b *Base) ClampLimit(limit int) int {
	if limit <= 0 || (b.cfg.QueryLimit > 0 && limit > b.cfg.QueryLimit) {
		return b.cfg.QueryLimit
	}
	return limit
}

// Do waits for the throttle and sends req under the resilience policy,
// decoding a JSON body into out. build is called per attempt so request
// bodies can be replayed.
func (b *Base) Do(ctx context.Context, op string, build func(ctx context.Context) (*http.Request, error), out any) error {
	_, err := resilience.Call(ctx, b.policy, b.id+"."+op, func(ctx context.Context) (struct{}, error) {
		if err := b.Wait(ctx); err != nil {
			return struct{}{}, err
		}

		req, err := build(ctx)
		if err != nil {
			return struct{}{}, eris.Wrapf(err, "%s: build request", b.id)
		}

		resp, err := b.http.Do(req)
		if err != nil {
			return struct{}{}, eris.Wrapf(err, "%s: %s", b.id, op)
		}
		defer resp.Body.Close() //nolint:errcheck

		if err := resilience.CheckResponse(resp, b.id); err != nil {
			return struct{}{}, err
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return struct{}{}, eris.Wrapf(err, "%s: read body", b.id)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return struct{}{}, eris.Wrapf(err, "%s: decode %s", b.id, op)
		}
		return struct{}{}, nil
	})
	return err
}
