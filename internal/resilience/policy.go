package resilience

import (
	"context"
	"time"

	"github.com/sells-group/leadgen-cli/internal/config"
)

// Policy combines a retry backoff with a circuit breaker for one
// upstream service.
type Policy struct {
	Backoff Backoff
	Breaker *Breaker
}

// NewPolicy builds a Policy for service from config values. Zero values
// fall back to defaults.
func NewPolicy(service string, cfg config.ResilienceConfig) *Policy {
	b := Backoff{
		Attempts: cfg.MaxAttempts,
		Initial:  time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		Max:      time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		Jitter:   cfg.JitterFraction,
	}
	return &Policy{
		Backoff: b.normalized(),
		Breaker: NewBreaker(service, cfg.FailureThreshold, time.Duration(cfg.ResetTimeoutSecs)*time.Second),
	}
}

// Call runs fn with retries inside the breaker. The breaker sees one
// outcome per Call, after retries are exhausted. A nil policy calls fn
// once.
func Call[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if p == nil {
		return fn(ctx)
	}
	return Guard(ctx, p.Breaker, func(ctx context.Context) (T, error) {
		return Retry(ctx, p.Backoff, op, fn)
	})
}
