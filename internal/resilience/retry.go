package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff controls exponential retry with jitter.
type Backoff struct {
	// Attempts is the total number of tries including the first.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	// Jitter is the +/- fraction applied to each delay.
	Jitter float64
}

// DefaultBackoff returns three attempts starting at 500ms.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Initial:  500 * time.Millisecond,
		Max:      10 * time.Second,
		Jitter:   0.25,
	}
}

func (b Backoff) normalized() Backoff {
	def := DefaultBackoff()
	if b.Attempts <= 0 {
		b.Attempts = def.Attempts
	}
	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	return b
}

// delay returns the wait before retry number n (0-based).
func (b Backoff) delay(n int) time.Duration {
	d := float64(b.Initial) * math.Pow(2, float64(n))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, returns a non-transient error, the
// attempts run out, or ctx is done.
func Retry[T any](ctx context.Context, b Backoff, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < b.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) || attempt == b.Attempts-1 {
			break
		}

		zap.L().Warn("resilience: retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}
