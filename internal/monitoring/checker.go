package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
)

// Checker evaluates a fresh snapshot on every tick. An alert is sent when
// it first appears and again only after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int

	active map[string]bool
}

// NewChecker creates a background alert checker. A non-positive interval
// means five minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		active:    make(map[string]bool),
	}
}

// Run checks once, then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			c.Check(ctx)
		}
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects a snapshot and sends the alerts that were not already
// active on the previous check. It returns the number sent.
func (c *Checker) Check(ctx context.Context) int {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		zap.L().Error("monitoring: collect snapshot", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	seen := make(map[string]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		key := a.Key()
		seen[key] = true
		if c.active[key] {
			continue
		}
		zap.L().Warn("monitoring: alert", zap.String("key", key), zap.String("message", a.Message))
		fresh = append(fresh, a)
	}
	for key := range c.active {
		if !seen[key] {
			zap.L().Info("monitoring: alert cleared", zap.String("key", key))
		}
	}
	c.active = seen

	if len(fresh) == 0 {
		return 0
	}
	return c.alerter.SendAlerts(ctx, fresh)
}
