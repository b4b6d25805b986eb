package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/contract-validator/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute

	// repeatAfter is how long an alert type stays quiet after delivery
	// while its condition persists.
	repeatAfter = time.Hour
)

// Checker evaluates health on a ticker and pages the webhook. It is not
// safe for concurrent use; Run owns it.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	lastSent  map[AlertType]time.Time
	now       func() time.Time
	log       *zap.Logger
}

// NewChecker wires a collector and alerter into a background checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		lastSent:  make(map[AlertType]time.Time),
		now:       time.Now,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs <= 0 {
		return defaultCheckInterval
	}
	return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
}

// Run checks on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	every := c.interval()
	c.log.Info("monitoring: checker started",
		zap.Duration("interval", every),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects a snapshot, evaluates it, and delivers alerts that were
// not already delivered within repeatAfter. It returns the number of
// alerts the snapshot triggered.
func (c *Checker) Check(ctx context.Context) int {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.log.Error("monitoring: collect failed", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	now := c.now()

	var fresh []Alert
	for _, a := range alerts {
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < repeatAfter {
			continue
		}
		fresh = append(fresh, a)
	}
	// Conditions that cleared may alert again immediately.
	for t := range c.lastSent {
		if !triggered(alerts, t) {
			delete(c.lastSent, t)
		}
	}

	delivered := 0
	for _, a := range fresh {
		if c.alerter.SendAlerts(ctx, []Alert{a}) == 1 {
			c.lastSent[a.Type] = now
			delivered++
		}
	}

	c.log.Debug("monitoring: check complete",
		zap.Int("documents", snap.DocumentsTotal),
		zap.Int("dlq_depth", snap.DLQDepth),
		zap.Int("alerts", len(alerts)),
		zap.Int("delivered", delivered),
	)
	return len(alerts)
}

func triggered(alerts []Alert, t AlertType) bool {
	for _, a := range alerts {
		if a.Type == t {
			return true
		}
	}
	return false
}
