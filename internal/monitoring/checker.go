package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/config"
)

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	lastSent map[AlertType]string
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		lastSent:  make(map[AlertType]string),
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap := c.collector.Snapshot()
	alerts := c.alerter.Evaluate(snap)

	// Counters are cumulative, so an unresolved breach re-evaluates
	// identically every tick. Send only when the message changes.
	fresh := alerts[:0]
	for _, a := range alerts {
		if c.lastSent[a.Type] == a.Message {
			continue
		}
		c.lastSent[a.Type] = a.Message
		fresh = append(fresh, a)
	}

	if len(fresh) == 0 {
		log.Debug("no new alerts",
			zap.Int("uploads_verified", snap.UploadsVerified),
			zap.Int("uploads_rejected", snap.UploadsRejected),
			zap.Int("submissions", snap.Submissions),
		)
		return
	}
	c.alerter.SendAlerts(ctx, fresh)
}
