package retry

import (
	"context"
	"time"

	"objection-engine/internal/common/logger"
)

// Poller drives the engine on a fixed interval until its context is
// cancelled. Safe to run on multiple instances: ClaimDue's row locking
// keeps workers from double-claiming.
type Poller struct {
	engine   *Engine
	interval time.Duration
	logger   logger.Logger
}

func NewPoller(engine *Engine, interval time.Duration, log logger.Logger) *Poller {
	return &Poller{
		engine:   engine,
		interval: interval,
		logger:   log.WithFields(map[string]interface{}{"component": "retry-poller"}),
	}
}

// Start blocks until ctx is cancelled. Run it in its own goroutine.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("retry poller started", map[string]interface{}{
		"interval": p.interval.String(),
	})

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("retry poller stopped", nil)
			return
		case <-ticker.C:
			if err := p.engine.RunDue(ctx); err != nil {
				p.logger.WithError(err).Error("poll cycle failed", nil)
			}
		}
	}
}
