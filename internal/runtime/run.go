package runtime

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

// Run drives the autonomous tick loop until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		interval := e.cfg.Heartbeat.TickInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		e.log.Info("autonomous loop started", zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				e.AutonomousTick(ctx)
			}
		}
	})
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}
