package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// StartSweepScheduler runs Sweep once, then on every tick of the cron
// expression, until Stop is called or ctx is cancelled.
func (e *Engine) StartSweepScheduler(ctx context.Context, cronExpr string) error {
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("invalid sweep cron expression: %q", cronExpr)
	}

	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		e.scheduledSweep(ctx)
		for {
			next, err := gronx.NextTickAfter(cronExpr, time.Now(), false)
			if err != nil {
				e.logger.Error().Err(err).Str("cron", cronExpr).Msg("sweep next tick failed")
				next = time.Now().Add(30 * time.Second)
			}

			timer := time.NewTimer(time.Until(next))
			select {
			case <-timer.C:
				e.scheduledSweep(ctx)
			case <-ctx.Done():
				timer.Stop()
				return
			case <-e.stopCh:
				timer.Stop()
				return
			}
		}
	}()

	e.logger.Info().Str("cron", cronExpr).Msg("sweep scheduler started")
	return nil
}

func (e *Engine) scheduledSweep(ctx context.Context) {
	res, err := e.Sweep(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("scheduled sweep failed")
		return
	}
	e.logger.Debug().
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Int("remaining", len(res.Remaining)).
		Msg("scheduled sweep")
}

// Stop shuts down the sweep scheduler and waits for an in-flight sweep.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	if e.done != nil {
		<-e.done
	}
}
