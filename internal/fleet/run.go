// ABOUTME: Ticker runner driving the two periodic schedules
// ABOUTME: Timers are dumb triggers; each fire just calls Controller.Tick

package fleet

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner owns the two periodic timers and feeds their fires into the
// controller. One goroutine per schedule guarantees at most one concurrent
// run of the same schedule; cross-schedule overlap is handled by the
// controller latch and the staging buffer.
type Runner struct {
	ctrl          *Controller
	dispatchEvery time.Duration
	reapEvery     time.Duration
	logger        *slog.Logger
}

// NewRunner creates a runner firing dispatch ticks every dispatchEvery and
// reap ticks every reapEvery.
func NewRunner(ctrl *Controller, dispatchEvery, reapEvery time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		ctrl:          ctrl,
		dispatchEvery: dispatchEvery,
		reapEvery:     reapEvery,
		logger:        logger.With("component", "runner"),
	}
}

// Run blocks driving both schedules until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("control loops started",
		"dispatch_interval", r.dispatchEvery,
		"reap_interval", r.reapEvery,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.drive(ctx, ScheduleDispatch, r.dispatchEvery) })
	g.Go(func() error { return r.drive(ctx, ScheduleReap, r.reapEvery) })
	return g.Wait()
}

// drive fires one schedule at a fixed cadence until ctx is cancelled.
func (r *Runner) drive(ctx context.Context, schedule string, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("schedule stopped", "schedule", schedule)
			return nil
		case <-ticker.C:
			r.ctrl.Tick(ctx, schedule)
		}
	}
}
