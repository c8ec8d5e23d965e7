// ABOUTME: Two-state controller deciding which periodic loop is live each tick
// ABOUTME: Timer fires are dumb triggers; all enablement logic lives here

package fleet

import (
	"context"
	"log/slog"
	"sync"
)

// Mode identifies which of the two control loops is currently active.
type Mode string

const (
	// ModeMonitor runs the 3-minute reap schedule: detect disconnected
	// robots and release their work. Steady state while robots are live.
	ModeMonitor Mode = "monitor"

	// ModeDispatch runs the 1-minute dispatch schedule: recheck fleet
	// liveness at a fast cadence and hand unassigned work to the
	// least-loaded robot as soon as one is available.
	ModeDispatch Mode = "dispatch"
)

// Schedule names for Tick. The timers fire unconditionally; a tick for the
// schedule that does not match the current mode is a no-op.
const (
	ScheduleReap     = "reap"
	ScheduleDispatch = "dispatch"
)

// Controller owns the mode flag and routes timer ticks to the matching loop
// body. Exactly one mode is active at a time; transitions are atomic, and a
// dispatch tick latches the mode off before running so two dispatch attempts
// can never race on the staging buffer.
type Controller struct {
	mu   sync.Mutex
	mode Mode

	health   *HealthMonitor
	dispatch *Dispatcher
	logger   *slog.Logger
}

// NewController creates a controller starting in ModeMonitor.
func NewController(health *HealthMonitor, dispatch *Dispatcher, logger *slog.Logger) *Controller {
	return &Controller{
		mode:     ModeMonitor,
		health:   health,
		dispatch: dispatch,
		logger:   logger.With("component", "controller"),
	}
}

// Mode returns the currently active mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// setMode transitions to the given mode. Loop bodies call this to hand
// control to the other schedule (or re-arm their own).
func (c *Controller) setMode(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != mode {
		c.logger.Debug("mode transition", "from", c.mode, "to", mode)
	}
	c.mode = mode
}

// latchDispatch atomically claims a dispatch run: if the mode is
// ModeDispatch it flips to ModeMonitor and returns true. The dispatch body
// decides the final mode when it finishes; until then dispatch is disabled.
func (c *Controller) latchDispatch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeDispatch {
		return false
	}
	c.mode = ModeMonitor
	return true
}

// Tick runs one invocation of the named schedule. Failures are handled
// inside the loop bodies and never propagate to the timer.
func (c *Controller) Tick(ctx context.Context, schedule string) {
	switch schedule {
	case ScheduleReap:
		if c.Mode() != ModeMonitor {
			return
		}
		c.health.Run(ctx, c)
	case ScheduleDispatch:
		if !c.latchDispatch() {
			return
		}
		c.dispatch.Run(ctx, c)
	default:
		c.logger.Warn("tick for unknown schedule", "schedule", schedule)
	}
}
