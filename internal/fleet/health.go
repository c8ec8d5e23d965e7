// ABOUTME: Health monitor loop body reaping disconnected robots
// ABOUTME: Releases a dead robot's work back to the unassigned pool

package fleet

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/coven-fleet/internal/store"
)

// HealthMonitor is the body of the 3-minute reap schedule. Each run finds
// robots whose heartbeat went stale, marks them inactive, and returns their
// assigned work to the unassigned pool. When the whole fleet is down it
// hands control to the dispatch schedule, whose faster cadence doubles as
// the reconnect probe.
type HealthMonitor struct {
	registry store.Registry
	dir      store.Directory
	assigner *Assigner
	timeout  time.Duration
	logger   *slog.Logger

	now func() time.Time // stubbed in tests
}

// NewHealthMonitor creates a health monitor. timeout is how long a robot may
// go without a heartbeat before it counts as disconnected.
func NewHealthMonitor(registry store.Registry, dir store.Directory, assigner *Assigner, timeout time.Duration, logger *slog.Logger) *HealthMonitor {
	return &HealthMonitor{
		registry: registry,
		dir:      dir,
		assigner: assigner,
		timeout:  timeout,
		logger:   logger.With("component", "health-monitor"),
		now:      time.Now,
	}
}

// Run executes one reap cycle. Errors are logged and swallowed; the next
// tick retries from scratch.
func (h *HealthMonitor) Run(ctx context.Context, ctrl *Controller) {
	cutoff := h.now().Add(-h.timeout)

	disconnected, err := h.registry.ListDisconnected(ctx, cutoff)
	if err != nil {
		h.logger.Error("listing disconnected robots", "error", err)
		return
	}

	if len(disconnected) > 0 {
		h.reap(ctx, disconnected)
	}

	active, err := h.registry.ListActive(ctx)
	if err != nil {
		h.logger.Error("listing active robots", "error", err)
		return
	}

	if len(active) == 0 {
		// Fleet is empty: switch to the fast cadence until a robot comes
		// back, at which point dispatch resumes on its own.
		ctrl.setMode(ModeDispatch)
		h.logger.Info("no active robots, switching to dispatch cadence")
	}
}

// reap marks the given robots inactive and clears their assignments so the
// work re-enters the unassigned pool. Reaping a robot with no work, or one
// already reaped, is a no-op.
func (h *HealthMonitor) reap(ctx context.Context, disconnected []*store.Robot) {
	ids := make([]string, len(disconnected))
	for i, robot := range disconnected {
		ids[i] = robot.ID
	}

	for _, robot := range disconnected {
		if err := h.registry.SetStatus(ctx, robot.ID, store.StatusInactive); err != nil {
			h.logger.Error("marking robot inactive", "robot", robot.ID, "error", err)
		}
	}

	items, err := h.dir.ItemsForRobots(ctx, ids)
	if err != nil {
		h.logger.Error("listing items for disconnected robots", "error", err)
		return
	}
	if len(items) == 0 {
		h.logger.Info("reaped robots", "robots", len(disconnected), "items_released", 0)
		return
	}

	batch := &Batch{Items: items}
	tasks, err := h.dir.TasksForItems(ctx, batch.ItemIDs())
	if err != nil {
		h.logger.Error("listing tasks for reaped items", "error", err)
		return
	}
	batch.Tasks = tasks

	if err := h.assigner.Unassign(ctx, batch); err != nil {
		h.logger.Error("releasing reaped work", "error", err)
		return
	}

	h.logger.Info("reaped robots",
		"robots", len(disconnected),
		"items_released", len(items),
		"tasks_released", len(tasks),
	)
}
