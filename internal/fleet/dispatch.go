// ABOUTME: Dispatch loop body handing unassigned work to the least-loaded robot
// ABOUTME: Stages a batch, commits it, and fires the external runner per task

package fleet

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/coven-fleet/internal/store"
)

// TaskRunner triggers out-of-process execution of a robot task. Launch is
// fire-and-forget from the dispatch loop's perspective: the loop does not
// await a result, it only hands the invocation off.
type TaskRunner interface {
	Launch(ctx context.Context, robotID, taskName string, env map[string]string) error
}

// Dispatcher is the body of the 1-minute dispatch schedule. Each run pulls
// all unassigned items into the staging buffer and commits them to the
// least-loaded live robot, then hands control back to the reap schedule.
//
// While the fleet has no active robots the dispatcher re-arms itself, so the
// 1-minute cadence doubles as the fast reconnect probe.
type Dispatcher struct {
	registry store.Registry
	dir      store.Directory
	buffer   *StagingBuffer
	runner   TaskRunner // nil disables execution triggering
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. runner may be nil, in which case
// committed work waits for an external trigger.
func NewDispatcher(registry store.Registry, dir store.Directory, buffer *StagingBuffer, runner TaskRunner, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		dir:      dir,
		buffer:   buffer,
		runner:   runner,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Run executes one dispatch cycle. The controller has already latched the
// dispatch schedule off; this body decides the final mode. Failures are
// handled here and never propagate to the timer.
func (d *Dispatcher) Run(ctx context.Context, ctrl *Controller) {
	active, err := d.registry.ListActive(ctx)
	if err != nil {
		d.logger.Error("listing active robots", "error", err)
		ctrl.setMode(ModeDispatch)
		return
	}
	if len(active) == 0 {
		// Nothing to dispatch to; keep probing at the fast cadence.
		ctrl.setMode(ModeDispatch)
		return
	}

	if !d.buffer.IsEmpty() {
		d.logger.Warn("staged batch still pending, skipping cycle")
		ctrl.setMode(ModeDispatch)
		return
	}

	items, err := d.dir.UnassignedItems(ctx)
	if err != nil {
		d.logger.Error("listing unassigned items", "error", err)
		ctrl.setMode(ModeDispatch)
		return
	}
	if len(items) == 0 {
		// Fleet is live and the pool is empty: hand control back to the
		// 3-minute reap schedule.
		ctrl.setMode(ModeMonitor)
		return
	}

	robot, err := d.registry.LeastLoaded(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoActiveRobots) {
			// Robots are active but none initialized yet; probe again next
			// minute.
			d.logger.Debug("no dispatchable robot", "active", len(active))
			ctrl.setMode(ModeDispatch)
			return
		}
		d.logger.Error("selecting least-loaded robot", "error", err)
		ctrl.setMode(ModeDispatch)
		return
	}

	batch := &Batch{Items: items}
	batch.Tasks, err = d.dir.TasksForItems(ctx, batch.ItemIDs())
	if err != nil {
		d.logger.Error("listing tasks for dispatch", "error", err)
		ctrl.setMode(ModeDispatch)
		return
	}

	if err := d.buffer.Stage(batch); err != nil {
		// Another loop invocation staged a batch between our emptiness check
		// and now. Back off; the buffer invariant did its job.
		d.logger.Warn("staging failed", "error", err)
		ctrl.setMode(ModeDispatch)
		return
	}

	if err := d.buffer.Commit(ctx, robot); err != nil {
		// Batch stays staged for the operator; dispatch remains latched off
		// until the fleet next drains and recovers.
		d.logger.Error("dispatch commit failed", "robot", robot.ID, "error", err)
		ctrl.setMode(ModeMonitor)
		return
	}

	ctrl.setMode(ModeMonitor)
	d.logger.Info("dispatched batch",
		"robot", robot.ID,
		"items", len(batch.Items),
		"tasks", len(batch.Tasks),
	)

	d.launch(ctx, robot, batch)
}

// launch fires the external runner for every task in the committed batch.
// Invocations are detached from the tick's lifetime; results are the
// runner's concern.
func (d *Dispatcher) launch(ctx context.Context, robot *store.Robot, batch *Batch) {
	if d.runner == nil {
		return
	}

	for _, task := range batch.Tasks {
		env := map[string]string{
			"TASK_ID": task.ID,
			"ITEM_ID": task.ItemID,
		}
		go func(taskID, taskName string) {
			runCtx := context.WithoutCancel(ctx)
			if err := d.runner.Launch(runCtx, robot.ID, taskName, env); err != nil {
				d.logger.Error("launching task", "robot", robot.ID, "task", taskID, "error", err)
			}
		}(task.ID, task.Name)
	}
}
