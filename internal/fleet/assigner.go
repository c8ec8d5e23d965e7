// ABOUTME: Assignment engine that binds and releases work batches for robots
// ABOUTME: Relies on the directory's transaction boundary for all-or-nothing commits

package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/coven-fleet/internal/store"
)

// ErrAssignmentFailed indicates the store failed mid-commit. The caller must
// not assume any subset of the batch was applied.
var ErrAssignmentFailed = errors.New("assignment failed")

// Assigner performs atomic batch assignment and unassignment of work.
type Assigner struct {
	dir    store.Directory
	logger *slog.Logger
}

// NewAssigner creates an assigner over the given workload directory.
func NewAssigner(dir store.Directory, logger *slog.Logger) *Assigner {
	return &Assigner{
		dir:    dir,
		logger: logger.With("component", "assigner"),
	}
}

// Assign sets the robot association on every item and task in the batch.
// The directory applies the batch in a single transaction, so a returned
// ErrAssignmentFailed means none of it is durably applied.
func (a *Assigner) Assign(ctx context.Context, batch *Batch, robot *store.Robot) error {
	if err := a.dir.AssignBatch(ctx, batch.ItemIDs(), batch.TaskIDs(), robot.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrAssignmentFailed, err)
	}

	a.logger.Debug("batch assigned",
		"robot", robot.ID,
		"items", len(batch.Items),
		"tasks", len(batch.Tasks),
	)
	return nil
}

// Unassign clears the robot association on every item and task in the batch.
// Clearing is idempotent and order-independent.
func (a *Assigner) Unassign(ctx context.Context, batch *Batch) error {
	if err := a.dir.ClearAssignments(ctx, batch.ItemIDs(), batch.TaskIDs()); err != nil {
		return fmt.Errorf("clearing assignments: %w", err)
	}
	return nil
}
