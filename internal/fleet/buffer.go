// ABOUTME: Single-slot staging buffer holding the one in-flight assignment batch
// ABOUTME: CAS-guarded so overlapping dispatch attempts cannot race on the same work

package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/2389/coven-fleet/internal/store"
)

// ErrBufferNotEmpty is returned by Stage when a batch is already in flight.
// The dispatch loop treats this as a concurrency guard trip, not a fault: it
// logs a warning and retries next cycle.
var ErrBufferNotEmpty = errors.New("staging buffer not empty")

// Batch is the set of work items and tasks assigned together in one dispatch
// cycle.
type Batch struct {
	Items []*store.WorkItem
	Tasks []*store.Task
}

// ItemIDs returns the IDs of the batch's work items, in order.
func (b *Batch) ItemIDs() []string {
	ids := make([]string, len(b.Items))
	for i, item := range b.Items {
		ids[i] = item.ID
	}
	return ids
}

// TaskIDs returns the IDs of the batch's tasks, in order.
func (b *Batch) TaskIDs() []string {
	ids := make([]string, len(b.Tasks))
	for i, task := range b.Tasks {
		ids[i] = task.ID
	}
	return ids
}

// StagingBuffer holds at most one pending batch between stage and commit.
// The slot is a compare-and-swap pointer: either nil (empty) or the one
// not-yet-committed batch. It is the only shared mutable state between the
// two control loops besides the store itself.
type StagingBuffer struct {
	slot     atomic.Pointer[Batch]
	assigner *Assigner
	logger   *slog.Logger
}

// NewStagingBuffer creates an empty staging buffer that commits batches
// through the given assigner.
func NewStagingBuffer(assigner *Assigner, logger *slog.Logger) *StagingBuffer {
	return &StagingBuffer{
		assigner: assigner,
		logger:   logger.With("component", "staging-buffer"),
	}
}

// Stage places a batch into the buffer.
// Returns ErrBufferNotEmpty if a batch is already staged.
func (b *StagingBuffer) Stage(batch *Batch) error {
	if !b.slot.CompareAndSwap(nil, batch) {
		return ErrBufferNotEmpty
	}
	b.logger.Debug("batch staged", "items", len(batch.Items), "tasks", len(batch.Tasks))
	return nil
}

// Commit assigns the staged batch to the given robot and clears the buffer on
// success. On assignment failure the batch stays staged for operator
// inspection and the error is returned. Committing an empty buffer is a
// no-op.
func (b *StagingBuffer) Commit(ctx context.Context, robot *store.Robot) error {
	batch := b.slot.Load()
	if batch == nil {
		return nil
	}

	if err := b.assigner.Assign(ctx, batch, robot); err != nil {
		b.logger.Error("commit failed, batch retained",
			"robot", robot.ID,
			"items", len(batch.Items),
			"error", err,
		)
		return err
	}

	b.slot.CompareAndSwap(batch, nil)
	b.logger.Info("batch committed", "robot", robot.ID, "items", len(batch.Items), "tasks", len(batch.Tasks))
	return nil
}

// IsEmpty reports whether no batch is staged.
func (b *StagingBuffer) IsEmpty() bool {
	return b.slot.Load() == nil
}

// Drain removes and returns a stuck batch after clearing any robot
// associations a partial commit may have left behind. This is the manual
// operator path for a batch retained by a failed commit; it returns nil when
// the buffer is empty.
func (b *StagingBuffer) Drain(ctx context.Context) (*Batch, error) {
	batch := b.slot.Swap(nil)
	if batch == nil {
		return nil, nil
	}

	if err := b.assigner.Unassign(ctx, batch); err != nil {
		return batch, fmt.Errorf("releasing drained batch: %w", err)
	}

	b.logger.Info("batch drained", "items", len(batch.Items), "tasks", len(batch.Tasks))
	return batch, nil
}
