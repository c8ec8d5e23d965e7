// Package fleet implements the dispatch and health control core.
//
// # Overview
//
// Two alternating periodic loops keep the fleet healthy and fed:
//
//   - Health monitor (reap schedule, every 3 minutes): finds robots whose
//     heartbeat went stale, marks them inactive, and releases their assigned
//     work back to the unassigned pool.
//   - Dispatcher (dispatch schedule, every 1 minute): batches every
//     unassigned work item, stages the batch, and commits it to the
//     least-loaded live robot.
//
// # Controller
//
// The Controller is a two-state machine deciding which schedule is live.
// Both timers fire unconditionally; Tick for the inactive schedule is a
// no-op. The health monitor hands control to the dispatch schedule when the
// fleet goes empty — its faster cadence doubles as the reconnect probe — and
// the dispatcher hands control back once it has dispatched (or found nothing
// to do) against a live fleet.
//
// A dispatch tick latches the schedule off before the body runs, so a second
// dispatch attempt cannot start until the first decides the next mode.
//
// # Staging Buffer
//
// StagingBuffer is a single-slot CAS-guarded mailbox holding the one
// in-flight batch between Stage and Commit. A second Stage while occupied
// fails with ErrBufferNotEmpty. On commit failure the batch is retained for
// operator inspection rather than retried; Drain is the manual recovery
// path.
//
// Together with the controller latch, the buffer's one-batch invariant is
// the entirety of the core's concurrency control: loop invocations are
// run-to-completion and all store mutations are single statements, except
// the stage-commit pair whose atomicity the store's batch transaction
// provides.
//
// # Error Handling
//
// Loop bodies handle every failure locally and never raise to the timers.
// ErrBufferNotEmpty logs at warning and self-resolves next cycle;
// ErrAssignmentFailed logs at error and leaves the batch staged. A fleet
// with no active robots is a normal state, not an error.
//
// # Execution Triggering
//
// After a successful commit the dispatcher fires the TaskRunner once per
// task, detached from the tick's lifetime. Result handling is layered
// elsewhere; the core only triggers.
package fleet
