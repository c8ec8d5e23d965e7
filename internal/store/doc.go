// Package store provides persistent storage for the fleet using SQLite.
//
// # Architecture
//
// The store package splits persistence into two interfaces consumed by the
// control core:
//
//   - Registry: robot records, status transitions, liveness queries
//   - Directory: work items, tasks, and their robot associations
//
// SQLiteStore implements both in a single struct, allowing easy composition
// while keeping the interface boundaries clear. The combined Store interface
// adds Close.
//
// # Data Models
//
//   - Robot: a remote execution endpoint; unique network address, status
//     (inactive, active, busy, error), initialized flag, cached task names,
//     last heartbeat timestamp
//   - WorkItem: a unit of pending work, optionally assigned to one robot
//   - Task: a named executable unit derived from a work item
//
// Robots are never deleted. Reaping a disconnected robot flips its status to
// inactive and clears its assignments, returning the work to the unassigned
// pool.
//
// # Liveness
//
// Heartbeats arrive from outside the core through Touch. ListDisconnected
// compares last_seen against a caller-supplied cutoff; the heartbeat
// mechanism itself lives with the robots, not here.
//
// # Assignment Semantics
//
// AssignBatch applies a whole item+task batch in one SQLite transaction; the
// control core relies on that boundary for its all-or-nothing commit.
// ClearAssignments is idempotent: clearing an unassigned record is a no-op.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateAddress: robot address already registered
//   - ErrNoActiveRobots: no active, initialized robot to dispatch to
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests of the control loops; use
// NewSQLiteStore with a temp path for integration tests with real SQLite.
package store
