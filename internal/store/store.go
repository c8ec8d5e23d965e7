// ABOUTME: Store interfaces and data types for coven-fleet persistence
// ABOUTME: Defines Robot, WorkItem, Task structs and the Registry/Directory interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateAddress is returned when registering a robot whose network
// address is already taken by another robot
var ErrDuplicateAddress = errors.New("robot address already registered")

// ErrNoActiveRobots is returned by LeastLoaded when no robot is both active
// and initialized. This is a normal steady state, not an operator fault.
var ErrNoActiveRobots = errors.New("no active robots")

// Robot status constants
const (
	StatusInactive = "inactive" // not connected, ineligible for work
	StatusActive   = "active"   // connected and idle
	StatusBusy     = "busy"     // connected and executing
	StatusError    = "error"    // connected but faulted
)

// Robot represents a remote execution endpoint capable of running tasks.
// Robots are never hard-deleted: reaping flips status to inactive and
// releases the robot's assignments.
type Robot struct {
	ID             string
	Address        string // network address, unique across the fleet
	Platform       string
	Status         string
	ManifestPath   string // path to the source robot.yaml this robot was initialized from
	Initialized    bool
	AvailableTasks []string
	LastSeen       *time.Time // last heartbeat, nil if never seen
	CreatedAt      time.Time
}

// WorkItem is a unit of pending work awaiting assignment to a robot.
// RobotID is nil while unassigned.
type WorkItem struct {
	ID        string
	Name      string
	Payload   string // opaque JSON payload, not interpreted by the core
	RobotID   *string
	CreatedAt time.Time
}

// Task is a named executable unit derived from a work item. It follows the
// same assignment rules as its parent item.
type Task struct {
	ID        string
	ItemID    string
	Name      string
	RobotID   *string
	CreatedAt time.Time
}

// Registry defines robot record persistence and fleet liveness queries.
//
// Heartbeats arrive from outside the control core via Touch; the registry
// only stores the timestamp and answers ListDisconnected against a cutoff
// the caller derives from its configured timeout.
type Registry interface {
	// Register creates a robot record with status inactive.
	// Returns ErrDuplicateAddress if the address is taken.
	Register(ctx context.Context, address, platform string) (*Robot, error)
	GetRobot(ctx context.Context, id string) (*Robot, error)
	ListRobots(ctx context.Context) ([]*Robot, error)
	SetStatus(ctx context.Context, id, status string) error

	// Touch records a heartbeat for the robot.
	Touch(ctx context.Context, id string, seen time.Time) error

	// SetInitialized marks the robot's workspace as ready and caches the
	// manifest-declared task names.
	SetInitialized(ctx context.Context, id, manifestPath string, tasks []string) error

	// UpdateAvailableTasks refreshes the cached task list for an already
	// initialized robot.
	UpdateAvailableTasks(ctx context.Context, id string, tasks []string) error

	ListActive(ctx context.Context) ([]*Robot, error)

	// ListDisconnected returns robots that should be alive (status active or
	// busy) but whose last heartbeat is older than cutoff, or that have never
	// sent one.
	ListDisconnected(ctx context.Context, cutoff time.Time) ([]*Robot, error)

	// LeastLoaded returns the active, initialized robot with the fewest
	// assigned items. Ties break by registration order, so the result is
	// deterministic. Returns ErrNoActiveRobots when no robot qualifies.
	LeastLoaded(ctx context.Context) (*Robot, error)
}

// Directory defines work item and task persistence and their robot
// associations. AssignBatch must apply the whole batch inside a single
// transaction; the control core relies on that boundary and does not roll
// back partial writes itself.
type Directory interface {
	CreateItem(ctx context.Context, item *WorkItem) error
	CreateTask(ctx context.Context, task *Task) error

	// UnassignedItems returns items with no robot association, oldest first.
	UnassignedItems(ctx context.Context) ([]*WorkItem, error)
	ItemsForRobots(ctx context.Context, robotIDs []string) ([]*WorkItem, error)
	TasksForItems(ctx context.Context, itemIDs []string) ([]*Task, error)

	// ClearAssignments removes the robot association from the given items and
	// tasks. Clearing an already-unassigned record is a no-op, not an error.
	ClearAssignments(ctx context.Context, itemIDs, taskIDs []string) error

	// AssignBatch sets the robot association on every given item and task in
	// one transaction.
	AssignBatch(ctx context.Context, itemIDs, taskIDs []string, robotID string) error
}

// Store combines the registry and directory surfaces backed by one database.
type Store interface {
	Registry
	Directory

	// Close releases any resources held by the store
	Close() error
}
