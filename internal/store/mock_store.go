// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	robots map[string]*Robot
	items  map[string]*WorkItem
	tasks  map[string]*Task

	robotSeq map[string]int // registration order, for deterministic tie-breaks
	itemSeq  map[string]int
	taskSeq  map[string]int
	nextSeq  int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		robots:   make(map[string]*Robot),
		items:    make(map[string]*WorkItem),
		tasks:    make(map[string]*Task),
		robotSeq: make(map[string]int),
		itemSeq:  make(map[string]int),
		taskSeq:  make(map[string]int),
	}
}

// Register creates a robot record with status inactive.
func (m *MockStore) Register(ctx context.Context, address, platform string) (*Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.robots {
		if r.Address == address {
			return nil, ErrDuplicateAddress
		}
	}

	robot := &Robot{
		ID:        uuid.New().String(),
		Address:   address,
		Platform:  platform,
		Status:    StatusInactive,
		CreatedAt: time.Now().UTC(),
	}
	m.robots[robot.ID] = robot
	m.robotSeq[robot.ID] = m.nextSeq
	m.nextSeq++

	result := *robot
	return &result, nil
}

// GetRobot retrieves a robot by ID.
func (m *MockStore) GetRobot(ctx context.Context, id string) (*Robot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.robots[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := *r
	return &result, nil
}

// ListRobots returns all robots in registration order.
func (m *MockStore) ListRobots(ctx context.Context) ([]*Robot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.robotsWhere(func(*Robot) bool { return true }), nil
}

// robotsWhere returns copies of matching robots in registration order.
// Caller must hold the lock.
func (m *MockStore) robotsWhere(keep func(*Robot) bool) []*Robot {
	var robots []*Robot
	for _, r := range m.robots {
		if keep(r) {
			result := *r
			robots = append(robots, &result)
		}
	}
	sort.Slice(robots, func(i, j int) bool {
		return m.robotSeq[robots[i].ID] < m.robotSeq[robots[j].ID]
	})
	return robots
}

// SetStatus updates a robot's status.
func (m *MockStore) SetStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.robots[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	return nil
}

// Touch records a heartbeat timestamp for the robot.
func (m *MockStore) Touch(ctx context.Context, id string, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.robots[id]
	if !ok {
		return ErrNotFound
	}
	t := seen.UTC()
	r.LastSeen = &t
	return nil
}

// SetInitialized marks a robot's workspace as ready.
func (m *MockStore) SetInitialized(ctx context.Context, id, manifestPath string, tasks []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.robots[id]
	if !ok {
		return ErrNotFound
	}
	r.Initialized = true
	r.ManifestPath = manifestPath
	r.AvailableTasks = append([]string(nil), tasks...)
	return nil
}

// UpdateAvailableTasks refreshes the cached task list.
func (m *MockStore) UpdateAvailableTasks(ctx context.Context, id string, tasks []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.robots[id]
	if !ok {
		return ErrNotFound
	}
	r.AvailableTasks = append([]string(nil), tasks...)
	return nil
}

// ListActive returns robots with status active.
func (m *MockStore) ListActive(ctx context.Context) ([]*Robot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.robotsWhere(func(r *Robot) bool { return r.Status == StatusActive }), nil
}

// ListDisconnected returns active/busy robots whose heartbeat predates cutoff.
func (m *MockStore) ListDisconnected(ctx context.Context, cutoff time.Time) ([]*Robot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.robotsWhere(func(r *Robot) bool {
		if r.Status != StatusActive && r.Status != StatusBusy {
			return false
		}
		return r.LastSeen == nil || r.LastSeen.Before(cutoff)
	}), nil
}

// LeastLoaded returns the active, initialized robot with the fewest assigned
// items, ties broken by registration order.
func (m *MockStore) LeastLoaded(ctx context.Context) (*Robot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, item := range m.items {
		if item.RobotID != nil {
			counts[*item.RobotID]++
		}
	}

	candidates := m.robotsWhere(func(r *Robot) bool {
		return r.Status == StatusActive && r.Initialized
	})
	if len(candidates) == 0 {
		return nil, ErrNoActiveRobots
	}

	best := candidates[0]
	for _, r := range candidates[1:] {
		if counts[r.ID] < counts[best.ID] {
			best = r
		}
	}
	return best, nil
}

// CreateItem stores a new work item.
func (m *MockStore) CreateItem(ctx context.Context, item *WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *item
	m.items[copied.ID] = &copied
	m.itemSeq[copied.ID] = m.nextSeq
	m.nextSeq++
	return nil
}

// CreateTask stores a new task.
func (m *MockStore) CreateTask(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *task
	m.tasks[copied.ID] = &copied
	m.taskSeq[copied.ID] = m.nextSeq
	m.nextSeq++
	return nil
}

// itemsWhere returns copies of matching items in creation order.
// Caller must hold the lock.
func (m *MockStore) itemsWhere(keep func(*WorkItem) bool) []*WorkItem {
	var items []*WorkItem
	for _, item := range m.items {
		if keep(item) {
			copied := *item
			items = append(items, &copied)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return m.itemSeq[items[i].ID] < m.itemSeq[items[j].ID]
	})
	return items
}

// UnassignedItems returns items with no robot association.
func (m *MockStore) UnassignedItems(ctx context.Context) ([]*WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemsWhere(func(i *WorkItem) bool { return i.RobotID == nil }), nil
}

// ItemsForRobots returns items assigned to any of the given robots.
func (m *MockStore) ItemsForRobots(ctx context.Context, robotIDs []string) ([]*WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(robotIDs))
	for _, id := range robotIDs {
		wanted[id] = true
	}
	return m.itemsWhere(func(i *WorkItem) bool {
		return i.RobotID != nil && wanted[*i.RobotID]
	}), nil
}

// TasksForItems returns tasks belonging to any of the given items.
func (m *MockStore) TasksForItems(ctx context.Context, itemIDs []string) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}

	var tasks []*Task
	for _, task := range m.tasks {
		if wanted[task.ItemID] {
			copied := *task
			tasks = append(tasks, &copied)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return m.taskSeq[tasks[i].ID] < m.taskSeq[tasks[j].ID]
	})
	return tasks, nil
}

// ClearAssignments removes robot associations from the given items and tasks.
func (m *MockStore) ClearAssignments(ctx context.Context, itemIDs, taskIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range itemIDs {
		if item, ok := m.items[id]; ok {
			item.RobotID = nil
		}
	}
	for _, id := range taskIDs {
		if task, ok := m.tasks[id]; ok {
			task.RobotID = nil
		}
	}
	return nil
}

// AssignBatch sets the robot association on every given item and task.
func (m *MockStore) AssignBatch(ctx context.Context, itemIDs, taskIDs []string, robotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range itemIDs {
		if item, ok := m.items[id]; ok {
			rid := robotID
			item.RobotID = &rid
		}
	}
	for _, id := range taskIDs {
		if task, ok := m.tasks[id]; ok {
			rid := robotID
			task.RobotID = &rid
		}
	}
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
