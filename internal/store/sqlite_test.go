package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// addItem creates an unassigned work item with a generated ID.
func addItem(t *testing.T, s Store, name string) *WorkItem {
	t.Helper()
	item := &WorkItem{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateItem(context.Background(), item))
	return item
}

// addTask creates an unassigned task under the given item.
func addTask(t *testing.T, s Store, itemID, name string) *Task {
	t.Helper()
	task := &Task{
		ID:        uuid.New().String(),
		ItemID:    itemID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateTask(context.Background(), task))
	return task
}

func TestStore_Register(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	robot, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)
	assert.NotEmpty(t, robot.ID)
	assert.Equal(t, "10.0.0.1", robot.Address)
	assert.Equal(t, StatusInactive, robot.Status)
	assert.False(t, robot.Initialized)

	retrieved, err := store.GetRobot(ctx, robot.ID)
	require.NoError(t, err)
	assert.Equal(t, robot.Address, retrieved.Address)
	assert.Nil(t, retrieved.LastSeen)
}

func TestStore_Register_DuplicateAddress(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)

	_, err = store.Register(ctx, "10.0.0.1", "windows")
	assert.ErrorIs(t, err, ErrDuplicateAddress)
}

func TestStore_GetRobot_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRobot(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetStatus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	robot, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(ctx, robot.ID, StatusActive))

	retrieved, err := store.GetRobot(ctx, robot.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, retrieved.Status)

	assert.ErrorIs(t, store.SetStatus(ctx, "nonexistent", StatusActive), ErrNotFound)
}

func TestStore_Touch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	robot, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)

	seen := time.Now().UTC()
	require.NoError(t, store.Touch(ctx, robot.ID, seen))

	retrieved, err := store.GetRobot(ctx, robot.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved.LastSeen)
	assert.WithinDuration(t, seen, *retrieved.LastSeen, time.Second)
}

func TestStore_SetInitialized(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	robot, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)

	tasks := []string{"extract", "transform"}
	require.NoError(t, store.SetInitialized(ctx, robot.ID, "/robots/invoicing", tasks))

	retrieved, err := store.GetRobot(ctx, robot.ID)
	require.NoError(t, err)
	assert.True(t, retrieved.Initialized)
	assert.Equal(t, "/robots/invoicing", retrieved.ManifestPath)
	assert.Equal(t, tasks, retrieved.AvailableTasks)
}

func TestStore_UpdateAvailableTasks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	robot, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)
	require.NoError(t, store.SetInitialized(ctx, robot.ID, "/robots/invoicing", []string{"extract"}))

	require.NoError(t, store.UpdateAvailableTasks(ctx, robot.ID, []string{"extract", "report"}))

	retrieved, err := store.GetRobot(ctx, robot.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"extract", "report"}, retrieved.AvailableTasks)
}

func TestStore_ListDisconnected(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Active with a fresh heartbeat: alive.
	fresh, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, fresh.ID, StatusActive))
	require.NoError(t, store.Touch(ctx, fresh.ID, time.Now().UTC()))

	// Busy with a stale heartbeat: disconnected.
	stale, err := store.Register(ctx, "10.0.0.2", "linux")
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, stale.ID, StatusBusy))
	require.NoError(t, store.Touch(ctx, stale.ID, time.Now().UTC().Add(-10*time.Minute)))

	// Active but never seen: disconnected.
	never, err := store.Register(ctx, "10.0.0.3", "linux")
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, never.ID, StatusActive))

	// Inactive robots are not the health monitor's business.
	idle, err := store.Register(ctx, "10.0.0.4", "linux")
	require.NoError(t, err)
	_ = idle

	cutoff := time.Now().UTC().Add(-90 * time.Second)
	disconnected, err := store.ListDisconnected(ctx, cutoff)
	require.NoError(t, err)

	ids := make([]string, len(disconnected))
	for i, r := range disconnected {
		ids[i] = r.ID
	}
	assert.ElementsMatch(t, []string{stale.ID, never.ID}, ids)
}

func TestStore_LeastLoaded(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Three active, initialized robots with loads 2, 2, 1.
	robots := make([]*Robot, 3)
	for i := range robots {
		robot, err := store.Register(ctx, fmt.Sprintf("10.0.0.%d", i+1), "linux")
		require.NoError(t, err)
		require.NoError(t, store.SetStatus(ctx, robot.ID, StatusActive))
		require.NoError(t, store.SetInitialized(ctx, robot.ID, "/robots/r", []string{"main"}))
		robots[i] = robot
	}

	loads := []int{2, 2, 1}
	for i, robot := range robots {
		for j := 0; j < loads[i]; j++ {
			item := addItem(t, store, fmt.Sprintf("item-%d-%d", i, j))
			require.NoError(t, store.AssignBatch(ctx, []string{item.ID}, nil, robot.ID))
		}
	}

	least, err := store.LeastLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, robots[2].ID, least.ID)
}

func TestStore_LeastLoaded_TieBreaksByRegistrationOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)
	second, err := store.Register(ctx, "10.0.0.2", "linux")
	require.NoError(t, err)

	for _, robot := range []*Robot{first, second} {
		require.NoError(t, store.SetStatus(ctx, robot.ID, StatusActive))
		require.NoError(t, store.SetInitialized(ctx, robot.ID, "/robots/r", []string{"main"}))

		item := addItem(t, store, "item-"+robot.Address)
		require.NoError(t, store.AssignBatch(ctx, []string{item.ID}, nil, robot.ID))
	}

	least, err := store.LeastLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, least.ID, "tie should break by registration order")
}

func TestStore_LeastLoaded_ExcludesUninitialized(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	robot, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, robot.ID, StatusActive))

	// Active but workspace never initialized: not a dispatch candidate.
	_, err = store.LeastLoaded(ctx)
	assert.ErrorIs(t, err, ErrNoActiveRobots)
}

func TestStore_LeastLoaded_NoActiveRobots(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.LeastLoaded(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveRobots)
}

func TestStore_UnassignedItems(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	robot, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)

	free := addItem(t, store, "free")
	taken := addItem(t, store, "taken")
	require.NoError(t, store.AssignBatch(ctx, []string{taken.ID}, nil, robot.ID))

	items, err := store.UnassignedItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, free.ID, items[0].ID)
}

func TestStore_AssignBatch_AndClear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	robot, err := store.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)

	item := addItem(t, store, "item")
	task := addTask(t, store, item.ID, "extract")

	require.NoError(t, store.AssignBatch(ctx, []string{item.ID}, []string{task.ID}, robot.ID))

	items, err := store.ItemsForRobots(ctx, []string{robot.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].RobotID)
	assert.Equal(t, robot.ID, *items[0].RobotID)

	tasks, err := store.TasksForItems(ctx, []string{item.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].RobotID)
	assert.Equal(t, robot.ID, *tasks[0].RobotID)

	// Clear twice: second pass must be a no-op, not an error.
	require.NoError(t, store.ClearAssignments(ctx, []string{item.ID}, []string{task.ID}))
	require.NoError(t, store.ClearAssignments(ctx, []string{item.ID}, []string{task.ID}))

	unassigned, err := store.UnassignedItems(ctx)
	require.NoError(t, err)
	assert.Len(t, unassigned, 1)

	tasks, err = store.TasksForItems(ctx, []string{item.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Nil(t, tasks[0].RobotID)
}

func TestStore_ItemsForRobots_Empty(t *testing.T) {
	store := setupTestStore(t)

	items, err := store.ItemsForRobots(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}
