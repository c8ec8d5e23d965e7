package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-fleet/internal/store"
)

// newTestController wires a controller over the given mock store with a
// 90-second heartbeat timeout and no task runner.
func newTestController(m *store.MockStore) *Controller {
	assigner := NewAssigner(m, testLogger())
	buffer := NewStagingBuffer(assigner, testLogger())
	health := NewHealthMonitor(m, m, assigner, 90*time.Second, testLogger())
	dispatch := NewDispatcher(m, m, buffer, nil, testLogger())
	return NewController(health, dispatch, testLogger())
}

func TestController_StartsInMonitorMode(t *testing.T) {
	ctrl := newTestController(store.NewMockStore())
	assert.Equal(t, ModeMonitor, ctrl.Mode())
}

func TestController_DispatchTickNoopsInMonitorMode(t *testing.T) {
	m := store.NewMockStore()
	ctx := context.Background()
	ctrl := newTestController(m)

	// Unassigned work and a live robot exist, but the dispatch schedule is
	// not active, so nothing may move.
	seedRobot(t, m, "10.0.0.1")
	seedItem(t, m, "invoice-1")

	ctrl.Tick(ctx, ScheduleDispatch)

	unassigned, err := m.UnassignedItems(ctx)
	require.NoError(t, err)
	assert.Len(t, unassigned, 1)
	assert.Equal(t, ModeMonitor, ctrl.Mode())
}

func TestController_ReapTickNoopsInDispatchMode(t *testing.T) {
	m := store.NewMockStore()
	ctx := context.Background()
	ctrl := newTestController(m)
	ctrl.setMode(ModeDispatch)

	// A disconnected robot exists, but the reap schedule is inactive.
	robot := seedRobot(t, m, "10.0.0.1")
	require.NoError(t, m.Touch(ctx, robot.ID, time.Now().Add(-time.Hour)))

	ctrl.Tick(ctx, ScheduleReap)

	retrieved, err := m.GetRobot(ctx, robot.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, retrieved.Status)
}

func TestController_UnknownScheduleIsIgnored(t *testing.T) {
	ctrl := newTestController(store.NewMockStore())
	ctrl.Tick(context.Background(), "defrag")
	assert.Equal(t, ModeMonitor, ctrl.Mode())
}
