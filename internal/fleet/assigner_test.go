package fleet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-fleet/internal/store"
)

func TestAssigner_AssignSetsAssociations(t *testing.T) {
	m := store.NewMockStore()
	ctx := context.Background()
	assigner := NewAssigner(m, testLogger())
	robot := seedRobot(t, m, "10.0.0.1")
	item, task := seedItem(t, m, "invoice-1")

	batch := &Batch{Items: []*store.WorkItem{item}, Tasks: []*store.Task{task}}
	require.NoError(t, assigner.Assign(ctx, batch, robot))

	items, err := m.ItemsForRobots(ctx, []string{robot.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)

	tasks, err := m.TasksForItems(ctx, []string{item.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].RobotID)
	assert.Equal(t, robot.ID, *tasks[0].RobotID)
}

func TestAssigner_UnassignIsIdempotent(t *testing.T) {
	m := store.NewMockStore()
	ctx := context.Background()
	assigner := NewAssigner(m, testLogger())
	robot := seedRobot(t, m, "10.0.0.1")
	item, task := seedItem(t, m, "invoice-1")

	batch := &Batch{Items: []*store.WorkItem{item}, Tasks: []*store.Task{task}}
	require.NoError(t, assigner.Assign(ctx, batch, robot))

	require.NoError(t, assigner.Unassign(ctx, batch))
	first, err := m.UnassignedItems(ctx)
	require.NoError(t, err)

	// A second unassign of the same batch leaves the exact same state.
	require.NoError(t, assigner.Unassign(ctx, batch))
	second, err := m.UnassignedItems(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, second, 1)
	assert.Nil(t, second[0].RobotID)
}
