package workspace

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-fleet/internal/store"
)

func TestWatcher_RefreshesTasksOnManifestChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := store.NewMockStore()
	robot, err := m.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)

	init := NewInitializer(t.TempDir(), slog.Default())
	source := writeRobotPackage(t, "tasks:\n  original: {}\n")

	tasks, err := init.Initialize(robot.ID, source)
	require.NoError(t, err)
	require.NoError(t, m.SetInitialized(ctx, robot.ID, source, tasks))

	watcher, err := NewWatcher(init, m, slog.Default())
	require.NoError(t, err)
	defer watcher.Close()
	require.NoError(t, watcher.Watch(robot.ID))

	done := make(chan struct{})
	go func() {
		defer close(done)
		watcher.Run(ctx)
	}()

	// Redeploy rewrites the workspace manifest.
	require.NoError(t, os.WriteFile(init.ManifestPath(robot.ID),
		[]byte("tasks:\n  original: {}\n  added: {}\n"), 0644))

	assert.Eventually(t, func() bool {
		r, err := m.GetRobot(ctx, robot.ID)
		if err != nil {
			return false
		}
		return len(r.AvailableTasks) == 2
	}, 2*time.Second, 20*time.Millisecond)

	r, err := m.GetRobot(ctx, robot.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"original", "added"}, r.AvailableTasks)

	cancel()
	<-done
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := store.NewMockStore()
	robot, err := m.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)

	init := NewInitializer(t.TempDir(), slog.Default())
	source := writeRobotPackage(t, "tasks:\n  original: {}\n")

	tasks, err := init.Initialize(robot.ID, source)
	require.NoError(t, err)
	require.NoError(t, m.SetInitialized(ctx, robot.ID, source, tasks))

	watcher, err := NewWatcher(init, m, slog.Default())
	require.NoError(t, err)
	defer watcher.Close()
	require.NoError(t, watcher.Watch(robot.ID))

	go watcher.Run(ctx)

	require.NoError(t, os.WriteFile(init.RobotDir(robot.ID)+"/notes.txt", []byte("x"), 0644))

	// Give the watcher a moment; the cached list must not change.
	time.Sleep(200 * time.Millisecond)

	r, err := m.GetRobot(ctx, robot.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"original"}, r.AvailableTasks)
}
