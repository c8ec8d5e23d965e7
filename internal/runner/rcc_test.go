package runner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-fleet/internal/store"
	"github.com/2389/coven-fleet/internal/workspace"
)

// writeFakeRCC writes a shell script standing in for the rcc binary and
// returns its path.
func writeFakeRCC(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-rcc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

// setupRunner registers an initialized robot with a one-task workspace and
// returns the runner pieces.
func setupRunner(t *testing.T, binary string) (*RCCRunner, *store.MockStore, *workspace.Initializer, string) {
	t.Helper()
	ctx := context.Background()

	m := store.NewMockStore()
	robot, err := m.Register(ctx, "10.0.0.1", "linux")
	require.NoError(t, err)

	init := workspace.NewInitializer(t.TempDir(), slog.Default())
	source := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(source, workspace.ManifestName),
		[]byte("tasks:\n  main: {}\n  secondary: {}\n"), 0644))

	tasks, err := init.Initialize(robot.ID, source)
	require.NoError(t, err)
	require.NoError(t, m.SetInitialized(ctx, robot.ID, source, tasks))

	return NewRCCRunner(binary, init, m, slog.Default()), m, init, robot.ID
}

func TestRCCRunner_SuccessfulRun(t *testing.T) {
	binary := writeFakeRCC(t, `echo "task ran"
mkdir -p output
echo '{"processed": 3}' > output/result.json
exit 0
`)
	runner, _, _, robotID := setupRunner(t, binary)

	result, err := runner.Run(context.Background(), robotID, "main", map[string]string{"TASK_ID": "t-1"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "main", result.TaskName)
	assert.Equal(t, 0, result.ReturnCode)
	assert.Contains(t, result.Stdout, "task ran")

	require.Contains(t, result.Artifacts, "result.json")
	parsed := result.Artifacts["result.json"].(map[string]any)
	assert.Equal(t, float64(3), parsed["processed"])
}

func TestRCCRunner_WritesEnvFile(t *testing.T) {
	binary := writeFakeRCC(t, `exit 0`)
	runner, _, init, robotID := setupRunner(t, binary)

	_, err := runner.Run(context.Background(), robotID, "main",
		map[string]string{"TASK_ID": "t-1", "ITEM_ID": "i-1"})
	require.NoError(t, err)

	envFile := filepath.Join(init.RobotDir(robotID), "devdata", "env.json")
	data, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"TASK_ID":"t-1"`)
}

func TestRCCRunner_FailedRun(t *testing.T) {
	binary := writeFakeRCC(t, `echo "boom" >&2
exit 3
`)
	runner, _, _, robotID := setupRunner(t, binary)

	result, err := runner.Run(context.Background(), robotID, "main", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ReturnCode)
	assert.Contains(t, result.Stderr, "boom")
}

func TestRCCRunner_DefaultsToFirstTask(t *testing.T) {
	binary := writeFakeRCC(t, `exit 0`)
	runner, _, _, robotID := setupRunner(t, binary)

	result, err := runner.Run(context.Background(), robotID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "main", result.TaskName)
}

func TestRCCRunner_UninitializedRobot(t *testing.T) {
	binary := writeFakeRCC(t, `exit 0`)
	runner, m, _, _ := setupRunner(t, binary)

	ctx := context.Background()
	raw, err := m.Register(ctx, "10.0.0.2", "linux")
	require.NoError(t, err)

	_, err = runner.Run(ctx, raw.ID, "main", nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRCCRunner_UnknownRobot(t *testing.T) {
	binary := writeFakeRCC(t, `exit 0`)
	runner, _, _, _ := setupRunner(t, binary)

	_, err := runner.Run(context.Background(), "nonexistent", "main", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRCCRunner_SkipsUnparsableArtifacts(t *testing.T) {
	binary := writeFakeRCC(t, `mkdir -p output
echo 'not json' > output/broken.json
echo '{"ok": true}' > output/good.json
exit 0
`)
	runner, _, _, robotID := setupRunner(t, binary)

	result, err := runner.Run(context.Background(), robotID, "main", nil)
	require.NoError(t, err)

	assert.Contains(t, result.Artifacts, "good.json")
	assert.NotContains(t, result.Artifacts, "broken.json")
}
