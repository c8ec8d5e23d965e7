// ABOUTME: Out-of-process task execution via the rcc command-line tool
// ABOUTME: Runs a workspace task and collects JSON artifacts from its output directory

package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/2389/coven-fleet/internal/store"
	"github.com/2389/coven-fleet/internal/workspace"
)

// ErrNotInitialized is returned when a run is requested for a robot whose
// workspace has not been initialized.
var ErrNotInitialized = errors.New("robot workspace not initialized")

// ErrNoTasks is returned when no task name is given and the workspace
// manifest declares none.
var ErrNoTasks = errors.New("no tasks declared in robot manifest")

// Result describes one out-of-process task run.
type Result struct {
	Success    bool
	TaskName   string
	Stdout     string
	Stderr     string
	ReturnCode int

	// Artifacts maps output JSON filenames to their parsed contents.
	Artifacts map[string]any
}

// RCCRunner executes workspace tasks through the rcc binary. The run is
// synchronous at this level; the dispatch loop detaches it with Launch.
type RCCRunner struct {
	binary     string
	workspaces *workspace.Initializer
	registry   store.Registry
	logger     *slog.Logger
}

// NewRCCRunner creates a runner invoking the given rcc binary.
func NewRCCRunner(binary string, workspaces *workspace.Initializer, registry store.Registry, logger *slog.Logger) *RCCRunner {
	return &RCCRunner{
		binary:     binary,
		workspaces: workspaces,
		registry:   registry,
		logger:     logger.With("component", "rcc-runner"),
	}
}

// Run executes taskName in the robot's workspace with the given environment
// variables and returns the run result. An empty taskName runs the first
// manifest-declared task. The robot must pass the initialized gate.
func (r *RCCRunner) Run(ctx context.Context, robotID, taskName string, env map[string]string) (*Result, error) {
	robot, err := r.registry.GetRobot(ctx, robotID)
	if err != nil {
		return nil, fmt.Errorf("looking up robot: %w", err)
	}
	if !robot.Initialized {
		return nil, fmt.Errorf("%w: robot %s", ErrNotInitialized, robotID)
	}

	robotDir := r.workspaces.RobotDir(robotID)
	manifestPath := r.workspaces.ManifestPath(robotID)
	if _, err := os.Stat(manifestPath); err != nil {
		return nil, fmt.Errorf("workspace manifest missing for robot %s: %w", robotID, err)
	}

	if taskName == "" {
		tasks, err := r.workspaces.TaskNames(robotID)
		if err != nil {
			return nil, err
		}
		if len(tasks) == 0 {
			return nil, ErrNoTasks
		}
		taskName = tasks[0]
	}

	args := []string{"run", "--robot", manifestPath, "--task", taskName}

	if len(env) > 0 {
		envFile, err := writeEnvFile(robotDir, env)
		if err != nil {
			return nil, err
		}
		args = append(args, "--environment", envFile)
	}

	r.logger.Info("running rcc task", "robot", robotID, "task", taskName)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = robotDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := &Result{
		TaskName: taskName,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("running rcc: %w", runErr)
		}
		result.ReturnCode = exitErr.ExitCode()
	}
	result.Success = result.ReturnCode == 0

	if !result.Success {
		r.logger.Error("rcc task failed",
			"robot", robotID,
			"task", taskName,
			"return_code", result.ReturnCode,
			"stderr", result.Stderr,
		)
	}

	result.Artifacts = r.collectArtifacts(robotDir)
	return result, nil
}

// Launch runs the task and logs the outcome, discarding the result. It
// satisfies the dispatch loop's fire-and-forget runner interface.
func (r *RCCRunner) Launch(ctx context.Context, robotID, taskName string, env map[string]string) error {
	result, err := r.Run(ctx, robotID, taskName, env)
	if err != nil {
		return err
	}

	if result.Success {
		r.logger.Info("rcc task completed", "robot", robotID, "task", result.TaskName)
	}
	return nil
}

// writeEnvFile stores the environment variables as devdata/env.json inside
// the workspace, the location rcc expects.
func writeEnvFile(robotDir string, env map[string]string) (string, error) {
	devdata := filepath.Join(robotDir, "devdata")
	if err := os.MkdirAll(devdata, 0755); err != nil {
		return "", fmt.Errorf("creating devdata directory: %w", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encoding environment: %w", err)
	}

	envFile := filepath.Join(devdata, "env.json")
	if err := os.WriteFile(envFile, data, 0644); err != nil {
		return "", fmt.Errorf("writing environment file: %w", err)
	}

	return envFile, nil
}

// collectArtifacts parses every JSON file directly under the workspace
// output directory. Unparsable files are logged and skipped.
func (r *RCCRunner) collectArtifacts(robotDir string) map[string]any {
	outputDir := filepath.Join(robotDir, "output")
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil
	}

	artifacts := make(map[string]any)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(outputDir, entry.Name()))
		if err != nil {
			r.logger.Warn("reading artifact", "file", entry.Name(), "error", err)
			continue
		}

		var parsed any
		if err := json.Unmarshal(data, &parsed); err != nil {
			r.logger.Warn("parsing artifact", "file", entry.Name(), "error", err)
			continue
		}
		artifacts[entry.Name()] = parsed
	}

	if len(artifacts) == 0 {
		return nil
	}
	return artifacts
}
