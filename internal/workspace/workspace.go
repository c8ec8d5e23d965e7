// ABOUTME: Robot workspace initialization from a source directory with robot.yaml
// ABOUTME: Copies the robot package into a per-robot workspace and reads its task names

package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrNoManifest is returned when the source directory has no robot.yaml.
var ErrNoManifest = errors.New("robot.yaml not found")

// ManifestName is the robot package manifest file.
const ManifestName = "robot.yaml"

// Initializer prepares per-robot execution workspaces under a common root.
// Workspace layout: <root>/robot-<id>/ containing a copy of the robot
// package, with robot.yaml at its top level.
type Initializer struct {
	root   string
	logger *slog.Logger
}

// NewInitializer creates an initializer rooted at the given directory.
func NewInitializer(root string, logger *slog.Logger) *Initializer {
	return &Initializer{
		root:   root,
		logger: logger.With("component", "workspace"),
	}
}

// RobotDir returns the workspace directory for the given robot.
func (i *Initializer) RobotDir(robotID string) string {
	return filepath.Join(i.root, "robot-"+robotID)
}

// ManifestPath returns the path of the robot's workspace manifest.
func (i *Initializer) ManifestPath(robotID string) string {
	return filepath.Join(i.RobotDir(robotID), ManifestName)
}

// Initialize builds an execution-ready workspace for the robot from
// sourceDir and returns the manifest-declared task names. An existing
// workspace is wiped first, so initialization is repeatable.
func (i *Initializer) Initialize(robotID, sourceDir string) ([]string, error) {
	manifest := filepath.Join(sourceDir, ManifestName)
	if _, err := os.Stat(manifest); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s", ErrNoManifest, sourceDir)
		}
		return nil, fmt.Errorf("checking manifest: %w", err)
	}

	dest := i.RobotDir(robotID)
	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("cleaning workspace: %w", err)
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	if err := os.CopyFS(dest, os.DirFS(sourceDir)); err != nil {
		return nil, fmt.Errorf("copying robot package: %w", err)
	}

	tasks, err := i.TaskNames(robotID)
	if err != nil {
		return nil, err
	}

	i.logger.Info("workspace initialized", "robot", robotID, "source", sourceDir, "tasks", tasks)
	return tasks, nil
}

// TaskNames reads the task names declared by the robot's workspace manifest,
// in declaration order.
func (i *Initializer) TaskNames(robotID string) ([]string, error) {
	return parseManifestTasks(i.ManifestPath(robotID))
}

// parseManifestTasks extracts the keys of the manifest's tasks mapping,
// preserving document order.
func parseManifestTasks(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNoManifest, path)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest struct {
		Tasks yaml.Node `yaml:"tasks"`
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if manifest.Tasks.Kind != yaml.MappingNode {
		return nil, nil
	}

	// Mapping node content alternates key, value.
	var names []string
	for idx := 0; idx < len(manifest.Tasks.Content); idx += 2 {
		names = append(names, manifest.Tasks.Content[idx].Value)
	}
	return names, nil
}
