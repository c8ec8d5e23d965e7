// ABOUTME: Manifest watcher that refreshes a robot's cached task list on change
// ABOUTME: Watches workspace robot.yaml files via fsnotify

package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/2389/coven-fleet/internal/store"
)

// Watcher keeps the registry's cached task lists in sync with workspace
// manifests. Editors and re-deploys replace robot.yaml in place; the watcher
// re-parses it on change and updates the registry.
type Watcher struct {
	fsw    *fsnotify.Watcher
	init   *Initializer
	reg    store.Registry
	logger *slog.Logger

	mu     sync.Mutex
	robots map[string]string // watched workspace dir -> robot ID
}

// NewWatcher creates a manifest watcher over the given initializer's
// workspaces.
func NewWatcher(init *Initializer, reg store.Registry, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsw:    fsw,
		init:   init,
		reg:    reg,
		logger: logger.With("component", "manifest-watcher"),
		robots: make(map[string]string),
	}, nil
}

// Watch starts watching the robot's workspace directory. The directory, not
// the manifest file, is watched: tools that replace robot.yaml atomically
// would otherwise detach the watch.
func (w *Watcher) Watch(robotID string) error {
	dir := w.init.RobotDir(robotID)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	w.mu.Lock()
	w.robots[dir] = robotID
	w.mu.Unlock()

	w.logger.Debug("watching workspace", "robot", robotID, "dir", dir)
	return nil
}

// Run processes change events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Base(event.Name) != ManifestName {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}

	w.mu.Lock()
	robotID, ok := w.robots[filepath.Dir(event.Name)]
	w.mu.Unlock()
	if !ok {
		return
	}

	tasks, err := w.init.TaskNames(robotID)
	if err != nil {
		w.logger.Warn("re-parsing changed manifest", "robot", robotID, "error", err)
		return
	}

	if err := w.reg.UpdateAvailableTasks(ctx, robotID, tasks); err != nil {
		w.logger.Error("updating cached tasks", "robot", robotID, "error", err)
		return
	}

	w.logger.Info("refreshed robot tasks", "robot", robotID, "tasks", tasks)
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
