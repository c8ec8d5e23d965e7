package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a temp config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/coven-fleet/fleet.db
robots:
  workspace_path: /var/lib/coven-fleet/workspaces
  rcc_binary: /usr/local/bin/rcc
  heartbeat_timeout: 2m
  watch_manifests: true
loops:
  dispatch_interval: 30s
  reap_interval: 5m
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/coven-fleet/fleet.db", cfg.Database.Path)
	assert.Equal(t, "/usr/local/bin/rcc", cfg.Robots.RCCBinary)
	assert.True(t, cfg.Robots.WatchManifests)
	assert.Equal(t, 2*time.Minute, cfg.Robots.HeartbeatTimeout)
	assert.Equal(t, 30*time.Second, cfg.Loops.DispatchInterval)
	assert.Equal(t, 5*time.Minute, cfg.Loops.ReapInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/fleet.db
robots:
  workspace_path: /tmp/workspaces
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultRCCBinary, cfg.Robots.RCCBinary)
	assert.Equal(t, DefaultHeartbeatTimeout, cfg.Robots.HeartbeatTimeout)
	assert.Equal(t, DefaultDispatchInterval, cfg.Loops.DispatchInterval)
	assert.Equal(t, DefaultReapInterval, cfg.Loops.ReapInterval)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("FLEET_DB_PATH", "/data/fleet.db")

	path := writeConfig(t, `
database:
  path: ${FLEET_DB_PATH}
robots:
  workspace_path: /tmp/workspaces
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/fleet.db", cfg.Database.Path)
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	path := writeConfig(t, `
robots:
  workspace_path: /tmp/workspaces
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "database.path is required")
}

func TestLoad_MissingWorkspacePath(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/fleet.db
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "robots.workspace_path is required")
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/fleet.db
robots:
  workspace_path: /tmp/workspaces
  heartbeat_timeout: ninety seconds
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "heartbeat_timeout")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/fleet.yaml")
	assert.Error(t, err)
}
