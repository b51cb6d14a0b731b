package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Game.Bins)
	assert.Equal(t, 19, cfg.Game.R)
	assert.Equal(t, 14, cfg.Game.S)
	assert.Equal(t, "local", cfg.Net.Mode)
}

func TestLoadMergesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "binstretch.yaml")
	text := `
game:
  bins: 3
  r: 4
  s: 3
search:
  task_depth: 2
  task_load: 0
scheduler:
  workers: 2
servers:
  crunchbox:
    state_log_bytes: 30
    guarantee_log_bytes: 30
    workers: 64
`
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Game.R)
	assert.Equal(t, 3, cfg.Game.S)
	assert.Equal(t, 2, cfg.Search.TaskDepth)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
	// Untouched values keep their defaults.
	assert.Equal(t, "mixed", cfg.Search.Boundary)
	assert.Equal(t, 250, cfg.Scheduler.BatchSize)
	assert.Equal(t, 64, cfg.Servers["crunchbox"].Workers)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game:\n  bins: 0\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	path2 := filepath.Join(dir, "bad2.yaml")
	require.NoError(t, os.WriteFile(path2, []byte("net:\n  mode: carrier-pigeon\n"), 0o644))
	_, err = Load(path2)
	assert.Error(t, err)
}

func TestPropertiesForHost(t *testing.T) {
	cfg := DefaultConfig()
	props := cfg.PropertiesForHost()
	assert.Equal(t, cfg.Cache.StateLogBytes, props.StateLogBytes)
	assert.Equal(t, cfg.Scheduler.Workers, props.Workers)

	cfg.Servers["default"] = ServerProperties{StateLogBytes: 20, GuaranteeLogBytes: 21, Workers: 2}
	props = cfg.PropertiesForHost()
	assert.Equal(t, 20, props.StateLogBytes)
	assert.Equal(t, 2, props.Workers)

	host, err := os.Hostname()
	require.NoError(t, err)
	cfg.Servers[host] = ServerProperties{StateLogBytes: 22, GuaranteeLogBytes: 23, Workers: 8}
	props = cfg.PropertiesForHost()
	assert.Equal(t, 8, props.Workers)
}
