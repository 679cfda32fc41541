package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Second, cfg.Demux.Timeout())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.Contains(t, cfg.Callstack.ExcludePrefixes, "runtime.")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracekit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
demux:
  timeout_seconds: 30
logging:
  level: debug
  development: true
callstack:
  exclude_prefixes: ["runtime.", "testing."]
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Demux.Timeout())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, []string{"runtime.", "testing."}, cfg.Callstack.ExcludePrefixes)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracekit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging: ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRACEKIT_LOG_LEVEL", "warn")
	t.Setenv("TRACEKIT_LOG_DEV", "true")
	t.Setenv("TRACEKIT_DEMUX_TIMEOUT", "60")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 60*time.Second, cfg.Demux.Timeout())
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Demux.TimeoutSeconds = 12

	path := filepath.Join(t.TempDir(), "sub", "tracekit.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Demux.TimeoutSeconds)
}
