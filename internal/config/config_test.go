package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poold.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:1234", cfg.Listen)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.False(t, cfg.Tracing)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().DataDir, cfg.DataDir)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
backend: badger
data_dir: /var/lib/pooldb
lock_timeout: 250ms
log:
  level: debug
  format: text
badger:
  gc_interval: 1m
  gc_discard_ratio: 0.7
  sync_writes: false
tracing: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, BackendBadger, cfg.Backend)
	assert.Equal(t, "/var/lib/pooldb", cfg.DataDir)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, time.Minute, cfg.Badger.GCInterval)
	assert.Equal(t, 0.7, cfg.Badger.GCDiscardRatio)
	assert.False(t, cfg.Badger.SyncWrites)
	assert.True(t, cfg.Tracing)
	// Unset keys keep their defaults
	assert.Equal(t, Default().ShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown key", body: "listen: ':1'\nport: 3\n"},
		{name: "bad yaml", body: "listen: [\n"},
		{name: "bad backend", body: "backend: postgres\n"},
		{name: "bad level", body: "log:\n  level: chatty\n"},
		{name: "negative lock timeout", body: "lock_timeout: -1s\n"},
		{name: "bad discard ratio", body: "badger:\n  gc_discard_ratio: 1.5\n"},
		{name: "no data dir", body: "backend: file\ndata_dir: ''\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestMemoryBackendNeedsNoDataDir(t *testing.T) {
	cfg, err := Load(writeConfig(t, "backend: memory\ndata_dir: ''\n"))
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "listen: ':9000'\nbackend: badger\n")
	t.Setenv(EnvListen, "0.0.0.0:7000")
	t.Setenv(EnvBackend, "memory")
	t.Setenv(EnvLockTimeout, "2s")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogFormat, "auto")
	t.Setenv(EnvTracing, "true")
	t.Setenv(EnvDataDir, "/tmp/pools")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Listen)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.True(t, cfg.Tracing)
	assert.Equal(t, "/tmp/pools", cfg.DataDir)
}

func TestApplyEnvErrors(t *testing.T) {
	tests := map[string]string{
		EnvLockTimeout: "soon",
		EnvTracing:     "maybe",
	}
	for k, v := range tests {
		t.Run(k, func(t *testing.T) {
			cfg := Default()
			err := applyEnv(&cfg, func(name string) string {
				if name == k {
					return v
				}
				return ""
			})
			assert.ErrorContains(t, err, k)
		})
	}
}
