package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingConfigFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Daemon.Store.Driver)
	assert.Equal(t, 3, s.Daemon.Notify.DeviceDisconnectThreshold)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("daemon:\n  store:\n    driver: mysql\n    dsn: user:pass@/undertone\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", s.Daemon.Store.Driver)
	assert.Equal(t, "user:pass@/undertone", s.Daemon.Store.DSN)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	s := defaultSettings()
	s.Daemon.Store.Driver = "postgres"
	assert.Error(t, Validate(s))
}

func TestSocketPathFallsBackToXDGRuntimeDir(t *testing.T) {
	s := defaultSettings()
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/undertone/daemon.sock", s.SocketPath())
}
