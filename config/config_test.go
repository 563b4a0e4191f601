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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Locker.UnlockDuration)
	assert.Equal(t, 30*time.Second, cfg.Locker.CardValidity)
	assert.Equal(t, 5*time.Minute, cfg.Remote.Heartbeat)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Len(t, cfg.WashTypes, 3)
	assert.Contains(t, cfg.Locker.RelayPins, "1")
}

func TestLoad_ParsesLockersAndWashTypes(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
locker:
  relay_pins:
    "A": 5
    "B": 6
  unlock_duration: 2
wash_types:
  - id: 7
    name: Express
    price: 3.5
    estimated_time: 30
`))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"A": 5, "B": 6}, cfg.Locker.RelayPins)
	assert.Equal(t, 2*time.Second, cfg.Locker.UnlockDuration)
	require.Len(t, cfg.WashTypes, 1)
	assert.Equal(t, "7", string(cfg.WashTypes[0].ID))
	assert.Equal(t, 30, cfg.WashTypes[0].EstimatedMinutes)
}

func TestSave_RoundTrip(t *testing.T) {
	path := writeConfig(t, "locker:\n  device_name: old\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Locker.DeviceName = "locker-basement"
	require.NoError(t, Save(path, cfg))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "locker-basement", reloaded.Locker.DeviceName)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLockerIDsOrder(t *testing.T) {
	l := LockerConfig{RelayPins: map[string]int{"10": 5, "2": 27, "1": 17, "b": 6, "a": 7}}
	assert.Equal(t, []string{"1", "2", "10", "a", "b"}, l.LockerIDs())
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, cfg.Locker.LockerIDs())
	assert.Equal(t, 5*time.Second, cfg.Locker.UnlockDuration)
	assert.Equal(t, "serial", cfg.Reader.Driver)
	assert.Len(t, cfg.WashTypes, 3)
	assert.False(t, cfg.Push.Enabled())
}
