package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opsrcon/rcond/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefaultInsecureMode(t *testing.T) {
	_, ok, err := Default().CredentialRecord()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadFromYAMLFile(t *testing.T) {
	record, err := auth.Hash("hunter2")
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "rcond.yaml")
	content := "host: 0.0.0.0\nport: 25580\nmax_connections: 3\ncredential: \"" + record.Encode() + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 25580, cfg.Port)
	assert.Equal(t, 3, cfg.MaxConnections)
	// Unspecified fields keep their defaults.
	assert.Equal(t, Default().MaxFrameSize, cfg.MaxFrameSize)

	stored, ok, err := cfg.CredentialRecord()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, auth.Verify("hunter2", stored))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("RCON_PORT", "26000")
	t.Setenv("RCON_MAX_CONNECTIONS", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 26000, cfg.Port)
	assert.Equal(t, 2, cfg.MaxConnections)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Port = 27000
	cfg.MaxConnections = 7

	path := filepath.Join(t.TempDir(), "rcond.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Port, loaded.Port)
	assert.Equal(t, cfg.MaxConnections, loaded.MaxConnections)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Port = 0 },
		func(c *Config) { c.Port = -1 },
		func(c *Config) { c.Port = 70000 },
		func(c *Config) { c.MaxConnections = 0 },
		func(c *Config) { c.MaxFrameSize = 0 },
		func(c *Config) { c.ReadTimeoutMs = 0 },
		func(c *Config) { c.AcceptTimeoutMs = 0 },
		func(c *Config) { c.Host = "" },
		func(c *Config) { c.Credential = "no-separator" },
	}
	for _, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		assert.Error(t, cfg.Validate())
	}
}
