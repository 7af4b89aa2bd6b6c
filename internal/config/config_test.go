package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, 8, cfg.Engine.BulkConcurrency)
	assert.Equal(t, time.Minute, cfg.Engine.SweepInterval)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=ticketing sslmode=disable", cfg.Database.DSN())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("ENGINE_SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ":9090", cfg.Server.Addr())
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Engine.SweepInterval)
}

func TestLoadWithPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ENGINE_MAX_RETRIES=5\nLOG_LEVEL=debug\nSERVER_PORT=7000\n"), 0o600))
	t.Setenv("SERVER_PORT", "7100")

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.MaxRetries)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7100, cfg.Server.Port, "environment wins over the file")

	_, err = LoadWithPath(filepath.Join(dir, "missing.env"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"no retries", func(c *Config) { c.Engine.MaxRetries = 0 }},
		{"no bulk workers", func(c *Config) { c.Engine.BulkConcurrency = 0 }},
		{"no bulk size", func(c *Config) { c.Engine.MaxBulkSize = 0 }},
		{"no sweep interval", func(c *Config) { c.Engine.SweepInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
