package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hadra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
}

func TestLoadFromFileKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
storage:
  driver: sqlite
  path: /var/lib/hadra
auth:
  session_ttl: 2h
media:
  encode_timeout: 5s
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/hadra", cfg.Storage.Path)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.Media.EncodeTimeout)
	assert.Equal(t, "dev-secret-change-me", cfg.Auth.JWTSecret)
	assert.Equal(t, "5432", cfg.Storage.Postgres.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: sqlite\n")
	t.Setenv("HADRA_STORAGE_DRIVER", "memory")
	t.Setenv("HADRA_PORT", "7000")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("HADRA_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "db.internal", cfg.Storage.Postgres.Host)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }, want: "storage.driver"},
		{name: "file without path", mutate: func(c *Config) { c.Storage.Path = "" }, want: "storage.path"},
		{name: "empty secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, want: "auth.jwt_secret"},
		{name: "zero ttl", mutate: func(c *Config) { c.Auth.SessionTTL = 0 }, want: "auth.session_ttl"},
		{name: "zero encode timeout", mutate: func(c *Config) { c.Media.EncodeTimeout = 0 }, want: "media.encode_timeout"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, want: "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	memory := DefaultConfig()
	memory.Storage.Driver = DriverMemory
	memory.Storage.Path = ""
	assert.NoError(t, memory.Validate(), "memory needs no path")
}

func TestSaveToFileRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = DriverPostgres
	cfg.Media.EncodeTimeout = 90 * time.Second
	path := filepath.Join(t.TempDir(), "nested", "hadra.yaml")

	require.NoError(t, cfg.SaveToFile(path))
	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
