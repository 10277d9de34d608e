package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitqr/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "splitqr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.LoadWith(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.True(t, cfg.UsesDevSecret())
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  seed_sample: false
  shutdown_timeout: 3s
store:
  backend: memory
auth:
  jwt_secret: a-much-longer-secret-value
  token_ttl: 1h
log:
  level: debug
  format: json
`)
	cfg, err := config.LoadWith(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.False(t, cfg.Server.SeedSample)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.UsesDevSecret())
	// Unset sections keep their defaults.
	assert.Equal(t, "http://localhost:8080", cfg.Client.Server)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `{{{invalid yaml`)
	_, err := config.LoadWith(path, env(nil))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: memory
`)
	cfg, err := config.LoadWith(path, env(map[string]string{
		"SPLITQR_STORE":        "postgres",
		"SPLITQR_POSTGRES_DSN": "postgres://localhost/splitqr",
		"LOG_LEVEL":            "warn",
		"SPLITQR_SEED":         "false",
		"SPLITQR_TOKEN_TTL":    "30m",
		"SPLITQR_BILL":         "T7",
		"SPLITQR_TOKEN_FILE":   "/tmp/splitqr-token",
		"SPLITQR_ADDR":         "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/splitqr", cfg.Store.PostgresDSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Server.SeedSample)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "T7", cfg.Client.BillID)
	assert.Equal(t, "/tmp/splitqr-token", cfg.Client.TokenFile)
	assert.Equal(t, ":8080", cfg.Server.Addr, "empty values do not override")
}

func TestLoad_BadEnv(t *testing.T) {
	_, err := config.LoadWith("", env(map[string]string{"SPLITQR_SEED": "maybe"}))
	assert.ErrorContains(t, err, "SPLITQR_SEED")

	_, err = config.LoadWith("", env(map[string]string{"SPLITQR_TOKEN_TTL": "forever"}))
	assert.ErrorContains(t, err, "SPLITQR_TOKEN_TTL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown backend", func(c *config.Config) { c.Store.Backend = "redis" }},
		{"postgres without dsn", func(c *config.Config) { c.Store.Backend = "postgres" }},
		{"sqlite without path", func(c *config.Config) { c.Store.SQLitePath = "" }},
		{"short secret", func(c *config.Config) { c.Auth.JWTSecret = "short" }},
		{"zero ttl", func(c *config.Config) { c.Auth.TokenTTL = 0 }},
		{"bad level", func(c *config.Config) { c.Log.Level = "verbose" }},
		{"bad format", func(c *config.Config) { c.Log.Format = "xml" }},
		{"bad server url", func(c *config.Config) { c.Client.Server = "not a url" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, config.Default().Validate())
}
