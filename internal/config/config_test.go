package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"TWIN_API_URL", "REQUEST_TIMEOUT", "LISTEN_ADDR", "DEBOUNCE",
	"DEFAULT_HORIZON", "POSTGRES_URL", "RECORD_SCENARIOS", "LOG_LEVEL",
}

// clearEnv blanks every override; empty values are treated as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "twin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.GetDebounce())
	assert.Equal(t, 20, cfg.Scenario.DefaultHorizon)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 30*time.Minute, cfg.GetSessionTTL())
	assert.False(t, cfg.Storage.RecordScenarios)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
api:
  base_url: http://twin.internal:9000/api
  baseline_cache_ttl: 0s
scenario:
  debounce: 250ms
  default_horizon: 30
server:
  allowed_origins: [https://twin.example.org]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://twin.internal:9000/api", cfg.API.BaseURL)
	assert.Equal(t, time.Duration(0), cfg.GetBaselineCacheTTL())
	assert.Equal(t, 10*time.Minute, cfg.GetLocalitiesCacheTTL(), "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.GetDebounce())
	assert.Equal(t, 30, cfg.Scenario.DefaultHorizon)
	assert.Equal(t, []string{"https://twin.example.org"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "api: [unterminated")

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
api:
  base_url: http://from-file:8000/api
storage:
  postgres_url: postgres://file
`)
	t.Setenv("TWIN_API_URL", "http://from-env:8000/api")
	t.Setenv("RECORD_SCENARIOS", "true")
	t.Setenv("DEFAULT_HORIZON", "not-a-number")
	t.Setenv("DEBOUNCE", "1s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:8000/api", cfg.API.BaseURL)
	assert.Equal(t, "postgres://file", cfg.Storage.PostgresURL)
	assert.True(t, cfg.Storage.RecordScenarios)
	assert.Equal(t, 20, cfg.Scenario.DefaultHorizon, "unparsable ints are ignored")
	assert.Equal(t, time.Second, cfg.GetDebounce())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }, "invalid api base_url"},
		{"bad timeout", func(c *Config) { c.API.Timeout = "soon" }, "invalid api.timeout"},
		{"zero timeout", func(c *Config) { c.API.Timeout = "0s" }, "invalid api.timeout"},
		{"zero cache ttl allowed", func(c *Config) { c.API.LocalitiesCacheTTL = "0s" }, ""},
		{"negative debounce", func(c *Config) { c.Scenario.Debounce = "-1s" }, "invalid scenario.debounce"},
		{"horizon too low", func(c *Config) { c.Scenario.DefaultHorizon = 4 }, "default_horizon"},
		{"horizon too high", func(c *Config) { c.Scenario.DefaultHorizon = 51 }, "default_horizon"},
		{"recording without database", func(c *Config) { c.Storage.RecordScenarios = true }, "requires storage.postgres_url"},
		{"empty listen addr", func(c *Config) { c.Server.ListenAddr = "" }, "listen_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.GetDebounce())
	assert.Equal(t, time.Minute, cfg.GetBaselineCacheTTL())
}
