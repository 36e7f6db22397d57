package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	minHorizon = 5
	maxHorizon = 50
)

// Config holds twin service configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Server   ServerConfig   `yaml:"server"`
	Scenario ScenarioConfig `yaml:"scenario"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig configures the digital twin backend.
type APIConfig struct {
	BaseURL            string `yaml:"base_url"`
	Timeout            string `yaml:"timeout"`
	LocalitiesCacheTTL string `yaml:"localities_cache_ttl"` // "0s" disables
	BaselineCacheTTL   string `yaml:"baseline_cache_ttl"`   // "0s" disables
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	SessionTTL     string   `yaml:"session_ttl"`
}

type ScenarioConfig struct {
	Debounce       string `yaml:"debounce"`
	DefaultHorizon int    `yaml:"default_horizon"`
}

type StorageConfig struct {
	PostgresURL     string `yaml:"postgres_url"`
	RecordScenarios bool   `yaml:"record_scenarios"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:            "http://localhost:8000/api",
			Timeout:            "10s",
			LocalitiesCacheTTL: "10m",
			BaselineCacheTTL:   "1m",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
			},
			SessionTTL: "30m",
		},
		Scenario: ScenarioConfig{
			Debounce:       "500ms",
			DefaultHorizon: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file and applies environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.API.BaseURL = getEnvWithDefault("TWIN_API_URL", c.API.BaseURL)
	c.API.Timeout = getEnvWithDefault("REQUEST_TIMEOUT", c.API.Timeout)
	c.Server.ListenAddr = getEnvWithDefault("LISTEN_ADDR", c.Server.ListenAddr)
	c.Scenario.Debounce = getEnvWithDefault("DEBOUNCE", c.Scenario.Debounce)
	c.Scenario.DefaultHorizon = getEnvAsInt("DEFAULT_HORIZON", c.Scenario.DefaultHorizon)
	c.Storage.PostgresURL = getEnvWithDefault("POSTGRES_URL", c.Storage.PostgresURL)
	c.Storage.RecordScenarios = getEnvAsBool("RECORD_SCENARIOS", c.Storage.RecordScenarios)
	c.Logging.Level = getEnvWithDefault("LOG_LEVEL", c.Logging.Level)
}

func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.API.Timeout, 10*time.Second)
}

func (c *Config) GetDebounce() time.Duration {
	return parseDuration(c.Scenario.Debounce, 500*time.Millisecond)
}

func (c *Config) GetLocalitiesCacheTTL() time.Duration {
	return parseDuration(c.API.LocalitiesCacheTTL, 10*time.Minute)
}

func (c *Config) GetBaselineCacheTTL() time.Duration {
	return parseDuration(c.API.BaselineCacheTTL, time.Minute)
}

func (c *Config) GetSessionTTL() time.Duration {
	return parseDuration(c.Server.SessionTTL, 30*time.Minute)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api base_url %q", c.API.BaseURL)
	}

	durations := []struct {
		name     string
		value    string
		positive bool
	}{
		{"api.timeout", c.API.Timeout, true},
		{"api.localities_cache_ttl", c.API.LocalitiesCacheTTL, false},
		{"api.baseline_cache_ttl", c.API.BaselineCacheTTL, false},
		{"server.session_ttl", c.Server.SessionTTL, true},
		{"scenario.debounce", c.Scenario.Debounce, false},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if v < 0 || (d.positive && v == 0) {
			return fmt.Errorf("invalid %s: %s", d.name, d.value)
		}
	}

	if c.Scenario.DefaultHorizon < minHorizon || c.Scenario.DefaultHorizon > maxHorizon {
		return fmt.Errorf("invalid scenario.default_horizon %d (must be in [%d, %d])",
			c.Scenario.DefaultHorizon, minHorizon, maxHorizon)
	}
	if c.Storage.RecordScenarios && c.Storage.PostgresURL == "" {
		return fmt.Errorf("storage.record_scenarios requires storage.postgres_url (or POSTGRES_URL)")
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is empty")
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
