// Package config handles configuration loading for remsim.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"remsim/internal/api"
	"remsim/internal/archive"
	"remsim/internal/audit"
	"remsim/internal/baseline"
)

// Config holds the complete application configuration.
type Config struct {
	Server     ServerConfig        `yaml:"server"`
	Store      StoreConfig         `yaml:"store"`
	Metrics    MetricsConfig       `yaml:"metrics"`
	Simulation SimulationConfig    `yaml:"simulation"`
	Audit      audit.Config        `yaml:"audit"`
	Archive    archive.Config      `yaml:"archive"`
	RateLimit  api.RateLimitConfig `yaml:"rate_limit"`
	Logging    LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig holds the control-plane store settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig holds the monitoring-store settings the baseline collector
// reads from. Disabled means every simulation fails with baseline data
// unavailable; useful for API development without a ClickHouse instance.
type MetricsConfig struct {
	Enabled    bool                      `yaml:"enabled"`
	ClickHouse baseline.ClickHouseConfig `yaml:"clickhouse"`
	Cache      baseline.CacheConfig      `yaml:"cache"`
}

// SimulationConfig holds the run orchestrator settings.
type SimulationConfig struct {
	DefaultWindowDays int           `yaml:"default_window_days"`
	MaxWindowDays     int           `yaml:"max_window_days"`
	BaselineTimeout   time.Duration `yaml:"baseline_timeout"`
	FinalizeTimeout   time.Duration `yaml:"finalize_timeout"`
	SweeperCeiling    time.Duration `yaml:"sweeper_ceiling"`
	SweeperInterval   time.Duration `yaml:"sweeper_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Production bool   `yaml:"production"`
}

// DefaultConfig returns the default configuration. The defaults run without
// ClickHouse, Redis, Kafka or S3.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Path: "data/remsim.db",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ClickHouse: baseline.DefaultClickHouseConfig(),
			Cache:      baseline.DefaultCacheConfig(),
		},
		Simulation: SimulationConfig{
			DefaultWindowDays: 30,
			MaxWindowDays:     365,
			BaselineTimeout:   30 * time.Second,
			FinalizeTimeout:   10 * time.Second,
			SweeperCeiling:    5 * time.Minute,
			SweeperInterval:   time.Minute,
		},
		Audit:     audit.DefaultConfig(),
		Archive:   archive.DefaultConfig(),
		RateLimit: api.DefaultRateLimitConfig(),
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Production: false,
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("REMSIM_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("REMSIM_HTTP_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.HTTPPort)
	}

	if level := os.Getenv("REMSIM_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if prod := os.Getenv("REMSIM_PRODUCTION"); prod == "true" {
		c.Logging.Production = true
	}

	if path := os.Getenv("REMSIM_STORE_PATH"); path != "" {
		c.Store.Path = path
	}

	// Monitoring store settings
	if enabled := os.Getenv("REMSIM_METRICS_ENABLED"); enabled == "true" {
		c.Metrics.Enabled = true
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Metrics.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Metrics.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Metrics.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Metrics.ClickHouse.Password = pass
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Metrics.Cache.Enabled = true
		c.Metrics.Cache.Addr = addr
	}

	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		c.Metrics.Cache.Password = pass
	}

	// Audit settings
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Audit.Enabled = true
		c.Audit.Brokers = splitAndTrim(brokers, ",")
	}

	// Rate limit settings
	if enabled := os.Getenv("REMSIM_RATELIMIT_ENABLED"); enabled == "false" {
		c.RateLimit.Enabled = false
	}

	if rps := os.Getenv("REMSIM_RATELIMIT_RPS"); rps != "" {
		fmt.Sscanf(rps, "%d", &c.RateLimit.RequestsPerIP)
	}
}

// splitAndTrim splits a string by separator and drops empty parts.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	if c.Simulation.DefaultWindowDays < 1 {
		return fmt.Errorf("default_window_days must be positive")
	}

	if c.Simulation.MaxWindowDays < c.Simulation.DefaultWindowDays {
		return fmt.Errorf("max_window_days must be at least default_window_days")
	}

	if c.Simulation.SweeperCeiling <= 0 {
		return fmt.Errorf("sweeper_ceiling must be positive")
	}

	if c.Metrics.Enabled && len(c.Metrics.ClickHouse.Hosts) == 0 {
		return fmt.Errorf("at least one clickhouse host is required when metrics are enabled")
	}

	if err := c.Audit.Validate(); err != nil {
		return err
	}

	return c.Archive.Validate()
}
