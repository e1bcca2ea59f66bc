package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the automation service.
type Config struct {
	// Server configures the HTTP listener (ingest endpoint, live updates,
	// metrics).
	Server ServerConfig `yaml:"server"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Database configures the relational store.
	Database DatabaseConfig `yaml:"database"`

	// Cache configures the group rule cache.
	Cache CacheConfig `yaml:"cache"`

	// TimeSeries configures the historical readings store.
	TimeSeries TimeSeriesConfig `yaml:"timeseries"`

	// Dispatcher configures the periodic re-evaluation cadence.
	Dispatcher DispatcherConfig `yaml:"dispatcher"`

	// Engine configures rule evaluation behavior.
	Engine EngineConfig `yaml:"engine"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// MetricsPath is the Prometheus scrape path.
	MetricsPath string `yaml:"metrics_path"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the output format ("json", "text").
	Format string `yaml:"format"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait for locks before failing.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// CacheConfig configures the group rule cache.
type CacheConfig struct {
	// Backend selects the cache backend ("memory" or "redis").
	Backend string `yaml:"backend"`

	// RedisAddr is the redis host:port (redis backend only).
	RedisAddr string `yaml:"redis_addr"`

	// RedisDB is the redis database index.
	RedisDB int `yaml:"redis_db"`

	// RulesTTL bounds how long a group's effective rule list is cached.
	RulesTTL time.Duration `yaml:"rules_ttl"`

	// NotFoundTTL bounds how long a missing group's empty list is cached.
	NotFoundTTL time.Duration `yaml:"not_found_ttl"`
}

// TimeSeriesConfig configures the historical readings store.
type TimeSeriesConfig struct {
	// Backend selects the reader ("memory" or "influx").
	Backend string `yaml:"backend"`

	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`

	// QueryTimeout bounds each time-series query. Timeouts degrade to
	// "condition not met", never to a failure of the caller.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// DispatcherConfig configures the periodic re-evaluation cadence.
type DispatcherConfig struct {
	// RuleCheckSchedule is the cron expression for per-group schedule-rule
	// checks.
	RuleCheckSchedule string `yaml:"rule_check_schedule"`

	// ProgressSchedule is the cron expression for schedule progress
	// recomputation.
	ProgressSchedule string `yaml:"progress_schedule"`
}

// EngineConfig configures rule evaluation behavior.
type EngineConfig struct {
	// ScheduleWindow is the width of the activation window that begins at a
	// schedule initiator's configured HH:MM.
	ScheduleWindow time.Duration `yaml:"schedule_window"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsPath: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:        "vceljak.db",
			BusyTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			Backend:     "memory",
			RedisAddr:   "localhost:6379",
			RulesTTL:    10 * time.Minute,
			NotFoundTTL: 2 * time.Minute,
		},
		TimeSeries: TimeSeriesConfig{
			Backend:      "memory",
			URL:          "http://localhost:8086",
			Org:          "vceljak",
			Bucket:       "sensor_data",
			QueryTimeout: 20 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			RuleCheckSchedule: "* * * * *",
			ProgressSchedule:  "*/5 * * * *",
		},
		Engine: EngineConfig{
			ScheduleWindow: 10 * time.Second,
		},
	}
}

// Load reads the configuration file at path, merges it over the defaults and
// applies environment overrides. An empty path returns the defaults with
// environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides file values with environment variables for the
// settings that carry secrets or differ per deployment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VCELJAK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("VCELJAK_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("INFLUXDB_URL"); v != "" {
		cfg.TimeSeries.URL = v
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.TimeSeries.Token = v
	}
	if v := os.Getenv("INFLUXDB_ORG"); v != "" {
		cfg.TimeSeries.Org = v
	}
	if v := os.Getenv("INFLUXDB_BUCKET"); v != "" {
		cfg.TimeSeries.Bucket = v
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []string

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level: unknown level %q", c.Logging.Level))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("logging.format: unknown format %q", c.Logging.Format))
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		errs = append(errs, "cache.redis_addr: required for redis backend")
	}
	if c.Cache.RulesTTL <= 0 {
		errs = append(errs, "cache.rules_ttl: must be positive")
	}

	switch c.TimeSeries.Backend {
	case "memory", "influx":
	default:
		errs = append(errs, fmt.Sprintf("timeseries.backend: unknown backend %q", c.TimeSeries.Backend))
	}
	if c.TimeSeries.Backend == "influx" {
		if c.TimeSeries.URL == "" {
			errs = append(errs, "timeseries.url: required for influx backend")
		}
		if c.TimeSeries.Bucket == "" {
			errs = append(errs, "timeseries.bucket: required for influx backend")
		}
	}
	if c.TimeSeries.QueryTimeout <= 0 {
		errs = append(errs, "timeseries.query_timeout: must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path: must not be empty")
	}

	if c.Engine.ScheduleWindow <= 0 {
		errs = append(errs, "engine.schedule_window: must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
