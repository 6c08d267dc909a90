// Package config loads lifecycle settings from YAML files.
//
// Example file:
//
//	workers: 8
//	max_queue_depth: 4096
//	strict: true
//	pass_timeout: 30s
//	pool_max_idle: 2048
//	journal:
//	  driver: sqlite
//	  dsn: ./lifecycle.db
//	metrics:
//	  enabled: true
//	log:
//	  level: info
//	  format: json
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	yaml "go.yaml.in/yaml/v2"

	"github.com/dshills/lifecycle-go/lifecycle"
	"github.com/dshills/lifecycle-go/lifecycle/store"
)

// EnvJournalDSN overrides journal.dsn when set, keeping credentials out of
// config files.
const EnvJournalDSN = "LIFECYCLE_JOURNAL_DSN"

// Journal drivers.
const (
	DriverNone   = ""
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config is the YAML representation of lifecycle settings.
type Config struct {
	Workers         int           `yaml:"workers"`
	MaxQueueDepth   int           `yaml:"max_queue_depth"`
	Strict          bool          `yaml:"strict"`
	Trace           bool          `yaml:"trace"`
	ContinueOnError bool          `yaml:"continue_on_error"`
	PassTimeout     time.Duration `yaml:"pass_timeout"`
	PoolMaxIdle     int           `yaml:"pool_max_idle"`

	Journal JournalConfig `yaml:"journal"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// JournalConfig selects the pass journal backend.
type JournalConfig struct {
	// Driver is one of "", "memory", "sqlite" or "mysql". Empty disables the
	// journal.
	Driver string `yaml:"driver"`

	// DSN is the SQLite file path or MySQL data source name.
	DSN string `yaml:"dsn"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level"`

	// Format is text or json. Default: text.
	Format string `yaml:"format"`
}

// Default returns the configuration used for fields a file leaves unset.
func Default() *Config {
	return &Config{
		Workers:     1,
		PoolMaxIdle: lifecycle.DefaultMaxIdle,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data on top of Default, applies the environment
// override and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if dsn := os.Getenv(EnvJournalDSN); dsn != "" {
		cfg.Journal.DSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.MaxQueueDepth < 0 {
		return fmt.Errorf("max_queue_depth must not be negative, got %d", c.MaxQueueDepth)
	}
	if c.PassTimeout < 0 {
		return fmt.Errorf("pass_timeout must not be negative, got %s", c.PassTimeout)
	}
	if c.PoolMaxIdle < 0 {
		return fmt.Errorf("pool_max_idle must not be negative, got %d", c.PoolMaxIdle)
	}

	switch c.Journal.Driver {
	case DriverNone, DriverMemory:
	case DriverSQLite, DriverMySQL:
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal driver %q requires a dsn (or %s)", c.Journal.Driver, EnvJournalDSN)
		}
	default:
		return fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Options converts the configuration into lifecycle options. Journal,
// metrics and logger are built separately because they own resources.
func (c *Config) Options() []lifecycle.Option {
	return []lifecycle.Option{
		lifecycle.WithWorkers(c.Workers),
		lifecycle.WithMaxQueueDepth(c.MaxQueueDepth),
		lifecycle.WithStrict(c.Strict),
		lifecycle.WithTrace(c.Trace),
		lifecycle.WithContinueOnError(c.ContinueOnError),
		lifecycle.WithPassTimeout(c.PassTimeout),
	}
}

// NewPool creates a phase pool sized by pool_max_idle, reporting to metrics
// when it is non-nil.
func (c *Config) NewPool(metrics *lifecycle.PrometheusMetrics) *lifecycle.Pool {
	pool := lifecycle.NewPool(c.PoolMaxIdle)
	if metrics != nil {
		pool.WithMetrics(metrics)
	}
	return pool
}

// NewMetrics registers lifecycle metrics on registry when metrics are
// enabled, and returns nil otherwise.
func (c *Config) NewMetrics(registry prometheus.Registerer) *lifecycle.PrometheusMetrics {
	if !c.Metrics.Enabled {
		return nil
	}
	return lifecycle.NewPrometheusMetrics(registry)
}

// OpenJournal opens the configured journal. It returns nil, nil when the
// journal is disabled.
func (c *Config) OpenJournal() (store.Store, error) {
	switch c.Journal.Driver {
	case DriverNone:
		return nil, nil
	case DriverMemory:
		return store.NewMemStore(), nil
	case DriverSQLite:
		s, err := store.NewSQLiteStore(c.Journal.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite journal: %w", err)
		}
		return s, nil
	case DriverMySQL:
		s, err := store.NewMySQLStore(c.Journal.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open mysql journal: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}
}

// NewLogger builds a slog logger writing to w, or os.Stderr when w is nil.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
