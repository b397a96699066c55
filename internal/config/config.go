package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Store drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// ErrInvalidConfig is returned when configuration validation fails
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the docsess configuration
type Config struct {
	Store   StoreConfig   `json:"store" mapstructure:"store"`
	Session SessionConfig `json:"session" mapstructure:"session"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// StoreConfig selects and configures the document store
type StoreConfig struct {
	Driver     string        `json:"driver" mapstructure:"driver"` // memory, sqlite, mongo
	DSN        string        `json:"dsn" mapstructure:"dsn"`
	Database   string        `json:"database" mapstructure:"database"`     // mongo only
	Collection string        `json:"collection" mapstructure:"collection"` // mongo only
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

// SessionConfig holds session document settings
type SessionConfig struct {
	IDLength      int           `json:"id_length" mapstructure:"id_length"`
	TTL           time.Duration `json:"ttl" mapstructure:"ttl"`
	SweepSchedule string        `json:"sweep_schedule" mapstructure:"sweep_schedule"` // cron expression, empty disables
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the metrics endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"` // 0..1 of root spans
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:     DriverSQLite,
			DSN:        "",
			Database:   "docsess",
			Collection: "sessions",
			Timeout:    10 * time.Second,
		},
		Session: SessionConfig{
			IDLength:      24,
			TTL:           14 * 24 * time.Hour,
			SweepSchedule: "@hourly",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "docsess",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverMongo:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for the %s driver", ErrInvalidConfig, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q (expected memory, sqlite or mongo)", ErrInvalidConfig, c.Store.Driver)
	}

	if c.Store.Driver == DriverMongo {
		if c.Store.Database == "" {
			return fmt.Errorf("%w: store.database is required for the mongo driver", ErrInvalidConfig)
		}
		if c.Store.Collection == "" {
			return fmt.Errorf("%w: store.collection is required for the mongo driver", ErrInvalidConfig)
		}
	}

	if c.Store.Timeout < 0 {
		return fmt.Errorf("%w: store.timeout cannot be negative", ErrInvalidConfig)
	}

	if c.Session.IDLength < 12 {
		return fmt.Errorf("%w: session.id_length must be at least 12, got %d", ErrInvalidConfig, c.Session.IDLength)
	}
	if c.Session.TTL < 0 {
		return fmt.Errorf("%w: session.ttl cannot be negative", ErrInvalidConfig)
	}
	if c.Session.SweepSchedule != "" {
		if _, err := ParseSchedule(c.Session.SweepSchedule); err != nil {
			return fmt.Errorf("%w: session.sweep_schedule: %v", ErrInvalidConfig, err)
		}
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing.sample_ratio must be between 0 and 1, got %g", ErrInvalidConfig, c.Tracing.SampleRatio)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("%w: metrics.addr is required when metrics are enabled", ErrInvalidConfig)
	}

	return nil
}

// ParseSchedule parses a five-field cron expression or descriptor such as @hourly
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return sched, nil
}
