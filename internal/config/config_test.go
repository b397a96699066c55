package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, 24, cfg.Session.IDLength)
	assert.Equal(t, "@hourly", cfg.Session.SweepSchedule)
	assert.Contains(t, cfg.String(), `"driver": "sqlite"`)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		shouldErr bool
	}{
		{"sqlite with dsn", func(c *Config) { c.Store.DSN = "/tmp/s.db" }, false},
		{"memory needs no dsn", func(c *Config) { c.Store.Driver = DriverMemory }, false},
		{"sqlite without dsn", func(c *Config) {}, true},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis"; c.Store.DSN = "x" }, true},
		{"mongo without collection", func(c *Config) {
			c.Store.Driver = DriverMongo
			c.Store.DSN = "mongodb://localhost"
			c.Store.Collection = ""
		}, true},
		{"short ids", func(c *Config) { c.Store.DSN = "x"; c.Session.IDLength = 8 }, true},
		{"bad schedule", func(c *Config) { c.Store.DSN = "x"; c.Session.SweepSchedule = "every tuesday" }, true},
		{"empty schedule disables sweeping", func(c *Config) { c.Store.DSN = "x"; c.Session.SweepSchedule = "" }, false},
		{"metrics without addr", func(c *Config) { c.Store.DSN = "x"; c.Metrics.Addr = "" }, true},
		{"sample ratio above one", func(c *Config) { c.Store.DSN = "x"; c.Tracing.SampleRatio = 1.5 }, true},
		{"sampling disabled", func(c *Config) { c.Store.DSN = "x"; c.Tracing.SampleRatio = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.shouldErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("*/15 * * * *")
	require.NoError(t, err)

	from := time.Date(2026, 1, 1, 10, 7, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC), sched.Next(from))

	_, err = ParseSchedule("not a schedule")
	assert.Error(t, err)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when file doesn't exist", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "missing.json")

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, DriverSQLite, cfg.Store.Driver)
		assert.True(t, filepath.IsAbs(cfg.Store.DSN))
		assert.Equal(t, 14*24*time.Hour, cfg.Session.TTL)
	})

	t.Run("json file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "docsess.json")
		content := `{
			"store": {"driver": "mongo", "dsn": "mongodb://localhost:27017", "collection": "web_sessions"},
			"session": {"id_length": 32, "ttl": "2h"}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg, err := Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, DriverMongo, cfg.Store.Driver)
		assert.Equal(t, "web_sessions", cfg.Store.Collection)
		assert.Equal(t, "docsess", cfg.Store.Database)
		assert.Equal(t, 32, cfg.Session.IDLength)
		assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
		require.NoError(t, cfg.Validate())
	})

	t.Run("yaml file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "docsess.yaml")
		content := "store:\n  driver: memory\nlogging:\n  level: debug\n"
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg, err := Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, DriverMemory, cfg.Store.Driver)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("DOCSESS_STORE_DRIVER", "memory")
		t.Setenv("DOCSESS_SESSION_ID_LENGTH", "40")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
		require.NoError(t, err)
		assert.Equal(t, DriverMemory, cfg.Store.Driver)
		assert.Equal(t, 40, cfg.Session.IDLength)
	})

	t.Run("malformed file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "docsess.json")
		require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0644))

		_, err := Load(configPath)
		assert.Error(t, err)
	})
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "/etc/docsess.json", NewLoader("/etc/docsess.json").GetConfigPath())
	assert.Contains(t, NewLoader("").GetConfigPath(), ".docsess")
}
