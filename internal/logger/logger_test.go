package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer logger.Close()

		z := logger.Zerolog()
		z.Info().Msg("hello")
		assert.Contains(t, buf.String(), `"message":"hello"`)
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "docsess.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		z := logger.Zerolog()
		z.Debug().Msg("to file")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "loud", Console: true, Output: &buf})
		require.NoError(t, err)
		defer logger.Close()

		assert.Equal(t, zerolog.InfoLevel, logger.Zerolog().GetLevel())
	})

	t.Run("redaction", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Output: &buf, Redaction: true})
		require.NoError(t, err)
		defer logger.Close()

		z := logger.Zerolog()
		z.Info().Str("dsn", "mongodb://admin:hunter2@db:27017").Msg("connecting")
		assert.NotContains(t, buf.String(), "hunter2")
		assert.Contains(t, buf.String(), "mongodb://[REDACTED]@db:27017")
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
}
