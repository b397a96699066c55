package cli

import (
	"context"
	"fmt"

	"github.com/harun/docsess/internal/config"
	"github.com/harun/docsess/internal/logger"
	"github.com/harun/docsess/internal/tracing"
	"github.com/harun/docsess/pkg/docstore"
	"github.com/harun/docsess/pkg/document"
	"github.com/harun/docsess/pkg/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app is the runtime shared by commands that touch the store
type app struct {
	cfg     *config.Config
	logger  *logger.Logger
	store   docstore.Store
	manager *session.Manager
	tracing bool
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if f := cmd.Flag("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: lg}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version,
			SampleRatio: cfg.Tracing.SampleRatio,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			a.tracing = true
		}
	}

	store, err := docstore.Open(cmd.Context(), cfg.Store)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	a.store = store

	mgr, err := session.NewManager(store, session.ManagerConfig{IDLength: cfg.Session.IDLength})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.manager = mgr

	return a, nil
}

// Close releases the store, tracer and log file
func (a *app) Close() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
	}
	if a.tracing {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// parseValue reads a command-line value as JSON, falling back to the raw string
func parseValue(raw string) any {
	v, err := document.DecodeValue([]byte(raw))
	if err != nil {
		return raw
	}
	return v
}

func parseValues(raw []string) []any {
	values := make([]any, len(raw))
	for i, r := range raw {
		values[i] = parseValue(r)
	}
	return values
}
