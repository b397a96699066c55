package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/docsess/internal/observability"
	"github.com/harun/docsess/internal/tracing"
	"github.com/harun/docsess/pkg/docstore"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ManagerConfig configures a Manager
type ManagerConfig struct {
	// IDLength is the length of generated ids; zero means DefaultIDLength
	IDLength int
}

// Manager creates, loads and removes sessions in one store
type Manager struct {
	store    docstore.Store
	idLength int
}

// NewManager creates a manager. It fails with ErrMissingStore when store is nil.
func NewManager(store docstore.Store, cfg ManagerConfig) (*Manager, error) {
	observability.EnsureRegistered()

	if store == nil {
		return nil, ErrMissingStore
	}
	if cfg.IDLength == 0 {
		cfg.IDLength = DefaultIDLength
	}
	if cfg.IDLength < MinIDLength {
		return nil, fmt.Errorf("session id length must be at least %d, got %d", MinIDLength, cfg.IDLength)
	}

	return &Manager{
		store:    store,
		idLength: cfg.IDLength,
	}, nil
}

// Store returns the manager's document store
func (m *Manager) Store() docstore.Store {
	return m.store
}

// Create returns a new, empty session with a fresh id. Nothing is stored
// until the session is saved.
func (m *Manager) Create() *Session {
	id, err := NewID(m.idLength)
	if err != nil {
		// The length was validated by NewManager
		panic(err)
	}
	return newSession(m.store, id, nil, true)
}

// Get loads the session stored under id. It fails with ErrNotFound when absent.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrMissingID
	}

	ctx = tracing.WithSessionID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "docsess.session", "session.get",
		attribute.String("session.id", tracing.MaskID(id)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	start := time.Now()
	fields, err := m.store.FindOne(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		observability.RecordSessionLoad(time.Since(start), "missing")
		logger.Debug().Msg("Session not found")
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if err != nil {
		observability.RecordSessionLoad(time.Since(start), "error")
		logger.Error().Err(err).Msg("Failed to load session")
		return nil, tracing.Fail(span, fmt.Errorf("failed to load session: %w", err))
	}
	observability.RecordSessionLoad(time.Since(start), "found")

	return newSession(m.store, id, fields, false), nil
}

// Remove deletes the session stored under id
func (m *Manager) Remove(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}

	ctx = tracing.WithSessionID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "docsess.session", "session.remove",
		attribute.String("session.id", tracing.MaskID(id)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if err := m.store.Remove(ctx, id); err != nil {
		observability.RecordSessionRemove(false)
		logger.Error().Err(err).Msg("Failed to remove session")
		return tracing.Fail(span, fmt.Errorf("failed to remove session: %w", err))
	}

	observability.RecordSessionRemove(true)
	logger.Debug().Msg("Session removed")
	return nil
}
