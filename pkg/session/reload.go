package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/docsess/internal/observability"
	"github.com/harun/docsess/internal/tracing"
	"github.com/harun/docsess/pkg/document"
	"github.com/harun/docsess/pkg/journal"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ReloadMode selects how Reload reconciles the mirror with the stored document
type ReloadMode int

const (
	// ReloadClean replaces the mirror with the stored document and drops pending mutations
	ReloadClean ReloadMode = iota

	// ReloadQueue reconciles through Set and Unset so the changes are saved on the next commit
	ReloadQueue
)

func (m ReloadMode) String() string {
	switch m {
	case ReloadClean:
		return "clean"
	case ReloadQueue:
		return "queue"
	}
	return fmt.Sprintf("ReloadMode(%d)", int(m))
}

// Reload resynchronizes the session with its stored document.
// It fails with ErrNotFound when the document no longer exists.
func (s *Session) Reload(ctx context.Context, mode ReloadMode) error {
	ctx = tracing.WithSessionID(ctx, s.id)
	ctx, span := tracing.StartSpan(ctx, "docsess.session", "session.reload",
		attribute.String("session.id", tracing.MaskID(s.id)),
		attribute.String("reload.mode", mode.String()),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	start := time.Now()
	remote, err := s.store.FindOne(ctx, s.id)
	if errors.Is(err, ErrNotFound) {
		observability.RecordSessionLoad(time.Since(start), "missing")
		return tracing.Fail(span, fmt.Errorf("failed to reload session: %w", err))
	}
	if err != nil {
		observability.RecordSessionLoad(time.Since(start), "error")
		return tracing.Fail(span, fmt.Errorf("failed to reload session: %w", err))
	}
	observability.RecordSessionLoad(time.Since(start), "found")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.isNew = false
	switch mode {
	case ReloadQueue:
		if err := s.become(remote); err != nil {
			return tracing.Fail(span, err)
		}
	default:
		s.fields = withoutReserved(remote)
		s.journal.Clear()
	}

	logger.Debug().Str("mode", mode.String()).Msg("Session reloaded")
	return nil
}

// Become makes the session's fields equal to fields, queueing the
// differences as Unset and Set operations.
func (s *Session) Become(fields map[string]any) error {
	target, err := document.NormalizeMap(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.become(target)
}

// become diffs top-level keys: local-only keys are unset, new or changed
// remote keys are set. s.mu must be held.
func (s *Session) become(target document.Map) error {
	target = withoutReserved(target)

	for _, key := range s.fields.Keys() {
		if _, ok := target[key]; ok {
			continue
		}
		err := s.apply(journal.OpUnset, key, "", func(j *journal.Journal, mirror document.Map) {
			j.Unset(key, mirror)
		})
		if err != nil {
			return err
		}
	}

	for _, key := range target.Keys() {
		value := target[key]
		if current, ok := s.fields[key]; ok && document.Equal(current, value) {
			continue
		}
		err := s.apply(journal.OpSet, key, value, func(j *journal.Journal, mirror document.Map) {
			j.Set(key, value, mirror)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
