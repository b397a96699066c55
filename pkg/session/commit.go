package session

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/docsess/internal/observability"
	"github.com/harun/docsess/internal/tracing"
	"github.com/harun/docsess/pkg/journal"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Commit is the save action of one session. A session hands out the same
// Commit for its whole lifetime.
type Commit struct {
	session *Session
}

// Committer returns the session's save action, allocating it on first use
func (s *Session) Committer() *Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commit == nil {
		s.commit = &Commit{session: s}
	}
	return s.commit
}

// Save runs the session's save action
func (s *Session) Save(ctx context.Context) error {
	return s.Committer().Run(ctx)
}

// Run sends the pending journal to the store as one upsert.
//
// It fails with ErrConflict while another Run of the same session is in
// flight, and is a no-op when nothing is pending. Mutations made while the
// upsert is outstanding are kept for the next save. If the store call fails
// the sent entries are put back in front of them.
func (c *Commit) Run(ctx context.Context) error {
	s := c.session
	ctx = tracing.WithSessionID(ctx, s.id)
	ctx, span := tracing.StartSpan(ctx, "docsess.session", "session.commit",
		attribute.String("session.id", tracing.MaskID(s.id)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		observability.RecordSessionCommit(0, observability.CommitConflict)
		logger.Warn().Msg("Session save already in flight")
		return tracing.Fail(span, ErrConflict)
	}
	if s.journal.IsEmpty() {
		s.mu.Unlock()
		observability.RecordSessionCommit(0, observability.CommitNoop)
		return nil
	}

	s.saving = true
	s.isNew = false
	pending := s.journal
	s.journal = journal.New()
	spec := pending.Spec()
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("journal.entries", pending.Len()))
	start := time.Now()
	err := s.store.Upsert(ctx, s.id, spec)
	duration := time.Since(start)

	s.mu.Lock()
	s.saving = false
	if err != nil {
		pending.Merge(s.journal, s.fields)
		s.journal = pending
	}
	s.mu.Unlock()

	if err != nil {
		observability.RecordSessionCommit(duration, observability.CommitError)
		logger.Error().Err(err).Msg("Failed to save session")
		return tracing.Fail(span, fmt.Errorf("failed to save session: %w", err))
	}

	observability.RecordSessionCommit(duration, observability.CommitSaved)
	logger.Debug().
		Int("entries", pending.Len()).
		Dur("duration", duration).
		Msg("Session saved")
	return nil
}
