package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/docsess/internal/config"
	"github.com/harun/docsess/internal/observability"
	"github.com/harun/docsess/internal/tracing"
	"github.com/harun/docsess/pkg/docstore"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultSweepTTL      = 14 * 24 * time.Hour
	DefaultSweepSchedule = "@hourly"
)

// ErrSweepUnsupported is returned when the store cannot purge by age
var ErrSweepUnsupported = errors.New("store does not support sweeping")

// Sweeper periodically removes sessions idle for longer than a TTL
type Sweeper struct {
	store    docstore.Sweeper
	ttl      time.Duration
	schedule cron.Schedule
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper for store. schedule is a cron expression or
// descriptor; empty means DefaultSweepSchedule.
func NewSweeper(store docstore.Store, ttl time.Duration, schedule string) (*Sweeper, error) {
	observability.EnsureRegistered()

	sweepable, ok := store.(docstore.Sweeper)
	if !ok {
		return nil, ErrSweepUnsupported
	}
	if ttl == 0 {
		ttl = DefaultSweepTTL
	}
	if ttl < 0 {
		return nil, fmt.Errorf("sweep ttl cannot be negative")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	sched, err := config.ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}

	return &Sweeper{
		store:    sweepable,
		ttl:      ttl,
		schedule: sched,
		now:      time.Now,
	}, nil
}

// Start runs the sweeper on its schedule until Stop
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	s.cron = cron.New()
	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to sweep idle sessions")
		}
	}))
	s.cron.Start()
	s.running = true

	log.Info().
		Dur("ttl", s.ttl).
		Time("next_run", s.schedule.Next(s.now())).
		Msg("Session sweeper started")

	return nil
}

// Stop stops the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("sweeper is not running")
	}

	<-s.cron.Stop().Done()
	s.running = false

	log.Info().Msg("Session sweeper stopped")

	return nil
}

// IsRunning returns whether the sweeper is scheduled
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TTL returns the idle time after which sessions are removed
func (s *Sweeper) TTL() time.Duration {
	return s.ttl
}

// RunOnce removes sessions idle for longer than the TTL and returns how many were removed
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "docsess.session", "session.sweep",
		attribute.String("ttl", s.ttl.String()),
	)
	defer span.End()

	cutoff := s.now().Add(-s.ttl)
	purged, err := s.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, tracing.Fail(span, fmt.Errorf("failed to purge idle sessions: %w", err))
	}

	observability.RecordSessionsPurged(purged)
	if purged > 0 {
		log.Info().
			Int("purged", purged).
			Time("cutoff", cutoff).
			Msg("Swept idle sessions")
	}
	return purged, nil
}
