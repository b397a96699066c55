package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/harun/docsess/internal/observability"
	"github.com/harun/docsess/internal/tracing"
	"github.com/harun/docsess/pkg/session"
	"github.com/rs/zerolog"
)

// Server exposes sessions over HTTP
type Server struct {
	addr           string
	manager        *session.Manager
	sweeper        *session.Sweeper
	logger         zerolog.Logger
	server         *http.Server
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Addr    string
	Manager *session.Manager
	Sweeper *session.Sweeper // optional
	Logger  zerolog.Logger
}

// New creates a server
func New(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	observability.EnsureRegistered()

	return &Server{
		addr:    cfg.Addr,
		manager: cfg.Manager,
		sweeper: cfg.Sweeper,
		logger:  cfg.Logger,
	}, nil
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /sessions/{id}", s.track(s.handleGet))
	mux.HandleFunc("POST /sessions/{id}/views", s.track(s.handleView))
	mux.HandleFunc("DELETE /sessions/{id}", s.track(s.handleDelete))
	return mux
}

// Start listens in the background and starts the sweeper, if any
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Starting session server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Session server error")
		}
	}()

	if s.sweeper != nil {
		if err := s.sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start sweeper: %w", err)
		}
	}

	return nil
}

// Stop waits for in-flight requests, then shuts the listener down
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down session server")

	if s.sweeper != nil && s.sweeper.IsRunning() {
		if err := s.sweeper.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop sweeper")
		}
	}

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Session server stopped")
	return nil
}

// track rejects requests during shutdown and counts the rest as in flight
func (s *Server) track(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		next(w, r.WithContext(tracing.NewRequestContext(r.Context())))
	}
}

type sessionResponse struct {
	ID      string         `json:"id"`
	Fields  map[string]any `json:"fields,omitempty"`
	Outcome string         `json:"outcome,omitempty"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.ID(), Fields: sess.Serialize()})
}

// handleView counts a page view in the request's session, creating the
// session when the id is unknown
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lifecycle := s.manager.Lifecycle(r.PathValue("id"))

	sess, err := lifecycle.Session(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Inc("views", 1); err != nil {
		s.writeError(w, r, err)
		return
	}

	outcome, err := lifecycle.Commit(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		ID:      lifecycle.ID(),
		Fields:  sess.Serialize(),
		Outcome: outcome.String(),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrMissingID):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrTypeMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		logger := tracing.LoggerFromContext(r.Context(), s.logger)
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
