package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext adds the tracing fields found in ctx to logger.
// Session ids are masked since they are bearer secrets.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RequestID != "" {
		logger = logger.With().Str("request_id", tc.RequestID).Logger()
	}
	if tc.SessionID != "" {
		logger = logger.With().Str("session_id", MaskID(tc.SessionID)).Logger()
	}

	return logger
}

// MaskID shortens an id to a non-secret prefix for logs
func MaskID(id string) string {
	if len(id) <= 4 {
		return "****"
	}
	return id[:4] + "…"
}
