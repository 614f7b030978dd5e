// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// requestIDKey is the context key for request/correlation IDs.
type requestIDKey struct{}

// sessionIDKey is the context key for the candidate session ID.
type sessionIDKey struct{}

// New creates a new structured JSON logger. LOG_LEVEL=debug lowers the
// threshold; anything else logs at info.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// WithRequestID returns a new context with the given request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// WithSessionID returns a new context carrying the authenticated candidate
// session ID, so every log line in the request can be tied to a candidate.
func WithSessionID(ctx context.Context, sessionID int64) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFromContext extracts the candidate session ID, or 0 when unset.
func SessionIDFromContext(ctx context.Context) int64 {
	if v := ctx.Value(sessionIDKey{}); v != nil {
		return v.(int64)
	}
	return 0
}

// FromContext returns a logger with context fields (request ID, session ID)
// attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	l := base
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		l = l.With("request_id", reqID)
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != 0 {
		l = l.With("session_id", sessionID)
	}
	return l
}
