// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tenon/internal/faults"
	"tenon/internal/logger"
	"tenon/internal/store"
	"tenon/pkg/api"
)

// SessionHeader carries the candidate's session token on every
// authenticated request.
const SessionHeader = "X-Candidate-Session"

// sessionKey is the context key for the authenticated candidate session.
type sessionKey struct{}

// Auth resolves the candidate session from the request header and rejects
// requests with a missing, unknown or expired token. Every candidate-facing
// operation is scoped by the session it puts in the context.
func Auth(sessions store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(SessionHeader)
			if token == "" {
				writeFault(w, faults.SessionHeaderRequired())
				return
			}

			session, err := sessions.GetSessionByToken(r.Context(), token)
			if errors.Is(err, store.ErrNotFound) {
				writeFault(w, faults.NotAuthenticated("unknown session token"))
				return
			}
			if err != nil {
				writeFault(w, faults.Internal("failed to resolve session"))
				return
			}
			if session.Expired(time.Now().UTC()) {
				writeFault(w, faults.Forbidden("session has expired"))
				return
			}

			ctx := WithSession(r.Context(), session)
			ctx = logger.WithSessionID(ctx, session.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithSession returns a copy of ctx carrying the candidate session.
func WithSession(ctx context.Context, session *store.CandidateSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext extracts the authenticated session from the context.
func SessionFromContext(ctx context.Context) (*store.CandidateSession, bool) {
	session, ok := ctx.Value(sessionKey{}).(*store.CandidateSession)
	return session, ok
}

func writeFault(w http.ResponseWriter, f *faults.Fault) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.Status)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:     f.Detail,
		Code:      f.Code,
		Retryable: f.Retryable,
	})
}
