// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"tenon/internal/faults"
	"tenon/internal/logger"
	"tenon/internal/store"
	"tenon/pkg/api"
)

// Service is the orchestrator surface the HTTP layer depends on.
type Service interface {
	Claim(ctx context.Context, token string) (*api.ClaimResponse, error)
	Progress(ctx context.Context, session *store.CandidateSession) (*api.ProgressResponse, error)
	InitWorkspace(ctx context.Context, session *store.CandidateSession, taskID int64, forgeUsername string) (*api.WorkspaceView, error)
	WorkspaceStatus(ctx context.Context, session *store.CandidateSession, taskID int64) (*api.WorkspaceStatusView, error)
	RunTests(ctx context.Context, session *store.CandidateSession, taskID int64, req api.RunTestsRequest) (*api.RunResult, error)
	FetchRunResult(ctx context.Context, session *store.CandidateSession, taskID, runID int64) (*api.RunResult, error)
	Submit(ctx context.Context, session *store.CandidateSession, taskID int64, req api.SubmitRequest) (*api.SubmitResponse, error)
}

// Pinger reports database liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	svc    Service
	db     Pinger
	logger *slog.Logger
}

// New creates a new Handlers instance.
func New(svc Service, db Pinger, log *slog.Logger) *Handlers {
	return &Handlers{svc: svc, db: db, logger: log}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// writeError translates an orchestrator error into the standard error body.
// Tagged faults keep their status, code and retry hints; anything else is a
// 500 with the detail withheld.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	f, ok := faults.As(err)
	if !ok {
		logger.FromContext(r.Context(), h.logger).Error("unhandled error", "error", err)
		f = faults.Internal("internal error")
	}
	if f.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(f.RetryAfterSeconds))
	}
	h.respondJson(w, f.Status, api.ErrorResponse{
		Error:             f.Detail,
		Code:              f.Code,
		Details:           f.Field,
		Retryable:         f.Retryable,
		RetryAfterSeconds: f.RetryAfterSeconds,
	})
}

// pathID parses a numeric path segment, rejecting non-positive values.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, faults.Validation(name, "must be a positive integer")
	}
	return id, nil
}
