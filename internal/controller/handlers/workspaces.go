package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tenon/internal/controller/middleware"
	"tenon/internal/faults"
	"tenon/pkg/api"
)

// InitWorkspace handles POST /candidate/tasks/{taskId}/workspace.
// The operation is idempotent: repeating it for a task that already has a
// workspace returns the existing one.
func (h *Handlers) InitWorkspace(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, r, faults.NotAuthenticated("no session"))
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// The body is optional; an absent one means no collaborator invite.
	var req api.InitWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, faults.Validation("body", "invalid request body"))
		return
	}

	view, err := h.svc.InitWorkspace(r.Context(), session, taskID, req.GithubUsername)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, view)
}

// WorkspaceStatus handles GET /candidate/tasks/{taskId}/workspace.
func (h *Handlers) WorkspaceStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, r, faults.NotAuthenticated("no session"))
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.svc.WorkspaceStatus(r.Context(), session, taskID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, view)
}

// RunTests handles POST /candidate/tasks/{taskId}/tests/run.
func (h *Handlers) RunTests(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, r, faults.NotAuthenticated("no session"))
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req api.RunTestsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, faults.Validation("body", "invalid request body"))
		return
	}

	result, err := h.svc.RunTests(r.Context(), session, taskID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, result)
}

// FetchRunResult handles GET /candidate/tasks/{taskId}/tests/runs/{runId}.
func (h *Handlers) FetchRunResult(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, r, faults.NotAuthenticated("no session"))
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	runID, err := pathID(r, "runId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.FetchRunResult(r.Context(), session, taskID, runID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, result)
}
