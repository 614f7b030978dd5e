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

// Submit handles POST /candidate/tasks/{taskId}/submission.
// A task accepts exactly one submission; repeats get a 409.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
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

	// Code and debug tasks may submit with an empty body.
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, faults.Validation("body", "invalid request body"))
		return
	}

	resp, err := h.svc.Submit(r.Context(), session, taskID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusCreated, resp)
}
