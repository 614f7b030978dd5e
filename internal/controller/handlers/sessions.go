package handlers

import (
	"encoding/json"
	"net/http"

	"tenon/internal/controller/middleware"
	"tenon/internal/faults"
	"tenon/pkg/api"
)

// Claim handles POST /candidate/claim.
// It exchanges an invite token for an active session, starting the
// simulation clock on first claim.
func (h *Handlers) Claim(w http.ResponseWriter, r *http.Request) {
	var req api.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, faults.Validation("body", "invalid request body"))
		return
	}

	resp, err := h.svc.Claim(r.Context(), req.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, resp)
}

// Progress handles GET /candidate/progress.
func (h *Handlers) Progress(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, r, faults.NotAuthenticated("no session"))
		return
	}

	resp, err := h.svc.Progress(r.Context(), session)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, resp)
}
