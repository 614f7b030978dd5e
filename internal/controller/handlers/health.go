package handlers

import "net/http"

// Healthz is the liveness probe: 200 whenever the process is serving.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz is the readiness probe. It fails while the database is unreachable
// so the load balancer stops routing candidate traffic here.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.respondJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ready"})
}
