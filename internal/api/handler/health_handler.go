package handler

import "net/http"

// ReadinessChecker reports whether the worker is consuming;
// *broker.Readiness satisfies it.
type ReadinessChecker interface {
	Ready() bool
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	ready ReadinessChecker
}

func NewHealthHandler(ready ReadinessChecker) *HealthHandler { return &HealthHandler{ready: ready} }

// Health handles GET /healthz. It never touches the broker.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /readyz: 200 once the topology is declared and a
// consumer is attached, 503 otherwise.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil || !h.ready.Ready() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
