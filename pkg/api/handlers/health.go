package handlers

import (
	"net/http"
)

// HealthHandler handles health check endpoints.
//
//   - Liveness probe: is the process serving HTTP?
//   - Readiness probe: is the coordinator loop running?
type HealthHandler struct {
	source StatusSource
}

// NewHealthHandler creates a new health handler. A nil source makes the
// readiness probe report unhealthy.
func NewHealthHandler(source StatusSource) *HealthHandler {
	return &HealthHandler{source: source}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "lockstep",
	}))
}

// Readiness handles GET /health/ready. It returns 503 until the coordinator
// loop has started.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("coordinator not initialized"))
		return
	}

	status := h.source.Status()
	if !status.Running {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("coordinator not running"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"cycle":    status.Cycle,
		"sessions": status.Sessions,
	}))
}
