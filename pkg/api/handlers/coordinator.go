package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/lockstep/pkg/coordinator"
)

// StatusSource is the read-only view of the coordinator the API exposes.
type StatusSource interface {
	Status() coordinator.Status
	Sessions() []coordinator.SessionInfo
	Session(key string) (coordinator.SessionInfo, bool)
}

// CoordinatorHandler serves coordinator and session snapshots.
type CoordinatorHandler struct {
	source StatusSource
}

// NewCoordinatorHandler creates a handler reading from source.
func NewCoordinatorHandler(source StatusSource) *CoordinatorHandler {
	return &CoordinatorHandler{source: source}
}

// Status handles GET /api/v1/coordinator.
func (h *CoordinatorHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		ServiceUnavailable(w, "coordinator not initialized")
		return
	}
	writeJSON(w, http.StatusOK, h.source.Status())
}

// ListSessions handles GET /api/v1/sessions.
func (h *CoordinatorHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		ServiceUnavailable(w, "coordinator not initialized")
		return
	}
	writeJSON(w, http.StatusOK, h.source.Sessions())
}

// GetSession handles GET /api/v1/sessions/{key}, where key is the client's
// "host:port", path-escaped.
func (h *CoordinatorHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		ServiceUnavailable(w, "coordinator not initialized")
		return
	}

	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid session key")
		return
	}

	info, ok := h.source.Session(key)
	if !ok {
		NotFound(w, "no session for client "+key)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
