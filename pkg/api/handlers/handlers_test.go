package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lockstep/pkg/coordinator"
)

type fakeSource struct {
	status   coordinator.Status
	sessions []coordinator.SessionInfo
}

func (f *fakeSource) Status() coordinator.Status { return f.status }

func (f *fakeSource) Sessions() []coordinator.SessionInfo { return f.sessions }

func (f *fakeSource) Session(key string) (coordinator.SessionInfo, bool) {
	for _, s := range f.sessions {
		if s.Client == key {
			return s, true
		}
	}
	return coordinator.SessionInfo{}, false
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		status: coordinator.Status{Running: true, Cycle: 12, Expected: 2, Sessions: 2, QueueCap: 10},
		sessions: []coordinator.SessionInfo{
			{ID: "a", Client: "127.0.0.1:5001", Sequence: 4, State: "awaiting_cycle", ConnectedAt: time.Now()},
			{ID: "b", Client: "[::1]:5002", Sequence: 1, State: "awaiting_ack", ConnectedAt: time.Now()},
		},
	}
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, map[string]interface{}{"service": "lockstep"}, resp.Data)
}

func TestReadiness(t *testing.T) {
	t.Run("NoSource", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(nil).Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("NotRunning", func(t *testing.T) {
		src := newFakeSource()
		src.status.Running = false
		rec := httptest.NewRecorder()
		NewHealthHandler(src).Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "coordinator not running", resp.Error)
	})

	t.Run("Running", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(newFakeSource()).Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCoordinatorStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	NewCoordinatorHandler(newFakeSource()).Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coordinator", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status coordinator.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.EqualValues(t, 12, status.Cycle)
	assert.Equal(t, 2, status.Expected)
	assert.Equal(t, 10, status.QueueCap)
}

func TestListSessions(t *testing.T) {
	rec := httptest.NewRecorder()
	NewCoordinatorHandler(newFakeSource()).ListSessions(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []coordinator.SessionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sessions))
	require.Len(t, sessions, 2)
	assert.Equal(t, "127.0.0.1:5001", sessions[0].Client)
}

func TestGetSession(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/sessions/{key}", NewCoordinatorHandler(newFakeSource()).GetSession)

	t.Run("Found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/127.0.0.1:5001", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var info coordinator.SessionInfo
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
		assert.EqualValues(t, 4, info.Sequence)
	})

	t.Run("EscapedIPv6", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/%5B::1%5D:5002", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var info coordinator.SessionInfo
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
		assert.Equal(t, "b", info.ID)
	})

	t.Run("Missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/10.0.0.1:1", nil))

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, ContentTypeProblemJSON, rec.Header().Get("Content-Type"))
		var p Problem
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
		assert.Equal(t, http.StatusNotFound, p.Status)
		assert.Contains(t, p.Detail, "10.0.0.1:1")
	})
}

func TestHandlersWithoutSource(t *testing.T) {
	h := NewCoordinatorHandler(nil)
	for name, fn := range map[string]http.HandlerFunc{
		"Status":       h.Status,
		"ListSessions": h.ListSessions,
		"GetSession":   h.GetSession,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			fn(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}
}
