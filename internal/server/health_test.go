package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil)
	h.SetReady(false)

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code, "liveness ignores readiness")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *HealthChecker, sc *ServerContext)
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "ready",
			setup:      func(*HealthChecker, *ServerContext) {},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok"},
		},
		{
			name:       "not ready",
			setup:      func(h *HealthChecker, _ *ServerContext) { h.SetReady(false) },
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "not ready", "shutdown": "ok"},
		},
		{
			name:       "shutting down",
			setup:      func(_ *HealthChecker, sc *ServerContext) { _ = sc.Shutdown() },
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "shutting down"},
		},
		{
			name: "checks",
			setup: func(h *HealthChecker, _ *ServerContext) {
				h.AddCheck("backend", func(context.Context) error { return nil })
				h.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok", "backend": "ok", "redis": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newTestServerContext(t)
			h := NewHealthChecker(sc)
			tt.setup(h, sc)

			rec := httptest.NewRecorder()
			h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantChecks, resp.Checks)
		})
	}
}

func TestHealthChecker_Detailed(t *testing.T) {
	sc := newTestServerContext(t)
	h := NewHealthChecker(sc)

	rec := httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DetailedHealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Uptime)
	assert.Equal(t, map[string]string{
		"calendar": "disconnected",
		"gmail":    "disconnected",
		"onedrive": "disconnected",
	}, resp.Sessions)

	_ = sc.Shutdown()
	rec = httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
