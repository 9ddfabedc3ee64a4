package statusapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moti-malka/gl2gh-sub000/internal/discovery"
)

func TestHealthzAlwaysOK(t *testing.T) {
	srv := New(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusWithoutMonitorIs404(t *testing.T) {
	srv := New(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusReflectsMonitorSnapshot(t *testing.T) {
	mon := discovery.NewStateMonitor()
	srv := New(mon, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"done\":false")
}

func TestRunsWithoutStoreIs404(t *testing.T) {
	srv := New(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/runs/discovery", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
