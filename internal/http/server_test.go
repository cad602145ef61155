package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/taskd/internal/admission"
)

type fakeHealth struct {
	health admission.Health
}

func (f *fakeHealth) Health() admission.Health { return f.health }

func TestHealthEndpointOK(t *testing.T) {
	src := &fakeHealth{health: admission.Health{
		QueueCeiling: 64,
		Healthy:      true,
	}}
	s := NewServer(src, zaptest.NewLogger(t), Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Admission)
	assert.Equal(t, 64, resp.Admission.QueueCeiling)
}

func TestHealthEndpointDegraded(t *testing.T) {
	src := &fakeHealth{health: admission.Health{
		ErrorRate:  0.8,
		AvgLatency: 2 * time.Second,
		Healthy:    false,
	}}
	s := NewServer(src, zaptest.NewLogger(t), Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestHealthEndpointWithoutSource(t *testing.T) {
	s := NewServer(nil, zaptest.NewLogger(t), Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(nil, zaptest.NewLogger(t), Config{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}
