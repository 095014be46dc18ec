package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/authz-engine/permission-rules/internal/metrics"
)

func newTestRouter(t *testing.T, health *HealthHandler, m metrics.Metrics) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewRouter(DefaultConfig(), health, m, zap.NewNop()))
	t.Cleanup(ts.Close)
	return ts
}

func getStatus(t *testing.T, url string) (int, HealthStatus) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var status HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return resp.StatusCode, status
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler("1.2.3", nil)
	ts := newTestRouter(t, h, metrics.NewNoOpMetrics())

	code, status := getStatus(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "UP", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.NotEmpty(t, status.Uptime)

	code, status = getStatus(t, ts.URL+"/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ALIVE", status.Status)
}

func TestReadyAndStartup(t *testing.T) {
	h := NewHealthHandler("test", nil)
	ts := newTestRouter(t, h, metrics.NewNoOpMetrics())

	code, status := getStatus(t, ts.URL+"/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "DOWN", status.Status)

	code, status = getStatus(t, ts.URL+"/health/startup")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "STARTING", status.Status)

	h.AddCheck("persistence", func(ctx context.Context) error { return nil })
	h.AddInfo("rules_active", func() string { return "3" })
	h.SetReady(true)

	code, status = getStatus(t, ts.URL+"/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", status.Checks["persistence"])
	assert.Equal(t, "3", status.Info["rules_active"])

	code, _ = getStatus(t, ts.URL+"/health/startup")
	assert.Equal(t, http.StatusOK, code)

	// A failing dependency turns readiness off without a state change
	h.AddCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })
	code, status = getStatus(t, ts.URL+"/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready: connection refused", status.Checks["redis"])
	assert.True(t, h.IsReady())
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewPrometheusMetrics("permrules_server_test")
	m.RecordEvaluation(metrics.OutcomeAllow, time.Millisecond)

	ts := newTestRouter(t, NewHealthHandler("test", nil), m)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `permrules_server_test_evaluations_total{outcome="allow"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestRouter(t, NewHealthHandler("test", nil), metrics.NewNoOpMetrics())

	resp, err := http.Post(ts.URL+"/health", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0

	h := NewHealthHandler("test", nil)
	h.SetReady(true)
	srv, err := New(cfg, h, nil, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	port := srv.Addr().(*net.TCPAddr).Port
	code, _ := getStatus(t, fmt.Sprintf("http://127.0.0.1:%d/health/ready", port))
	assert.Equal(t, http.StatusOK, code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
	assert.False(t, h.IsReady())
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/metrics", cfg.MetricsPath)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)

	cfg = Config{Port: 70000}
	assert.Error(t, cfg.Validate())

	_, err := New(DefaultConfig(), nil, nil, nil)
	assert.Error(t, err)
}
