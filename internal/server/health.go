// Package server provides the operational HTTP surface: health probes and metrics
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// HealthHandler handles health check endpoints
type HealthHandler struct {
	version   string
	startedAt time.Time
	timeout   time.Duration
	logger    *zap.Logger

	mu      sync.RWMutex
	ready   bool
	started bool
	checks  map[string]Check
	info    map[string]func() string
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Uptime      string            `json:"uptime,omitempty"`
	Version     string            `json:"version,omitempty"`
	Checks      map[string]string `json:"checks,omitempty"`
	Info        map[string]string `json:"info,omitempty"`
	Description string            `json:"description,omitempty"`
}

// NewHealthHandler creates a new health handler. It reports not started and
// not ready until SetReady(true).
func NewHealthHandler(version string, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		version:   version,
		startedAt: time.Now(),
		timeout:   2 * time.Second,
		logger:    logger,
		checks:    make(map[string]Check),
		info:      make(map[string]func() string),
	}
}

// AddCheck registers a readiness dependency check
func (h *HealthHandler) AddCheck(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// AddInfo registers a value reported by the readiness endpoint
func (h *HealthHandler) AddInfo(name string, value func() string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.info[name] = value
}

// SetReady updates the readiness status. The first true also marks startup done.
func (h *HealthHandler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
	if ready {
		h.started = true
	}
}

// IsReady returns the current readiness status
func (h *HealthHandler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Health handles GET /health - basic liveness with uptime and version
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, HealthStatus{
		Status:      "UP",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startedAt).Round(time.Second).String(),
		Version:     h.version,
		Description: "Permission rule engine is running",
	})
}

// Ready handles GET /health/ready - readiness with dependency checks
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	info := make(map[string]string, len(h.info))
	for name, f := range h.info {
		info[name] = f()
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(checks))
	allReady := ready
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			results[name] = "not_ready: " + err.Error()
			allReady = false
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = "ready"
	}

	status := HealthStatus{
		Status:      "UP",
		Timestamp:   time.Now().UTC(),
		Checks:      results,
		Info:        info,
		Description: "Ready to accept traffic",
	}
	code := http.StatusOK
	if !allReady {
		code = http.StatusServiceUnavailable
		status.Status = "DOWN"
		status.Description = "Not all dependencies are ready"
	}

	writeStatus(w, code, status)

	h.logger.Debug("Readiness check completed",
		zap.String("status", status.Status),
		zap.Bool("ready", allReady),
	)
}

// Live handles GET /health/live - Kubernetes liveness probe
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, HealthStatus{
		Status:      "ALIVE",
		Timestamp:   time.Now().UTC(),
		Description: "Process is alive and responding",
	})
}

// Startup handles GET /health/startup - Kubernetes startup probe
func (h *HealthHandler) Startup(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	started := h.started
	h.mu.RUnlock()

	status := HealthStatus{Status: "STARTED", Timestamp: time.Now().UTC()}
	code := http.StatusOK
	if !started {
		status.Status = "STARTING"
		code = http.StatusServiceUnavailable
	}
	writeStatus(w, code, status)
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
