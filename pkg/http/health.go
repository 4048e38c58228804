package http

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"commetrics-server/pkg/version"

	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 3 * time.Second

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckResult represents an individual health check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo contains system resource information
type SystemInfo struct {
	GoRoutines int    `json:"goroutines"`
	MemoryMB   uint64 `json:"memory_mb"`
	CPUCount   int    `json:"cpu_count"`
}

// HealthCheckFunc reports a dependency failure as an error
type HealthCheckFunc func(ctx context.Context) error

type healthCheck struct {
	name     string
	critical bool
	check    HealthCheckFunc
}

// AddHealthCheck registers a dependency check. A failing critical check makes
// the service unhealthy and not ready; other failures only degrade it.
func (s *Server) AddHealthCheck(name string, critical bool, check HealthCheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, healthCheck{name: name, critical: critical, check: check})
}

func (s *Server) runChecks(ctx context.Context) (map[string]CheckResult, string) {
	s.mu.RLock()
	checks := make([]healthCheck, len(s.checks))
	copy(checks, s.checks)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	overall := "healthy"
	results := make(map[string]CheckResult, len(checks))
	for _, c := range checks {
		if err := c.check(ctx); err != nil {
			status := "degraded"
			if c.critical {
				status = "unhealthy"
				overall = "unhealthy"
			} else if overall == "healthy" {
				overall = "degraded"
			}
			results[c.name] = CheckResult{Status: status, Message: err.Error()}
			continue
		}
		results[c.name] = CheckResult{Status: "healthy"}
	}
	return results, overall
}

// HealthHandler handles health check requests
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	checks, overall := s.runChecks(r.Context())

	health := HealthStatus{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    checks,
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	health.System.GoRoutines = runtime.NumGoroutine()
	health.System.MemoryMB = m.Alloc / 1024 / 1024
	health.System.CPUCount = runtime.NumCPU()

	if r.URL.Query().Get("detailed") == "true" {
		s.logger.WithFields(logrus.Fields{
			"status":   health.Status,
			"checks":   health.Checks,
			"duration": time.Since(startTime),
		}).Debug("Health check performed")
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// LivenessHandler handles kubernetes liveness probe
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ReadinessHandler handles kubernetes readiness probe
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if _, overall := s.runChecks(r.Context()); overall == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
