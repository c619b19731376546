package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/metrics"
)

const (
	checkPass = "pass"
	checkWarn = "warn"
	checkFail = "fail"

	checkTimeout = 2 * time.Second
)

// HealthCheck represents the health status of the server
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MigrationStatus reports the applied schema version and whether the last
// migration left it dirty.
type MigrationStatus interface {
	SchemaVersion(ctx context.Context) (int64, bool, error)
}

// JobQueueStatus reports queued work. ok is false when the queue tables do
// not exist yet.
type JobQueueStatus interface {
	ActiveJobs(ctx context.Context) (count int64, ok bool, err error)
}

// HealthChecker runs the readiness checks behind /health and /readyz.
type HealthChecker struct {
	db         Pinger
	migrations MigrationStatus
	jobs       JobQueueStatus
	version    string
	gitCommit  string
}

// NewHealthChecker creates a health checker. jobs may be nil when background
// jobs are disabled.
func NewHealthChecker(db Pinger, migrations MigrationStatus, jobs JobQueueStatus, version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		db:         db,
		migrations: migrations,
		jobs:       jobs,
		version:    version,
		gitCommit:  gitCommit,
	}
}

// Health returns the detailed health report. Any failing check turns the
// response into a 503.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			respondHealth(w, http.StatusServiceUnavailable, "shutting_down")
			return
		default:
		}

		report := h.run(r.Context())
		status := http.StatusOK
		if report.Status == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// Readyz returns a terse readiness response backed by the same checks as
// Health.
func (h *HealthChecker) Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := h.run(r.Context())
		if report.Status == "unhealthy" {
			respondHealth(w, http.StatusServiceUnavailable, "not_ready")
			return
		}
		respondHealth(w, http.StatusOK, "ready")
	})
}

func (h *HealthChecker) run(ctx context.Context) HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	checks := map[string]CheckResult{
		"database":   h.checkDatabase(ctx),
		"migrations": h.checkMigrations(ctx),
		"job_queue":  h.checkJobQueue(ctx),
	}

	overall := "healthy"
	for name, check := range checks {
		metrics.HealthCheckStatus.WithLabelValues(name).Set(checkGauge(check.Status))
		switch {
		case check.Status == checkFail:
			overall = "unhealthy"
		case check.Status == checkWarn && overall == "healthy":
			overall = "degraded"
		}
	}

	return HealthCheck{
		Status:    overall,
		Version:   h.version,
		GitCommit: h.gitCommit,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func checkGauge(status string) float64 {
	switch status {
	case checkPass:
		return 2
	case checkWarn:
		return 1
	default:
		return 0
	}
}

// checkDatabase verifies PostgreSQL answers within checkTimeout.
func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{
			Status:  checkFail,
			Message: "Database not initialized",
			Details: map[string]interface{}{
				"remediation": "Check that DATABASE_URL is set correctly and PostgreSQL is running",
			},
		}
	}

	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	err := h.db.Ping(dbCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Database ping failed"
		details := map[string]interface{}{"error": err.Error()}
		switch {
		case errors.Is(err, context.DeadlineExceeded) || dbCtx.Err() != nil:
			message = "Database ping timed out"
			details["remediation"] = "Check PostgreSQL load and network latency"
		case strings.Contains(err.Error(), "connection refused"):
			message = "Database connection refused"
			details["remediation"] = "Verify PostgreSQL is running and DATABASE_URL host/port are correct"
		case strings.Contains(err.Error(), "authentication failed"):
			message = "Database authentication failed"
			details["remediation"] = "Verify DATABASE_URL username and password are correct"
		default:
			details["remediation"] = "Check DATABASE_URL and PostgreSQL service status"
		}
		return CheckResult{Status: checkFail, Message: message, LatencyMs: latency, Details: details}
	}

	return CheckResult{Status: checkPass, Message: "PostgreSQL connection successful", LatencyMs: latency}
}

// checkMigrations fails on a dirty schema. The exact version is reported but
// not compared, since it moves with every release.
func (h *HealthChecker) checkMigrations(ctx context.Context) CheckResult {
	if h.migrations == nil {
		return CheckResult{Status: checkFail, Message: "Migration status unavailable"}
	}

	start := time.Now()
	migCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	version, dirty, err := h.migrations.SchemaVersion(migCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		details := map[string]interface{}{"error": err.Error()}
		message := "Failed to read migration version"
		if strings.Contains(err.Error(), "does not exist") {
			message = "Migrations table not found"
			details["remediation"] = "Run: rsvp migrate up"
		}
		return CheckResult{Status: checkFail, Message: message, LatencyMs: latency, Details: details}
	}

	if dirty {
		return CheckResult{
			Status:    checkFail,
			Message:   "Database in dirty migration state - manual intervention required",
			LatencyMs: latency,
			Details: map[string]interface{}{
				"version": version,
				"dirty":   true,
				"action":  "Do NOT run new migrations until this is resolved",
			},
		}
	}

	return CheckResult{
		Status:    checkPass,
		Message:   fmt.Sprintf("Migrations applied successfully (version %d)", version),
		LatencyMs: latency,
		Details:   map[string]interface{}{"version": version, "dirty": false},
	}
}

// checkJobQueue warns rather than fails when jobs are off, since requests are
// still served without notifications.
func (h *HealthChecker) checkJobQueue(ctx context.Context) CheckResult {
	if h.jobs == nil {
		return CheckResult{Status: checkWarn, Message: "Job queue disabled"}
	}

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	active, ok, err := h.jobs.ActiveJobs(jobCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return CheckResult{
			Status:    checkFail,
			Message:   "Failed to query job queue",
			LatencyMs: latency,
			Details:   map[string]interface{}{"error": err.Error()},
		}
	}
	if !ok {
		return CheckResult{
			Status:    checkWarn,
			Message:   "River job queue table not found",
			LatencyMs: latency,
			Details:   map[string]interface{}{"remediation": "Start the server once with jobs enabled to install River tables"},
		}
	}

	return CheckResult{
		Status:    checkPass,
		Message:   "River job queue operational",
		LatencyMs: latency,
		Details:   map[string]interface{}{"active_jobs": active},
	}
}

// Healthz is the liveness probe. It never touches dependencies.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ok")
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	writeJSON(w, status, healthResponse{Status: value})
}
