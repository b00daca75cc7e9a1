package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// HealthStatus represents the health of a single dependency
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthReport is the full readiness report
type HealthReport struct {
	Healthy bool                    `json:"healthy"`
	Checks  map[string]HealthStatus `json:"checks"`
}

// HealthChecker verifies connectivity to backing services
type HealthChecker struct {
	db      *sql.DB
	redis   *redis.Client
	timeout time.Duration
}

// NewHealthChecker creates a health checker. The redis client may be nil
// when caching is disabled.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{
		db:      db,
		redis:   redisClient,
		timeout: 5 * time.Second,
	}
}

// Readiness checks all configured dependencies
func (h *HealthChecker) Readiness(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := HealthReport{
		Healthy: true,
		Checks:  make(map[string]HealthStatus),
	}

	dbStatus := HealthStatus{Healthy: true}
	if err := h.db.PingContext(ctx); err != nil {
		dbStatus = HealthStatus{Healthy: false, Error: err.Error()}
		report.Healthy = false
	}
	report.Checks["database"] = dbStatus

	if h.redis != nil {
		redisStatus := HealthStatus{Healthy: true}
		if err := h.redis.Ping(ctx).Err(); err != nil {
			redisStatus = HealthStatus{Healthy: false, Error: err.Error()}
			report.Healthy = false
		}
		report.Checks["redis"] = redisStatus
	}

	return report
}

// LivenessHandler always reports alive while the process is serving
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// ReadinessHandler reports dependency health as JSON
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := h.Readiness(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !report.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
}
