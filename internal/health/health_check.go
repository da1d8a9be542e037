package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pinger checks a backing service's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides health check endpoints.
type HealthChecker struct {
	pool   *pgxpool.Pool
	cache  Pinger
	logger *zap.Logger
}

// HealthStatus represents the health status response.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker. cache may be nil when the
// service runs with the in-memory cache.
func NewHealthChecker(pool *pgxpool.Pool, cache Pinger, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		pool:   pool,
		cache:  cache,
		logger: logger,
	}
}

// LivenessHandler handles liveness probe requests.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	})
}

// ReadinessHandler handles readiness probe requests; it verifies the
// database and the cache are reachable.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if err := h.pool.Ping(ctx); err != nil {
		h.logger.Warn("Database readiness check failed", zap.Error(err))
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("Cache readiness check failed", zap.Error(err))
			checks["cache"] = err.Error()
			healthy = false
		} else {
			checks["cache"] = "ok"
		}
	}

	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}
	code := http.StatusOK
	if !healthy {
		status.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	writeStatus(w, code, status)
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
