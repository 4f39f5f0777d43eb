package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"pairwatch/pkg/logger"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
)

// Pinger is the reachability probe of the market data gateway
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides health check endpoints. The gateway check is mandatory;
// postgres and clickhouse are checked only when configured (nil otherwise).
type Handler struct {
	log         *logger.Logger
	gateway     Pinger
	postgres    *sqlx.DB
	clickhouse  driver.Conn
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler
func New(
	log *logger.Logger,
	gateway Pinger,
	postgres *sqlx.DB,
	clickhouse driver.Conn,
	serviceName string,
	version string,
) *Handler {
	return &Handler{
		log:         log,
		gateway:     gateway,
		postgres:    postgres,
		clickhouse:  clickhouse,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 OK if the process is running
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
	})
}

// HandleReadiness checks whether every configured dependency is reachable.
// Used by the Kubernetes readiness probe.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := h.runChecks(ctx)

	allHealthy := true
	for _, check := range checks {
		if check.Status != "healthy" {
			allHealthy = false
		}
	}

	status := HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if !allHealthy {
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		h.log.Warnw("Readiness check failed", "checks", checks)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(status)
}

// HandleHealth returns detailed health status. A partial outage reports
// degraded but still answers 200; only a dead gateway makes the service
// unhealthy, the archive stores are auxiliary.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := h.runChecks(ctx)

	healthyCount := 0
	for _, check := range checks {
		if check.Status == "healthy" {
			healthyCount++
		}
	}

	status := HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	switch {
	case checks["gateway"].Status != "healthy":
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case healthyCount < len(checks):
		status.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(status)
}

func (h *Handler) runChecks(ctx context.Context) map[string]ComponentHealth {
	checks := make(map[string]ComponentHealth)

	checks["gateway"] = h.check(ctx, "gateway", h.gateway.Ping)

	if h.postgres != nil {
		checks["postgres"] = h.check(ctx, "postgres", h.postgres.PingContext)
	}
	if h.clickhouse != nil {
		checks["clickhouse"] = h.check(ctx, "clickhouse", h.clickhouse.Ping)
	}

	return checks
}

func (h *Handler) check(ctx context.Context, name string, ping func(context.Context) error) ComponentHealth {
	start := time.Now()
	err := ping(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Errorw("Health check failed", "component", name, "error", err, "elapsed", elapsed)
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}

	return ComponentHealth{
		Status:       "healthy",
		ResponseTime: elapsed.String(),
	}
}
