package handler

import (
	"context"
	"net/http"
	"time"

	"sessiongate/internal/container"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Check handles GET /health. Only dependencies that are configured are checked; any
// failing check turns the response into a 503.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "sessiongate",
		Checks:    map[string]string{},
	}
	status := http.StatusOK

	if h.container.HasDatabase() {
		response.Checks["database"] = "ok"
		if err := h.container.DB.Health(ctx); err != nil {
			logger.WithError(err).Warn("Database health check failed")
			response.Checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	if h.container.HasRedis() {
		response.Checks["redis"] = "ok"
		if err := h.container.RedisClient.Health(ctx); err != nil {
			logger.WithError(err).Warn("Redis health check failed")
			response.Checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	if status != http.StatusOK {
		response.Status = "degraded"
	}

	writeJSON(w, status, response, logger)
}
