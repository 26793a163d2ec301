package handlers

import (
	"context"
	"net/http"
	"time"

	"signup-service/internal/config"
	interfaces "signup-service/internal/interfaces/infrastructure"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker func(ctx context.Context) error

// HealthHandler handles health check requests
type HealthHandler struct {
	checks map[string]HealthChecker
	queue  interfaces.QueueService
}

// NewHealthHandler creates a new health handler. queue may be nil.
func NewHealthHandler(checks map[string]HealthChecker, queue interfaces.QueueService) *HealthHandler {
	return &HealthHandler{checks: checks, queue: queue}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Services  map[string]string      `json:"services"`
	Queue     *interfaces.QueueStats `json:"queue,omitempty"`
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	cfg := config.Get()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, services := h.run(ctx)

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   cfg.App.Version,
		Services:  services,
	}

	if h.queue != nil {
		if stats, err := h.queue.Stats(ctx); err == nil {
			response.Queue = &stats
		} else {
			services["queue"] = "unhealthy: " + err.Error()
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// ReadinessCheck handles GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, _ := h.run(ctx)
	ready := status == "healthy"

	response := map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now(),
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// LivenessCheck handles GET /live
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	response := map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) run(ctx context.Context) (string, map[string]string) {
	status := "healthy"
	services := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			status = "degraded"
			continue
		}
		services[name] = "healthy"
	}
	return status, services
}
