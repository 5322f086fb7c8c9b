package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Criptoruim/jackalmultibuy/internal/services"

	"github.com/gin-gonic/gin"
)

// HealthChecker is what the health endpoints need
type HealthChecker interface {
	CheckDatabase(ctx context.Context) *services.HealthCheck
	GetDetailedHealth(ctx context.Context) map[string]*services.HealthCheck
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checker HealthChecker
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker HealthChecker, version string) *HealthHandler {
	return &HealthHandler{checker: checker, version: version}
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    services.HealthStatus            `json:"status"`
	Timestamp time.Time                        `json:"timestamp"`
	Services  map[string]*services.HealthCheck `json:"services"`
	Version   string                           `json:"version,omitempty"`
}

// OverallStatus is the worst status among checks
func OverallStatus(checks map[string]*services.HealthCheck) services.HealthStatus {
	overall := services.HealthStatusHealthy
	for _, check := range checks {
		switch check.Status {
		case services.HealthStatusUnhealthy:
			return services.HealthStatusUnhealthy
		case services.HealthStatusDegraded:
			overall = services.HealthStatusDegraded
		}
	}
	return overall
}

// GetHealth returns the overall health status. Degraded still answers 200.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	checks := h.checker.GetDetailedHealth(c.Request.Context())
	overall := OverallStatus(checks)

	statusCode := http.StatusOK
	if overall == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Services:  checks,
		Version:   h.version,
	})
}

// GetLiveness returns a simple liveness check
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// GetReadiness reports ready once the API key store answers
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	dbHealth := h.checker.CheckDatabase(c.Request.Context())

	if dbHealth.Status == services.HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"message":   "database not available",
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// GetDatabaseHealth returns detailed database health information
func (h *HealthHandler) GetDatabaseHealth(c *gin.Context) {
	healthCheck := h.checker.CheckDatabase(c.Request.Context())

	statusCode := http.StatusOK
	if healthCheck.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, healthCheck)
}
