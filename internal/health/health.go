// Package health provides liveness and readiness endpoints for the SCIM
// service.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ComponentStatus represents the health status of a single component
type ComponentStatus struct {
	Status    string  `json:"status"` // up, degraded, down
	LatencyMS float64 `json:"latency_ms"`
	Details   string  `json:"details,omitempty"`
	CheckedAt string  `json:"checked_at"`
}

// HealthResponse is the response structure for health checks
type HealthResponse struct {
	Status     string                     `json:"status"` // up, degraded, down
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	CheckedAt  string                     `json:"checked_at"`
}

// HealthChecker is the interface that dependency health checks must implement
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) ComponentStatus
	IsCritical() bool
}

// HealthService orchestrates health checks across registered dependencies
type HealthService struct {
	checkers  []HealthChecker
	logger    *zap.Logger
	startTime time.Time
	version   string
}

// NewHealthService creates a new HealthService
func NewHealthService(logger *zap.Logger) *HealthService {
	return &HealthService{
		logger:    logger.With(zap.String("component", "health")),
		startTime: time.Now(),
	}
}

// SetVersion sets the application version reported in health responses
func (h *HealthService) SetVersion(version string) {
	h.version = version
}

// RegisterCheck adds a new health checker to the service
func (h *HealthService) RegisterCheck(checker HealthChecker) {
	h.checkers = append(h.checkers, checker)
	h.logger.Info("Registered health checker",
		zap.String("name", checker.Name()),
		zap.Bool("critical", checker.IsCritical()))
}

// Check runs all registered health checkers and aggregates the results
func (h *HealthService) Check(ctx context.Context) *HealthResponse {
	components := make(map[string]ComponentStatus, len(h.checkers))

	overallStatus := "up"
	for _, checker := range h.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status := checker.Check(checkCtx)
		cancel()

		components[checker.Name()] = status

		switch status.Status {
		case "down":
			overallStatus = "down"
			h.logger.Warn("Component is down", zap.String("component", checker.Name()))
		case "degraded":
			if overallStatus != "down" {
				overallStatus = "degraded"
			}
		}
	}

	return &HealthResponse{
		Status:     overallStatus,
		Components: components,
		Version:    h.version,
		Uptime:     formatDuration(time.Since(h.startTime)),
		CheckedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Handler returns the full health check endpoint. It returns 200 for
// up/degraded and 503 for down.
func (h *HealthService) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := h.Check(c.Request.Context())

		httpStatus := http.StatusOK
		if resp.Status == "down" {
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, resp)
	}
}

// ReadyHandler serves Kubernetes readiness probes. Returns 503 when any
// critical component is down.
func (h *HealthService) ReadyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := h.Check(c.Request.Context())

		for _, checker := range h.checkers {
			if !checker.IsCritical() {
				continue
			}
			if comp, ok := resp.Components[checker.Name()]; ok && comp.Status == "down" {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "not ready",
					"reason": fmt.Sprintf("critical component %s is down", checker.Name()),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// LiveHandler serves Kubernetes liveness probes. Always returns 200 while the
// process is alive.
func (h *HealthService) LiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "alive",
			"uptime": formatDuration(time.Since(h.startTime)),
		})
	}
}

// RegisterStandardRoutes registers the standard health endpoints
func (h *HealthService) RegisterStandardRoutes(router *gin.Engine, prefix string) {
	if prefix == "" {
		prefix = "/health"
	}
	router.GET(prefix, h.Handler())
	router.GET(prefix+"/ready", h.ReadyHandler())
	router.GET(prefix+"/live", h.LiveHandler())
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
