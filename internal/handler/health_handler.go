// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/transport"
	"superkey-service/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	link      *transport.Transport
	config    *config.Config
	logger    *utils.ServiceLogger
	startedAt time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(link *transport.Transport, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		link:      link,
		config:    config,
		logger:    utils.NewServiceLogger(logger, "health-handler"),
		startedAt: time.Now(),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck performs general health check. The serial link being
// down is reported but is not unhealthy; the service runs fine while
// the device is unplugged.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).String(),
		Checks:    make(map[string]CheckResult),
	}

	if h.link.IsConnected() {
		stats := h.link.Stats()
		health.Checks["serial_link"] = CheckResult{
			Status:  "healthy",
			Message: "Serial link connected",
			Data: map[string]interface{}{
				"port":       h.link.Config().Port,
				"rx_bytes":   stats.RxBytes,
				"tx_bytes":   stats.TxBytes,
				"errors":     stats.Errors,
				"duration_s": stats.Duration,
			},
		}
	} else {
		health.Checks["serial_link"] = CheckResult{
			Status:  "disconnected",
			Message: "Serial link not connected",
		}
	}

	c.JSON(http.StatusOK, health)
}

// ReadinessCheck for orchestration readiness probes
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for orchestration liveness probes
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
