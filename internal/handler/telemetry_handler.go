// internal/handler/telemetry_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"superkey-service/internal/telemetry"
	"superkey-service/internal/utils"
)

// TelemetryHandler exposes the telemetry scheduler over HTTP.
type TelemetryHandler struct {
	scheduler *telemetry.Scheduler
	logger    *utils.ServiceLogger
}

// NewTelemetryHandler creates a telemetry handler.
func NewTelemetryHandler(scheduler *telemetry.Scheduler, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		scheduler: scheduler,
		logger:    utils.NewServiceLogger(logger, "telemetry-handler"),
	}
}

// RegisterRoutes registers telemetry routes.
func (h *TelemetryHandler) RegisterRoutes(router *gin.RouterGroup) {
	tele := router.Group("/telemetry")
	{
		tele.GET("/status", h.GetStatus)
		tele.POST("/start", h.Start)
		tele.POST("/stop", h.Stop)
		tele.PUT("/config", h.Configure)
	}
}

// GetStatus returns the scheduler state and send statistics.
func (h *TelemetryHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved successfully", h.scheduler.Status())
}

// Start launches the telemetry workers.
func (h *TelemetryHandler) Start(c *gin.Context) {
	h.scheduler.Start()
	utils.SuccessResponse(c, http.StatusOK, "Telemetry started", h.scheduler.Status())
}

// Stop halts the telemetry workers.
func (h *TelemetryHandler) Stop(c *gin.Context) {
	h.scheduler.Stop()
	utils.SuccessResponse(c, http.StatusOK, "Telemetry stopped", nil)
}

// CategoryConfig adjusts one telemetry stream.
type CategoryConfig struct {
	Enabled    *bool `json:"enabled"`
	IntervalMs *int  `json:"interval_ms"`
}

// TelemetryConfigRequest adjusts scheduler behavior at runtime.
type TelemetryConfigRequest struct {
	Time             *CategoryConfig `json:"time"`
	API              *CategoryConfig `json:"api"`
	Performance      *CategoryConfig `json:"performance"`
	CommandSpacingMs *int            `json:"command_spacing_ms"`
}

// Configure adjusts per-category enables and intervals. Changes take
// effect on each worker's next cycle.
func (h *TelemetryHandler) Configure(c *gin.Context) {
	var req TelemetryConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	apply := func(cat telemetry.Category, cfg *CategoryConfig) {
		if cfg == nil {
			return
		}
		if cfg.Enabled != nil {
			h.scheduler.SetCategoryEnabled(cat, *cfg.Enabled)
		}
		if cfg.IntervalMs != nil {
			h.scheduler.SetInterval(cat, time.Duration(*cfg.IntervalMs)*time.Millisecond)
		}
	}

	apply(telemetry.CategoryTime, req.Time)
	apply(telemetry.CategoryAPI, req.API)
	apply(telemetry.CategoryPerformance, req.Performance)

	if req.CommandSpacingMs != nil {
		h.scheduler.SetSpacing(time.Duration(*req.CommandSpacingMs) * time.Millisecond)
	}

	h.logger.Info("Telemetry configuration updated")
	utils.SuccessResponse(c, http.StatusOK, "Configuration updated successfully", h.scheduler.Status())
}
