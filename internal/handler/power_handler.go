// internal/handler/power_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"superkey-service/internal/power"
	"superkey-service/internal/utils"
)

// PowerHandler exposes host sleep/wake forwarding over HTTP. The
// platform layer that observes power events calls the sleep/wake
// endpoints; clients can also trigger them manually.
type PowerHandler struct {
	notifier *power.Notifier
	logger   *utils.ServiceLogger
}

// NewPowerHandler creates a power handler.
func NewPowerHandler(notifier *power.Notifier, logger *zap.Logger) *PowerHandler {
	return &PowerHandler{
		notifier: notifier,
		logger:   utils.NewServiceLogger(logger, "power-handler"),
	}
}

// RegisterRoutes registers power routes.
func (h *PowerHandler) RegisterRoutes(router *gin.RouterGroup) {
	pw := router.Group("/power")
	{
		pw.GET("/status", h.GetStatus)
		pw.PUT("/config", h.Configure)
		pw.POST("/sleep", h.Sleep)
		pw.POST("/wake", h.Wake)
	}
}

// GetStatus returns forwarding state.
func (h *PowerHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved successfully", gin.H{
		"enabled":  h.notifier.Enabled(),
		"sleeping": h.notifier.Sleeping(),
	})
}

// PowerConfigRequest toggles forwarding.
type PowerConfigRequest struct {
	Enabled bool `json:"enabled"`
}

// Configure toggles sleep/wake forwarding.
func (h *PowerHandler) Configure(c *gin.Context) {
	var req PowerConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.notifier.SetEnabled(req.Enabled)
	utils.SuccessResponse(c, http.StatusOK, "Configuration updated successfully", gin.H{
		"enabled": req.Enabled,
	})
}

// Sleep forwards a host sleep event to the device.
func (h *PowerHandler) Sleep(c *gin.Context) {
	h.notifier.NotifySleep()
	utils.SuccessResponse(c, http.StatusOK, "Sleep notification processed", gin.H{
		"sleeping": h.notifier.Sleeping(),
	})
}

// Wake forwards a host wake event to the device.
func (h *PowerHandler) Wake(c *gin.Context) {
	h.notifier.NotifyWake()
	utils.SuccessResponse(c, http.StatusOK, "Wake notification processed", gin.H{
		"sleeping": h.notifier.Sleeping(),
	})
}
