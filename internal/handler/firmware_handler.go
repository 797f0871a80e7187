// internal/handler/firmware_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"superkey-service/internal/firmware"
	"superkey-service/internal/utils"
)

// FirmwareHandler exposes the firmware update orchestrator over HTTP.
type FirmwareHandler struct {
	updater *firmware.Updater
	version *firmware.VersionChecker
	logger  *utils.ServiceLogger
}

// NewFirmwareHandler creates a firmware handler.
func NewFirmwareHandler(updater *firmware.Updater, version *firmware.VersionChecker, logger *zap.Logger) *FirmwareHandler {
	return &FirmwareHandler{
		updater: updater,
		version: version,
		logger:  utils.NewServiceLogger(logger, "firmware-handler"),
	}
}

// RegisterRoutes registers firmware routes.
func (h *FirmwareHandler) RegisterRoutes(router *gin.RouterGroup) {
	fw := router.Group("/firmware")
	{
		fw.GET("/status", h.GetStatus)
		fw.GET("/manifest", h.GetManifest)
		fw.GET("/version", h.GetDeviceVersion)
		fw.POST("/validate", h.Validate)
		fw.POST("/start", h.Start)
		fw.POST("/cancel", h.Cancel)
	}
}

// GetStatus returns the update state machine position and progress.
func (h *FirmwareHandler) GetStatus(c *gin.Context) {
	status, message := h.updater.Status()
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved successfully", gin.H{
		"status":   status,
		"message":  message,
		"progress": h.updater.Progress(),
	})
}

// GetManifest returns the required bundle contents.
func (h *FirmwareHandler) GetManifest(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Manifest retrieved successfully", gin.H{
		"entries": h.updater.Manifest(),
	})
}

// GetDeviceVersion queries the running firmware over the serial link.
func (h *FirmwareHandler) GetDeviceVersion(c *gin.Context) {
	version, err := h.version.Check()
	if err != nil {
		utils.ErrorResponse(c, http.StatusConflict, "Failed to read device version", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Version retrieved successfully", version)
}

// ValidateRequest names the bundle to check.
type ValidateRequest struct {
	BundlePath string `json:"bundle_path" binding:"required"`
}

// Validate checks an update bundle and stages its contents.
func (h *FirmwareHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result := h.updater.Validate(req.BundlePath)
	if !result.OK {
		utils.SuccessResponse(c, http.StatusOK, "Bundle rejected", result)
		return
	}

	h.logger.Info("Firmware bundle validated", zap.String("bundle", req.BundlePath))
	utils.SuccessResponse(c, http.StatusOK, "Bundle validated successfully", result)
}

// Start launches the flash sequence.
func (h *FirmwareHandler) Start(c *gin.Context) {
	if err := h.updater.Start(); err != nil {
		utils.ErrorResponse(c, http.StatusConflict, "Update refused", err)
		return
	}

	h.logger.Info("Firmware update started")
	utils.SuccessResponse(c, http.StatusAccepted, "Update started", nil)
}

// Cancel discards the staged bundle and resets the state machine.
func (h *FirmwareHandler) Cancel(c *gin.Context) {
	h.updater.Cancel()
	utils.SuccessResponse(c, http.StatusOK, "Update cancelled", nil)
}
