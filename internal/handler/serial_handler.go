// internal/handler/serial_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"superkey-service/internal/discovery"
	"superkey-service/internal/transport"
	"superkey-service/internal/utils"
)

// SerialHandler exposes the serial link over HTTP.
type SerialHandler struct {
	link     *transport.Transport
	detector *discovery.Detector
	logger   *utils.ServiceLogger
}

// NewSerialHandler creates a serial link handler.
func NewSerialHandler(link *transport.Transport, detector *discovery.Detector, logger *zap.Logger) *SerialHandler {
	return &SerialHandler{
		link:     link,
		detector: detector,
		logger:   utils.NewServiceLogger(logger, "serial-handler"),
	}
}

// RegisterRoutes registers serial link routes.
func (h *SerialHandler) RegisterRoutes(router *gin.RouterGroup) {
	serial := router.Group("/serial")
	{
		serial.GET("/ports", h.ListPorts)
		serial.GET("/detect", h.DetectDevice)
		serial.GET("/bauds", h.ListBaudRates)
		serial.GET("/status", h.GetStatus)
		serial.POST("/connect", h.Connect)
		serial.POST("/disconnect", h.Disconnect)
		serial.PUT("/config", h.Configure)
		serial.PUT("/options", h.SetOptions)
		serial.POST("/send", h.Send)
		serial.GET("/receive", h.Receive)
		serial.DELETE("/buffer", h.ClearBuffer)
		serial.POST("/rts", h.ToggleRTS)
		serial.POST("/dtr", h.ToggleDTR)
		serial.POST("/reset-device", h.ResetDevice)
		serial.POST("/autosend", h.AutoSend)
	}
}

// ListPorts enumerates serial ports on the host.
func (h *SerialHandler) ListPorts(c *gin.Context) {
	ports, err := transport.AvailablePorts()
	if err != nil {
		h.logger.Error("Failed to enumerate serial ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to enumerate serial ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Ports retrieved successfully", gin.H{
		"ports": ports,
		"count": len(ports),
	})
}

// DetectDevice probes candidate ports for a responding device. The
// active link's port is left untouched.
func (h *SerialHandler) DetectDevice(c *gin.Context) {
	skip := ""
	if h.link.IsConnected() {
		skip = h.link.Config().Port
	}

	candidates, err := h.detector.Detect(c.Request.Context(), skip)
	if err != nil {
		h.logger.Error("Device detection failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Device detection failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Detection completed successfully", gin.H{
		"candidates": candidates,
		"count":      len(candidates),
	})
}

// ListBaudRates returns the supported baud rates.
func (h *SerialHandler) ListBaudRates(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Baud rates retrieved successfully", gin.H{
		"baud_rates": transport.BaudRates(),
	})
}

// GetStatus returns link state, configuration and statistics.
func (h *SerialHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved successfully", gin.H{
		"connected":      h.link.IsConnected(),
		"config":         h.link.Config(),
		"stats":          h.link.Stats(),
		"auto_reconnect": h.link.AutoReconnectEnabled(),
	})
}

// Connect opens the serial link, optionally reconfiguring it first.
func (h *SerialHandler) Connect(c *gin.Context) {
	var update transport.ConfigUpdate
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&update); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		if err := h.link.Configure(update); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid connection parameters", err)
			return
		}
	}

	if err := h.link.Connect(); err != nil {
		h.logger.Error("Serial connect failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusConflict, "Failed to connect", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Connected successfully", gin.H{
		"config": h.link.Config(),
	})
}

// Disconnect closes the serial link.
func (h *SerialHandler) Disconnect(c *gin.Context) {
	h.link.Disconnect()
	utils.SuccessResponse(c, http.StatusOK, "Disconnected successfully", nil)
}

// Configure merges connection parameters; RTS/DTR apply immediately
// on a live link.
func (h *SerialHandler) Configure(c *gin.Context) {
	var update transport.ConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.link.Configure(update); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid connection parameters", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Configuration updated successfully", h.link.Config())
}

// OptionsRequest adjusts link behavior toggles.
type OptionsRequest struct {
	NewlineOnSend       *bool   `json:"newline_on_send"`
	ReceivePaused       *bool   `json:"receive_paused"`
	AutoReconnect       *bool   `json:"auto_reconnect"`
	ReconnectIntervalMs *int    `json:"reconnect_interval_ms"`
	SendFormat          *string `json:"send_format"`
	ReceiveFormat       *string `json:"receive_format"`
}

// SetOptions adjusts link behavior toggles.
func (h *SerialHandler) SetOptions(c *gin.Context) {
	var req OptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.NewlineOnSend != nil {
		h.link.SetNewlineOnSend(*req.NewlineOnSend)
	}
	if req.ReceivePaused != nil {
		h.link.PauseReceive(*req.ReceivePaused)
	}
	if req.AutoReconnect != nil {
		h.link.EnableAutoReconnect(*req.AutoReconnect)
	}
	if req.ReconnectIntervalMs != nil {
		h.link.SetReconnectInterval(time.Duration(*req.ReconnectIntervalMs) * time.Millisecond)
	}
	if req.SendFormat != nil {
		format, err := transport.ParseFormat(*req.SendFormat)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid send format", err)
			return
		}
		h.link.SetSendFormat(format)
	}
	if req.ReceiveFormat != nil {
		format, err := transport.ParseFormat(*req.ReceiveFormat)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid receive format", err)
			return
		}
		h.link.SetReceiveFormat(format)
	}

	utils.SuccessResponse(c, http.StatusOK, "Options updated successfully", nil)
}

// SendRequest carries an outbound payload.
type SendRequest struct {
	Data   string `json:"data" binding:"required"`
	Format string `json:"format"`
}

// Send transmits a payload over the link.
func (h *SerialHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	format, err := transport.ParseFormat(req.Format)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid format", err)
		return
	}

	if err := h.link.Send(req.Data, format); err != nil {
		status := http.StatusConflict
		if err == transport.ErrQueueFull {
			status = http.StatusTooManyRequests
		}
		utils.ErrorResponse(c, status, "Failed to send", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Data sent successfully", nil)
}

// Receive drains and returns the inbound buffer.
func (h *SerialHandler) Receive(c *gin.Context) {
	format, err := transport.ParseFormat(c.Query("format"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid format", err)
		return
	}

	data := h.link.Receive(format)
	utils.SuccessResponse(c, http.StatusOK, "Data retrieved successfully", gin.H{
		"data":   data,
		"format": format,
	})
}

// ClearBuffer discards queued inbound data.
func (h *SerialHandler) ClearBuffer(c *gin.Context) {
	h.link.ClearReceiveBuffer()
	utils.SuccessResponse(c, http.StatusOK, "Receive buffer cleared", nil)
}

// ToggleRTS flips the RTS line.
func (h *SerialHandler) ToggleRTS(c *gin.Context) {
	level, err := h.link.ToggleRTS()
	if err != nil {
		utils.ErrorResponse(c, http.StatusConflict, "Failed to toggle RTS", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "RTS toggled successfully", gin.H{"rts": level})
}

// ToggleDTR flips the DTR line.
func (h *SerialHandler) ToggleDTR(c *gin.Context) {
	level, err := h.link.ToggleDTR()
	if err != nil {
		utils.ErrorResponse(c, http.StatusConflict, "Failed to toggle DTR", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "DTR toggled successfully", gin.H{"dtr": level})
}

// ResetDevice hardware-resets the companion device via RTS/DTR pulses.
func (h *SerialHandler) ResetDevice(c *gin.Context) {
	if err := h.link.ResetTargetDevice(); err != nil {
		utils.ErrorResponse(c, http.StatusConflict, "Failed to reset device", err)
		return
	}

	h.logger.Info("Companion device hardware reset issued")
	utils.SuccessResponse(c, http.StatusOK, "Device reset successfully", nil)
}

// AutoSendRequest controls the periodic send loop.
type AutoSendRequest struct {
	Enabled    bool   `json:"enabled"`
	Data       string `json:"data"`
	IntervalMs int    `json:"interval_ms"`
}

// AutoSend starts or stops the periodic send loop.
func (h *SerialHandler) AutoSend(c *gin.Context) {
	var req AutoSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if !req.Enabled {
		h.link.StopAutoSend()
		utils.SuccessResponse(c, http.StatusOK, "Auto-send stopped", nil)
		return
	}

	if req.Data == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Auto-send data is required", nil)
		return
	}
	if req.IntervalMs < 10 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Auto-send interval must be at least 10ms", nil)
		return
	}

	h.link.StartAutoSend(req.Data, time.Duration(req.IntervalMs)*time.Millisecond)
	utils.SuccessResponse(c, http.StatusOK, "Auto-send started", gin.H{
		"interval_ms": req.IntervalMs,
	})
}
