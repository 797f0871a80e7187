// internal/handler/led_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"superkey-service/internal/led"
	"superkey-service/internal/utils"
)

// LEDHandler exposes LED control over HTTP.
type LEDHandler struct {
	controller *led.Controller
	logger     *utils.ServiceLogger
}

// NewLEDHandler creates an LED handler.
func NewLEDHandler(controller *led.Controller, logger *zap.Logger) *LEDHandler {
	return &LEDHandler{
		controller: controller,
		logger:     utils.NewServiceLogger(logger, "led-handler"),
	}
}

// RegisterRoutes registers LED routes.
func (h *LEDHandler) RegisterRoutes(router *gin.RouterGroup) {
	leds := router.Group("/led")
	{
		leds.GET("/state", h.GetState)
		leds.GET("/presets", h.ListPresets)
		leds.GET("/effects", h.ListEffects)
		leds.POST("/brightness", h.SetBrightness)
		leds.POST("/color", h.SetColor)
		leds.POST("/preset", h.SetPreset)
		leds.POST("/effect", h.SetEffect)
		leds.POST("/single", h.SetSingle)
		leds.POST("/stop", h.Stop)
	}
}

// GetState returns the last requested LED settings.
func (h *LEDHandler) GetState(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "State retrieved successfully", h.controller.State())
}

// ListPresets returns the named color presets.
func (h *LEDHandler) ListPresets(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Presets retrieved successfully", gin.H{
		"presets": led.ColorPresets,
	})
}

// ListEffects returns the supported animation modes.
func (h *LEDHandler) ListEffects(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Effects retrieved successfully", gin.H{
		"effects": led.Effects,
	})
}

// BrightnessRequest sets the global brightness.
type BrightnessRequest struct {
	Brightness int `json:"brightness"`
}

// SetBrightness sets the global brightness (0-255, clamped).
func (h *LEDHandler) SetBrightness(c *gin.Context) {
	var req BrightnessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.controller.SetBrightness(req.Brightness); err != nil {
		utils.ErrorResponse(c, http.StatusConflict, "Failed to set brightness", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Brightness set successfully", h.controller.State())
}

// ColorRequest sets the strip color, either as RRGGBB or components.
type ColorRequest struct {
	Color string `json:"color"`
	R     *int   `json:"r"`
	G     *int   `json:"g"`
	B     *int   `json:"b"`
}

// SetColor sets the strip color.
func (h *LEDHandler) SetColor(c *gin.Context) {
	var req ColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var err error
	switch {
	case req.Color != "":
		err = h.controller.SetColor(req.Color)
	case req.R != nil && req.G != nil && req.B != nil:
		err = h.controller.SetColorRGB(*req.R, *req.G, *req.B)
	default:
		utils.ErrorResponse(c, http.StatusBadRequest, "Provide color or r/g/b components", nil)
		return
	}

	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to set color", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Color set successfully", h.controller.State())
}

// PresetRequest selects a named color preset.
type PresetRequest struct {
	Name string `json:"name" binding:"required"`
}

// SetPreset selects a named device-side color preset.
func (h *LEDHandler) SetPreset(c *gin.Context) {
	var req PresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.controller.SetPreset(req.Name); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to set preset", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Preset set successfully", h.controller.State())
}

// EffectRequest switches the animation mode, optionally with params.
type EffectRequest struct {
	Effect     string `json:"effect" binding:"required"`
	Color      string `json:"color"`
	PeriodMs   int    `json:"period_ms"`
	Brightness *int   `json:"brightness"`
}

// SetEffect switches the animation mode.
func (h *LEDHandler) SetEffect(c *gin.Context) {
	var req EffectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effect, err := led.ParseEffect(req.Effect)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown effect", err)
		return
	}

	if req.Color == "" && req.PeriodMs == 0 && req.Brightness == nil {
		err = h.controller.SetEffect(effect)
	} else {
		brightness := -1
		if req.Brightness != nil {
			brightness = *req.Brightness
		}
		err = h.controller.SetEffectParams(effect, req.Color, req.PeriodMs, brightness)
	}

	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to set effect", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Effect set successfully", h.controller.State())
}

// SingleRequest colors one LED.
type SingleRequest struct {
	Index int    `json:"index"`
	Color string `json:"color" binding:"required"`
}

// SetSingle colors one LED by index.
func (h *LEDHandler) SetSingle(c *gin.Context) {
	var req SingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.controller.SetSingle(req.Index, req.Color); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to set LED", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "LED set successfully", nil)
}

// Stop halts all LED effects.
func (h *LEDHandler) Stop(c *gin.Context) {
	if err := h.controller.Stop(); err != nil {
		utils.ErrorResponse(c, http.StatusConflict, "Failed to stop effects", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Effects stopped", nil)
}
