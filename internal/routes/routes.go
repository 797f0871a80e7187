// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/discovery"
	"superkey-service/internal/firmware"
	"superkey-service/internal/handler"
	"superkey-service/internal/led"
	"superkey-service/internal/middleware"
	"superkey-service/internal/power"
	"superkey-service/internal/telemetry"
	"superkey-service/internal/transport"
	"superkey-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config    *config.Config
	logger    *zap.Logger
	link      *transport.Transport
	detector  *discovery.Detector
	scheduler *telemetry.Scheduler
	updater   *firmware.Updater
	version   *firmware.VersionChecker
	leds      *led.Controller
	notifier  *power.Notifier
	wsHandler *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	link *transport.Transport,
	detector *discovery.Detector,
	scheduler *telemetry.Scheduler,
	updater *firmware.Updater,
	version *firmware.VersionChecker,
	leds *led.Controller,
	notifier *power.Notifier,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:    config,
		logger:    logger,
		link:      link,
		detector:  detector,
		scheduler: scheduler,
		updater:   updater,
		version:   version,
		leds:      leds,
		notifier:  notifier,
		wsHandler: wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Create Gin engine
	router := gin.New()

	// Add middleware
	r.addMiddleware(router)

	// Add routes
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	// Recovery middleware
	router.Use(middleware.RecoveryMiddleware(r.logger))

	// Request ID middleware
	router.Use(middleware.RequestIDMiddleware())

	// Logging middleware
	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	// CORS middleware
	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	// Create handlers
	healthHandler := handler.NewHealthHandler(r.link, r.config, r.logger)
	serialHandler := handler.NewSerialHandler(r.link, r.detector, r.logger)
	telemetryHandler := handler.NewTelemetryHandler(r.scheduler, r.logger)
	firmwareHandler := handler.NewFirmwareHandler(r.updater, r.version, r.logger)
	ledHandler := handler.NewLEDHandler(r.leds, r.logger)
	powerHandler := handler.NewPowerHandler(r.notifier, r.logger)

	// Health check routes (no auth required)
	health := router.Group("")
	healthHandler.RegisterRoutes(health)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	serialHandler.RegisterRoutes(apiV1)
	telemetryHandler.RegisterRoutes(apiV1)
	firmwareHandler.RegisterRoutes(apiV1)
	ledHandler.RegisterRoutes(apiV1)
	powerHandler.RegisterRoutes(apiV1)

	// WebSocket routes
	ws := router.Group("/ws")
	r.wsHandler.RegisterRoutes(ws)

	r.logger.Info("All routes configured successfully")
}
