// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/discovery"
	"superkey-service/internal/firmware"
	"superkey-service/internal/handler"
	"superkey-service/internal/led"
	"superkey-service/internal/power"
	"superkey-service/internal/provider"
	"superkey-service/internal/routes"
	"superkey-service/internal/telemetry"
	"superkey-service/internal/transport"
	"superkey-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	// Device link and feature components
	link      *transport.Transport
	detector  *discovery.Detector
	monitor   *provider.SystemMonitor
	scheduler *telemetry.Scheduler
	updater   *firmware.Updater
	version   *firmware.VersionChecker
	leds      *led.Controller
	notifier  *power.Notifier

	// Real-time bridge
	wsHandler *handler.WebSocketHandler
	bridge    *handler.BridgeEventHandler
}

func main() {
	// Initialize application
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Start the application
	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Create service logger
	serviceLogger := utils.NewServiceLogger(logger, "superkey-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	// Initialize components
	if err := app.initializeLink(); err != nil {
		return nil, fmt.Errorf("failed to initialize serial link: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	if err := app.initializeBridge(); err != nil {
		return nil, fmt.Errorf("failed to initialize event bridge: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeLink sets up the serial transport
func (app *Application) initializeLink() error {
	app.link = transport.New(&app.config.Serial, app.logger)

	app.logger.Info("Serial link initialized",
		zap.String("port", app.config.Serial.Port),
		zap.Int("baud_rate", app.config.Serial.BaudRate),
		zap.Bool("auto_reconnect", app.config.Serial.AutoReconnect),
	)
	return nil
}

// initializeComponents creates the feature components around the link
func (app *Application) initializeComponents() error {
	// Port probing for device auto-detection
	app.detector = discovery.NewDetector(&app.config.Serial, app.logger)

	// Hardware monitoring provider for performance telemetry
	app.monitor = provider.NewSystemMonitor(app.logger)

	// Telemetry scheduler; weather and stock providers are external
	// collaborators and may be absent
	app.scheduler = telemetry.NewScheduler(
		&app.config.Telemetry,
		app.link,
		app.monitor,
		nil,
		nil,
		app.logger,
	)

	// Firmware updater and version checker
	app.updater = firmware.NewUpdater(&app.config.Firmware, app.link, app.logger)
	app.version = firmware.NewVersionChecker(app.link)

	// LED controller
	app.leds = led.NewController(app.link, app.logger)

	// Power state notifier
	app.notifier = power.NewNotifier(app.link, app.logger)
	app.notifier.SetEnabled(app.config.Power.Enabled)

	app.logger.Info("Components initialized successfully")
	return nil
}

// initializeBridge wires component callbacks to WebSocket broadcasts
func (app *Application) initializeBridge() error {
	app.wsHandler = handler.NewWebSocketHandler(app.link, app.logger)
	app.bridge = handler.NewBridgeEventHandler(app.wsHandler, app.logger)

	app.link.SetConnectionChangedHandler(app.bridge.OnConnectionChanged)
	app.link.SetDataReceivedHandler(app.bridge.OnDataReceived)
	app.link.SetAutoReconnectHandler(app.bridge.OnAutoReconnect)
	app.updater.SetStatusHandler(app.bridge.OnFirmwareStatus)
	app.updater.SetProgressHandler(app.bridge.OnFirmwareProgress)
	app.scheduler.SetStateChangedHandler(app.bridge.OnTelemetryState)

	app.logger.Info("Event bridge initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	// Create router
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.link,
		app.detector,
		app.scheduler,
		app.updater,
		app.version,
		app.leds,
		app.notifier,
		app.wsHandler,
	)

	// Setup router with all routes
	router := routerManager.SetupRouter()

	// Create HTTP server
	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)

	return nil
}

// connectOnStartup attempts the initial device connection
func (app *Application) connectOnStartup() {
	if app.config.Serial.Port == "" {
		app.logger.Info("No serial port configured, waiting for connect request")
		return
	}

	if err := app.link.Connect(); err != nil {
		// Not fatal: auto-reconnect picks the device up when it appears
		app.logger.Warn("Initial device connection failed",
			zap.String("port", app.config.Serial.Port),
			zap.Error(err),
		)
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	// Create channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Perform graceful shutdown
	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "superkey-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// Stop telemetry before dropping the link
	app.scheduler.Stop()
	app.logger.Info("Telemetry scheduler stopped")

	// Stop any pending wake retries
	app.notifier.Close()

	// Disconnect the device
	app.link.Disconnect()
	app.logger.Info("Serial link closed")

	app.logger.Info("Application shutdown completed")

	// Flush logger
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

func (app *Application) Start() error {
	// Start server in goroutine
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Connect the configured device, if any
	app.connectOnStartup()

	// Start telemetry scheduling
	app.scheduler.Start()

	// Wait for interrupt signal
	app.waitForShutdown()

	return nil
}
