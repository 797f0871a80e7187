// internal/handler/event_bus.go
package handler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"superkey-service/internal/firmware"
	"superkey-service/internal/telemetry"
)

// EventBus decouples event producers from WebSocket delivery: events
// are published onto a buffered channel and fanned out to subscribers.
type EventBus struct {
	subscribers []chan Event
	events      chan Event
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// Event represents a system event
type Event struct {
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		events: make(chan Event, 1000),
	}
}

// Start starts the event bus
func (eb *EventBus) Start() {
	for event := range eb.events {
		eb.distributeEvent(event)
	}
}

// Publish publishes an event
func (eb *EventBus) Publish(event Event) {
	select {
	case eb.events <- event:
	default:
		// Event bus is full, log warning
		if eb.logger != nil {
			eb.logger.Warn("Event bus full, dropping event",
				zap.String("event_type", event.Type),
			)
		}
	}
}

// Subscribe returns a channel receiving every published event.
// Subscriptions last for the life of the bus.
func (eb *EventBus) Subscribe() <-chan Event {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan Event, 100)
	eb.subscribers = append(eb.subscribers, subscriber)
	return subscriber
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event Event) {
	eb.mutex.RLock()
	subscribers := make([]chan Event, len(eb.subscribers))
	copy(subscribers, eb.subscribers)
	eb.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// BridgeEventHandler forwards component callbacks to WebSocket clients
type BridgeEventHandler struct {
	websocketHandler *WebSocketHandler
	logger           *zap.Logger
}

// NewBridgeEventHandler creates a new bridge event handler
func NewBridgeEventHandler(websocketHandler *WebSocketHandler, logger *zap.Logger) *BridgeEventHandler {
	return &BridgeEventHandler{
		websocketHandler: websocketHandler,
		logger:           logger,
	}
}

// OnConnectionChanged handles serial link state changes
func (beh *BridgeEventHandler) OnConnectionChanged(connected bool) {
	status := "disconnected"
	if connected {
		status = "connected"
	}

	beh.websocketHandler.BroadcastEvent("link_status", map[string]interface{}{
		"connected": connected,
		"status":    status,
	})

	beh.logger.Info("Link status event broadcasted", zap.Bool("connected", connected))
}

// OnDataReceived handles inbound serial data
func (beh *BridgeEventHandler) OnDataReceived(data []byte) {
	beh.websocketHandler.BroadcastSerialData(data)
}

// OnAutoReconnect handles automatic reconnection events
func (beh *BridgeEventHandler) OnAutoReconnect(success bool, port string, reconnected bool) {
	beh.websocketHandler.BroadcastEvent("auto_reconnect", map[string]interface{}{
		"port":        port,
		"success":     success,
		"reconnected": reconnected,
	})

	beh.logger.Info("Auto reconnect event broadcasted",
		zap.String("port", port),
		zap.Bool("success", success),
	)
}

// OnFirmwareStatus handles firmware update status changes
func (beh *BridgeEventHandler) OnFirmwareStatus(status firmware.Status, message string) {
	beh.websocketHandler.BroadcastEvent("firmware_status", map[string]interface{}{
		"status":  string(status),
		"message": message,
	})

	beh.logger.Info("Firmware status event broadcasted",
		zap.String("status", string(status)),
		zap.String("message", message),
	)
}

// OnFirmwareProgress handles firmware update progress changes
func (beh *BridgeEventHandler) OnFirmwareProgress(percent int) {
	beh.websocketHandler.BroadcastEvent("firmware_progress", map[string]interface{}{
		"percent": percent,
	})
}

// OnTelemetryState handles telemetry scheduler state changes
func (beh *BridgeEventHandler) OnTelemetryState(status telemetry.Status) {
	beh.websocketHandler.BroadcastEvent("telemetry_state", map[string]interface{}{
		"running":   status.Running,
		"connected": status.Connected,
		"enabled":   status.Enabled,
		"intervals": status.Intervals,
	})
}
