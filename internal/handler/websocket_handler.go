// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"superkey-service/internal/transport"
	"superkey-service/internal/utils"
)

// maxBroadcastBytes caps the serial payload forwarded per stream frame
// so a chatty device cannot flood slow clients.
const maxBroadcastBytes = 512

// WebSocketHandler manages WebSocket connections for real-time communication
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	link        *transport.Transport
	logger      *utils.ServiceLogger
	eventBus    *EventBus
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(link *transport.Transport, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// In production, implement proper origin checking
			return true
		},
	}

	handler := &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		link:        link,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
		eventBus:    NewEventBus(),
	}

	// Start event bus and the delivery loop feeding event clients
	go handler.eventBus.Start()
	go handler.forwardEvents(handler.eventBus.Subscribe())

	return handler
}

// EventBus exposes the internal bus so other components can subscribe
// to the same events WebSocket clients receive.
func (h *WebSocketHandler) EventBus() *EventBus {
	return h.eventBus
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Service events (connection state, firmware progress, telemetry state)
	router.GET("/events", h.HandleEventConnection)

	// Raw serial data stream
	router.GET("/stream", h.HandleStreamConnection)
}

// HandleEventConnection handles service event WebSocket connections
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        "events",
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	// Send initial link status so clients do not have to wait for a change
	go h.sendInitialLinkStatus(client)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// HandleStreamConnection handles raw serial stream WebSocket connections
func (h *WebSocketHandler) HandleStreamConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        "stream",
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Stream WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	// Set read deadline and pong handler
	client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		// Parse message
		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Error("Failed to parse WebSocket message",
				zap.Error(err),
				zap.String("client_id", client.ID),
			)
			continue
		}

		// Handle message
		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe":
		h.handleSubscription(client, message)
	case "unsubscribe":
		h.handleUnsubscription(client, message)
	case "send":
		h.handleSerialSend(client, message)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
	}
}

// handleSubscription handles client subscription requests
func (h *WebSocketHandler) handleSubscription(client *Client, message *WebSocketMessage) {
	if client.Subscriptions == nil {
		client.Subscriptions = make(map[string]bool)
	}

	if data, ok := message.Data.(map[string]interface{}); ok {
		if topic, ok := data["topic"].(string); ok {
			client.Subscriptions[topic] = true
			h.logger.Info("Client subscribed to topic",
				zap.String("client_id", client.ID),
				zap.String("topic", topic),
			)

			// Send subscription confirmation
			h.sendMessage(client, &WebSocketMessage{
				Type: "subscription_confirmed",
				Data: map[string]interface{}{
					"topic": topic,
				},
				Timestamp: time.Now(),
			})
		}
	}
}

// handleUnsubscription handles client unsubscription requests
func (h *WebSocketHandler) handleUnsubscription(client *Client, message *WebSocketMessage) {
	if client.Subscriptions == nil {
		return
	}

	if data, ok := message.Data.(map[string]interface{}); ok {
		if topic, ok := data["topic"].(string); ok {
			delete(client.Subscriptions, topic)
			h.logger.Info("Client unsubscribed from topic",
				zap.String("client_id", client.ID),
				zap.String("topic", topic),
			)
		}
	}
}

// handleSerialSend forwards a payload from a stream client to the serial link
func (h *WebSocketHandler) handleSerialSend(client *Client, message *WebSocketMessage) {
	if client.Type != "stream" {
		h.sendError(client, "send only available on stream connections")
		return
	}

	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, "invalid send data")
		return
	}

	payload, ok := data["data"].(string)
	if !ok || payload == "" {
		h.sendError(client, "data is required")
		return
	}

	var format transport.DataFormat
	if rawFormat, ok := data["format"].(string); ok && rawFormat != "" {
		parsed, err := transport.ParseFormat(rawFormat)
		if err != nil {
			h.sendError(client, err.Error())
			return
		}
		format = parsed
	}

	if err := h.link.Send(payload, format); err != nil {
		h.sendError(client, err.Error())
	}
}

// sendInitialLinkStatus sends the current link status to a new client
func (h *WebSocketHandler) sendInitialLinkStatus(client *Client) {
	message := &WebSocketMessage{
		Type: "initial_status",
		Data: map[string]interface{}{
			"connected": h.link.IsConnected(),
			"config":    h.link.Config(),
		},
		Timestamp: time.Now(),
	}

	h.sendMessage(client, message)
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	message := &WebSocketMessage{
		Type: "error",
		Data: map[string]interface{}{
			"error": errorMsg,
		},
		Timestamp: time.Now(),
	}
	h.sendMessage(client, message)
}

// BroadcastEvent publishes a service event on the internal bus; the
// delivery loop fans it out to connected event clients.
func (h *WebSocketHandler) BroadcastEvent(eventType string, data map[string]interface{}) {
	h.eventBus.Publish(Event{
		Type:      eventType,
		Source:    "bridge",
		Data:      data,
		Timestamp: time.Now(),
	})
}

// forwardEvents delivers bus events to connected event clients.
func (h *WebSocketHandler) forwardEvents(events <-chan Event) {
	for event := range events {
		message := &WebSocketMessage{
			Type:      event.Type,
			Data:      event.Data,
			Timestamp: event.Timestamp,
		}
		h.broadcastToClients(h.connections.GetEventClients(), message)
	}
}

// BroadcastSerialData broadcasts received serial data to all stream clients
func (h *WebSocketHandler) BroadcastSerialData(data []byte) {
	clients := h.connections.GetStreamClients()
	if len(clients) == 0 {
		return
	}

	truncated := false
	if len(data) > maxBroadcastBytes {
		data = data[:maxBroadcastBytes]
		truncated = true
	}

	message := &WebSocketMessage{
		Type: "serial_data",
		Data: map[string]interface{}{
			"text":      string(data),
			"hex":       transport.RenderPayload(data, transport.FormatHex),
			"truncated": truncated,
		},
		Timestamp: time.Now(),
	}

	h.broadcastToClients(clients, message)
}

// broadcastToClients broadcasts a message to a list of clients
func (h *WebSocketHandler) broadcastToClients(clients []*Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.Send <- messageBytes:
		default:
			h.logger.Warn("Client send channel full, dropping broadcast",
				zap.String("client_id", client.ID),
			)
		}
	}
}

// GetConnectionStats returns statistics about active WebSocket connections
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
