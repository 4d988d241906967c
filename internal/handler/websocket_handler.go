// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"makino-adapter/internal/model"
	"makino-adapter/internal/service"
	"makino-adapter/internal/utils"
)

// WebSocketHandler pushes snapshots and adapter events to WebSocket clients
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	service     *service.AdapterService
	eventBus    *EventBus
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(svc *service.AdapterService, eventBus *EventBus, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			// Origins are restricted by the CORS configuration of the API
			return true
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		service:     svc,
		eventBus:    eventBus,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Full snapshot on every publication
	router.GET("/tools", h.HandleToolConnection)

	// Adapter events
	router.GET("/events", h.HandleEventConnection)
}

// Run forwards bus events to the clients until ctx is done
func (h *WebSocketHandler) Run(ctx context.Context) {
	events := h.eventBus.Subscribe(AllEvents)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			h.BroadcastEvent(event)
			if event.EventType == model.EventSnapshotPublished {
				h.BroadcastSnapshot(h.service.Snapshot())
			}
		}
	}
}

// HandleToolConnection handles snapshot WebSocket connections
func (h *WebSocketHandler) HandleToolConnection(c *gin.Context) {
	client, ok := h.upgrade(c, ClientTools)
	if !ok {
		return
	}

	if data := h.service.Snapshot(); data != nil {
		h.sendMessage(client, snapshotMessage(data))
	}
}

// HandleEventConnection handles adapter event WebSocket connections
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	client, ok := h.upgrade(c, ClientEvents)
	if !ok {
		return
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      "status",
		Data:      h.service.Status(),
		Timestamp: time.Now(),
	})
}

// upgrade upgrades the request and starts the client goroutines
func (h *WebSocketHandler) upgrade(c *gin.Context, kind string) (*Client, bool) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return nil, false
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        kind,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("type", kind),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
	return client, true
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

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

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Error("Failed to parse WebSocket message",
				zap.Error(err),
				zap.String("client_id", client.ID),
			)
			continue
		}

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
	case "subscribe", "unsubscribe":
		h.handleSubscription(client, message)
	case "command":
		h.handleCommand(client, message)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
	}
}

// handleSubscription restricts the event types sent to a client
func (h *WebSocketHandler) handleSubscription(client *Client, message *WebSocketMessage) {
	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, "invalid subscription data")
		return
	}
	eventType, ok := data["event_type"].(string)
	if !ok || eventType == "" {
		h.sendError(client, "event_type is required")
		return
	}

	if message.Type == "unsubscribe" {
		client.Unsubscribe(eventType)
		return
	}
	client.Subscribe(eventType)
	h.sendMessage(client, &WebSocketMessage{
		Type:      "subscription_confirmed",
		Data:      map[string]interface{}{"event_type": eventType},
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

// handleCommand runs a client command in the background
func (h *WebSocketHandler) handleCommand(client *Client, message *WebSocketMessage) {
	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, "invalid command data")
		return
	}
	command, ok := data["command"].(string)
	if !ok {
		h.sendError(client, "command is required")
		return
	}

	go h.executeCommand(client, command, message.RequestID)
}

// executeCommand executes a client command
func (h *WebSocketHandler) executeCommand(client *Client, command, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var err error
	var result interface{}

	switch command {
	case "refresh":
		// The new snapshot reaches tool clients through the bus
		var data *model.ToolLifeData
		data, err = h.service.Poll(ctx)
		if data != nil {
			result = map[string]interface{}{"tool_count": data.ToolCount(), "missing_fields": data.Missing}
		}
	case "snapshot":
		if data := h.service.Snapshot(); data != nil {
			result = data
		} else {
			err = service.ErrNoSnapshot
		}
	case "status":
		result = h.service.Status()
	default:
		h.sendError(client, fmt.Sprintf("unknown command: %s", command))
		return
	}

	response := map[string]interface{}{
		"command": command,
		"success": err == nil,
		"result":  result,
	}
	if err != nil {
		response["error"] = err.Error()
	}
	h.sendMessage(client, &WebSocketMessage{
		Type:      "command_response",
		Data:      response,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.send(client, messageBytes) {
		h.logger.Warn("Client gone or send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
	})
}

func snapshotMessage(data *model.ToolLifeData) *WebSocketMessage {
	return &WebSocketMessage{
		Type:      "snapshot",
		Data:      data,
		Timestamp: time.Now(),
	}
}

// BroadcastSnapshot sends a snapshot to every tool client
func (h *WebSocketHandler) BroadcastSnapshot(data *model.ToolLifeData) {
	if data == nil {
		return
	}
	h.broadcastToClients(h.connections.Clients(ClientTools), snapshotMessage(data), "")
}

// BroadcastEvent sends an adapter event to the event clients that want it
func (h *WebSocketHandler) BroadcastEvent(event model.AdapterEvent) {
	message := &WebSocketMessage{
		Type:      "adapter_event",
		Data:      event,
		Timestamp: event.Timestamp,
	}
	h.broadcastToClients(h.connections.Clients(ClientEvents), message, string(event.EventType))
}

// broadcastToClients broadcasts message to specified clients. An empty eventType skips the
// subscription filter.
func (h *WebSocketHandler) broadcastToClients(clients []*Client, message *WebSocketMessage, eventType string) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, client := range clients {
		if eventType != "" && !client.Wants(eventType) {
			continue
		}
		if !h.connections.send(client, messageBytes) {
			h.logger.Warn("Client send channel full during broadcast",
				zap.String("client_id", client.ID),
			)
		}
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
