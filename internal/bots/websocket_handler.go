package bots

import (
	"fmt"

	"github.com/minefleet/minefleet/internal/websocket"
	"github.com/minefleet/minefleet/pkg/logger"
)

// WebSocketHandler handles incoming push-channel messages from observers
type WebSocketHandler struct {
	manager *Manager
	logger  *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket message handler
func NewWebSocketHandler(manager *Manager, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		logger:  log.Named("bots-ws-handler"),
	}
}

// HandleMessage handles incoming WebSocket messages
func (h *WebSocketHandler) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case websocket.MessageTypeSendChat:
		return h.handleSendChat(data)
	default:
		h.logger.Debug("Unhandled message type", logger.String("type", messageType))
		return nil
	}
}

// handleSendChat routes a send_chat request to the manager's send path
func (h *WebSocketHandler) handleSendChat(data map[string]any) error {
	botID, _ := data["botId"].(string)
	content, _ := data["content"].(string)
	if botID == "" || content == "" {
		return fmt.Errorf("send_chat requires botId and content")
	}
	h.manager.SendChat(botID, content)
	return nil
}
