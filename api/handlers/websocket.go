package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/shared-canvas/whiteboard/internal/ws"
)

// WebSocketHandler upgrades board connections.
type WebSocketHandler struct {
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{wsHandler: wsHandler}
}

// Attach handles GET /ws. The connection has no session until it sends a
// join; upgrade failures are answered by the upgrader itself.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request); err != nil {
		c.Error(err)
	}
}

// RegisterRoutes registers the WebSocket route on a Gin router.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Attach)
}
