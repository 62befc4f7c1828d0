package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/shared-canvas/whiteboard/internal/model"
	"github.com/shared-canvas/whiteboard/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize is the largest inbound frame accepted from a peer.
	// A larger frame closes the connection.
	DefaultMaxMessageSize = 8192
)

// HandlerOptions tunes per-connection limits. Zero values select defaults;
// a zero MessagesPerSecond disables rate limiting.
type HandlerOptions struct {
	SendQueueSize     int
	MaxMessageSize    int64
	MessagesPerSecond float64
	Burst             int
	Metrics           *Metrics
	Logger            *slog.Logger
}

// Handler upgrades HTTP requests and pumps frames between each connection
// and the hub.
type Handler struct {
	hub      *Hub
	opts     HandlerOptions
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, opts HandlerOptions) *Handler {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = DefaultSendQueueSize
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.MessagesPerSecond > 0 && opts.Burst <= 0 {
		opts.Burst = int(opts.MessagesPerSecond)
		if opts.Burst < 1 {
			opts.Burst = 1
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With("component", "ws"),
	}
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func (h *Handler) SetCheckOrigin(fn func(r *http.Request) bool) {
	h.upgrader.CheckOrigin = fn
}

// HandleConnection upgrades the request and starts the connection's pumps.
// The connection has no session until it sends a join.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, h.opts.SendQueueSize)
	h.logger.Debug("connection opened", "conn", client.ID(), "remote", client.RemoteAddr())

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// handleMessage classifies one inbound frame and applies it to the hub.
// Anything that cannot be applied is logged and dropped; the connection
// stays open. Frames larger than MaxMessageSize never get here: the read
// limit is a transport limit and closes the connection, which is a Leave.
func (h *Handler) handleMessage(client *Client, raw []byte) {
	req, err := protocol.ParseRequest(raw)
	if err != nil {
		h.drop(client, DropMalformed, err)
		return
	}

	switch req.Kind() {
	case protocol.MessageTypeJoin:
		name := ""
		if req.Name != nil {
			name = *req.Name
		}
		if _, err := h.hub.Join(client, name); err != nil {
			h.drop(client, dropReason(err), err)
		}
	case protocol.MessageTypeDraw:
		shape, err := req.Shape()
		if err != nil {
			h.drop(client, DropMalformed, err)
			return
		}
		if _, err := h.hub.Draw(client, shape); err != nil {
			h.drop(client, dropReason(err), err)
		}
	case protocol.MessageTypeClear:
		if err := h.hub.Clear(client); err != nil {
			h.drop(client, dropReason(err), err)
		}
	default:
		h.drop(client, DropUnknown, errors.New("unrecognized message"))
	}
}

func (h *Handler) drop(client *Client, reason string, err error) {
	h.opts.Metrics.RecordDrop(reason)
	h.logger.Warn("dropping message", "conn", client.ID(), "reason", reason, "err", err)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, model.ErrNotJoined):
		return DropNotJoined
	case errors.Is(err, model.ErrMalformedShape):
		return DropMalformed
	default:
		return DropRejected
	}
}

func (h *Handler) newLimiter() *rate.Limiter {
	if h.opts.MessagesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.Burst)
}

// readPump pumps messages from the WebSocket connection to the hub.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Leave(client)
		client.Conn().Close()
		h.logger.Debug("connection closed", "conn", client.ID())
	}()

	limiter := h.newLimiter()

	client.Conn().SetReadLimit(h.opts.MaxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "conn", client.ID(), "err", err)
			}
			break
		}

		if limiter != nil && !limiter.Allow() {
			h.drop(client, DropRateLimited, errors.New("rate limit exceeded"))
			continue
		}

		h.handleMessage(client, message)
	}
}

// writePump pumps queued frames to the WebSocket connection and keeps it
// alive with pings.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued, ok := <-client.SendChan()
				if !ok {
					client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
