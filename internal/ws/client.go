package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultSendQueueSize is the number of outbound frames buffered per client.
const DefaultSendQueueSize = 256

// Client represents a WebSocket client connection.
type Client struct {
	id         string
	conn       *websocket.Conn
	remoteAddr string
	send       chan []byte
	mu         sync.Mutex
	closed     bool
}

// NewClient creates a new WebSocket client with a bounded send queue.
func NewClient(conn *websocket.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	c := &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, queueSize),
	}
	if conn != nil {
		c.remoteAddr = conn.RemoteAddr().String()
	}
	return c
}

// Send queues a message to be sent to the client without blocking. It
// returns false when the client is closed or its queue is full; a full queue
// closes the client.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		// Buffer full, close the client
		c.closeLocked()
		return false
	}
}

// Close closes the client's send queue. The write pump then closes the
// connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ID returns the opaque connection id.
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the peer address, if known.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}
