package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shared-canvas/whiteboard/internal/board"
	"github.com/shared-canvas/whiteboard/internal/model"
	"github.com/shared-canvas/whiteboard/internal/protocol"
	"github.com/shared-canvas/whiteboard/internal/session"
)

// Hub is the single authority over the board store and the session registry.
// Every mutation and the fan-out it causes happen under one lock, so a joiner
// never observes a half-applied update and its init frame is queued before any
// later broadcast.
type Hub struct {
	store    *board.Store
	registry *session.Registry
	clients  map[string]*Client
	logger   *slog.Logger
	metrics  *Metrics
	lastID   int64
	mu       sync.Mutex

	// Callbacks
	observer func(kind protocol.MessageType, payload []byte)
	onJoin   func(sess *model.Session)
	onLeave  func(sess *model.Session)
	cbMu     sync.RWMutex
}

// NewHub creates a Hub over the given store and registry.
func NewHub(store *board.Store, registry *session.Registry, logger *slog.Logger) *Hub {
	if store == nil {
		store = board.NewStore()
	}
	if registry == nil {
		registry = session.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		store:    store,
		registry: registry,
		clients:  make(map[string]*Client),
		logger:   logger.With("component", "hub"),
	}
}

// SetMetrics attaches metrics collectors. A nil Metrics disables recording.
func (h *Hub) SetMetrics(m *Metrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = m
}

// SetObserver sets a callback invoked for every broadcast frame. It runs with
// the hub lock held, in broadcast order, and must not call back into the hub.
func (h *Hub) SetObserver(callback func(kind protocol.MessageType, payload []byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observer = callback
}

// SetOnJoin sets the callback for created sessions. It runs after the hub
// lock is released.
func (h *Hub) SetOnJoin(callback func(sess *model.Session)) {
	h.cbMu.Lock()
	defer h.cbMu.Unlock()
	h.onJoin = callback
}

// SetOnLeave sets the callback for destroyed sessions, whether they left,
// disconnected or were reaped. It runs after the hub lock is released.
func (h *Hub) SetOnLeave(callback func(sess *model.Session)) {
	h.cbMu.Lock()
	defer h.cbMu.Unlock()
	h.onLeave = callback
}

// Join creates a session for the client, queues the init snapshot to it and
// announces the new presence set to every other session.
func (h *Hub) Join(c *Client, userName string) (*model.Session, error) {
	h.mu.Lock()

	sess, err := h.registry.Add(c.ID(), userName, c.RemoteAddr())
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	h.clients[c.ID()] = c

	encoded, err := h.store.Encoded()
	if err != nil {
		h.registry.Remove(c.ID())
		delete(h.clients, c.ID())
		h.mu.Unlock()
		return nil, fmt.Errorf("failed to build init snapshot: %w", err)
	}

	users := h.registry.Presence()
	var failed []*Client

	data, err := json.Marshal(protocol.NewInitMessage(encoded, users))
	if err != nil {
		h.registry.Remove(c.ID())
		delete(h.clients, c.ID())
		h.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal init message: %w", err)
	}
	if !c.Send(data) {
		failed = append(failed, c)
	}
	h.metrics.RecordMessage(string(protocol.MessageTypeInit))
	h.metrics.SetSessions(h.registry.Len())

	failed = append(failed, h.broadcastLocked(protocol.MessageTypeJoin, protocol.NewPresenceMessage(protocol.MessageTypeJoin, users), c)...)
	left := h.reapLocked(failed)
	h.mu.Unlock()

	h.logger.Info("session joined", "conn", c.ID(), "user", sess.UserName, "shapes", encoded.Len(), "users", len(users))
	h.notifyJoin(sess)
	h.notifyLeave(left)
	return sess, nil
}

// Draw stores the shape under its id and broadcasts it to every session,
// sender included. The author is always the sender's user name; a missing id
// is assigned from the user name and a monotonic stamp.
func (h *Hub) Draw(c *Client, shape model.Shape) (model.Shape, error) {
	h.mu.Lock()

	sess, ok := h.registry.Get(c.ID())
	if !ok {
		h.mu.Unlock()
		return model.Shape{}, model.ErrNotJoined
	}

	shape.AuthorName = sess.UserName
	if shape.ID == "" {
		shape.ID = model.ShapeID(sess.UserName, h.nextStampLocked())
	}

	if _, err := h.store.Put(shape); err != nil {
		h.mu.Unlock()
		return model.Shape{}, err
	}
	h.metrics.SetShapes(h.store.Len())

	msg, err := protocol.NewShapeMessage(shape)
	if err != nil {
		h.mu.Unlock()
		return model.Shape{}, err
	}
	failed := h.broadcastLocked(protocol.MessageTypeShape, msg, nil)
	left := h.reapLocked(failed)
	h.mu.Unlock()

	h.notifyLeave(left)
	return shape, nil
}

// Clear empties the store and tells every session to blank its canvas.
func (h *Hub) Clear(c *Client) error {
	h.mu.Lock()

	sess, ok := h.registry.Get(c.ID())
	if !ok {
		h.mu.Unlock()
		return model.ErrNotJoined
	}

	h.store.Clear()
	h.metrics.SetShapes(0)

	failed := h.broadcastLocked(protocol.MessageTypeClear, protocol.NewClearMessage(), nil)
	left := h.reapLocked(failed)
	h.mu.Unlock()

	h.logger.Info("board cleared", "conn", c.ID(), "user", sess.UserName)
	h.notifyLeave(left)
	return nil
}

// Leave destroys the client's session, if it has one, and announces the new
// presence set. It is safe to call more than once.
func (h *Hub) Leave(c *Client) (*model.Session, bool) {
	h.mu.Lock()

	sess, ok := h.removeLocked(c)
	if !ok {
		h.mu.Unlock()
		c.Close()
		return nil, false
	}

	left := []*model.Session{sess}
	failed := h.broadcastLocked(protocol.MessageTypeLeave, protocol.NewPresenceMessage(protocol.MessageTypeLeave, h.registry.Presence()), nil)
	left = append(left, h.reapLocked(failed)...)
	h.mu.Unlock()

	h.logger.Info("session left", "conn", c.ID(), "user", sess.UserName)
	h.notifyLeave(left)
	return sess, true
}

// Snapshot returns the stored shapes in arrival order.
func (h *Hub) Snapshot() []model.Shape {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Snapshot()
}

// Presence returns the current presence set.
func (h *Hub) Presence() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Presence()
}

// SessionCount returns the number of joined sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Len()
}

// Close destroys every session and closes every client.
func (h *Hub) Close() {
	h.mu.Lock()
	var left []*model.Session
	for _, id := range h.registry.ConnectionIDs() {
		if c, ok := h.clients[id]; ok {
			if sess, removed := h.removeLocked(c); removed {
				left = append(left, sess)
			}
		}
	}
	h.mu.Unlock()

	h.notifyLeave(left)
}

// broadcastLocked marshals msg once and queues it to every joined client
// except exclude. Clients whose queue rejects the frame are returned.
func (h *Hub) broadcastLocked(kind protocol.MessageType, msg any, exclude *Client) []*Client {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "kind", kind, "err", err)
		return nil
	}

	if h.observer != nil {
		h.observer(kind, data)
	}
	h.metrics.RecordMessage(string(kind))

	var failed []*Client
	for _, id := range h.registry.ConnectionIDs() {
		c := h.clients[id]
		if c == nil || c == exclude {
			continue
		}
		if !c.Send(data) {
			failed = append(failed, c)
		}
	}
	return failed
}

// reapLocked removes clients whose delivery failed and announces each
// departure, repeating until no further delivery fails.
func (h *Hub) reapLocked(failed []*Client) []*model.Session {
	var left []*model.Session
	for len(failed) > 0 {
		c := failed[0]
		failed = failed[1:]

		sess, ok := h.removeLocked(c)
		if !ok {
			continue
		}
		h.metrics.RecordReap()
		h.logger.Warn("reaping connection after failed delivery", "conn", c.ID(), "user", sess.UserName)
		left = append(left, sess)

		msg := protocol.NewPresenceMessage(protocol.MessageTypeLeave, h.registry.Presence())
		failed = append(failed, h.broadcastLocked(protocol.MessageTypeLeave, msg, nil)...)
	}
	return left
}

func (h *Hub) removeLocked(c *Client) (*model.Session, bool) {
	sess, ok := h.registry.Remove(c.ID())
	delete(h.clients, c.ID())
	c.Close()
	if ok {
		h.metrics.SetSessions(h.registry.Len())
	}
	return sess, ok
}

// nextStampLocked returns a strictly increasing nanosecond stamp.
func (h *Hub) nextStampLocked() int64 {
	stamp := time.Now().UnixNano()
	if stamp <= h.lastID {
		stamp = h.lastID + 1
	}
	h.lastID = stamp
	return stamp
}

func (h *Hub) notifyJoin(sess *model.Session) {
	h.cbMu.RLock()
	callback := h.onJoin
	h.cbMu.RUnlock()

	if callback != nil {
		callback(sess)
	}
}

func (h *Hub) notifyLeave(sessions []*model.Session) {
	if len(sessions) == 0 {
		return
	}
	h.cbMu.RLock()
	callback := h.onLeave
	h.cbMu.RUnlock()

	if callback == nil {
		return
	}
	for _, sess := range sessions {
		callback(sess)
	}
}
