// Package client implements the client side of a board session: one
// connection to the hub, local rendering of shapes and a local undo/redo
// buffer of canvas snapshots.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shared-canvas/whiteboard/internal/history"
	"github.com/shared-canvas/whiteboard/internal/model"
	"github.com/shared-canvas/whiteboard/internal/protocol"
)

const (
	writeWait = 10 * time.Second

	defaultSendQueueSize = 256
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotJoined        = errors.New("not joined")
	ErrNameRequired     = errors.New("user name is required")
	ErrSendQueueFull    = errors.New("send queue full")
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Surface is the render target. Capture and Restore exchange opaque
// snapshots; Restore(nil) blanks the surface.
type Surface interface {
	Render(x1, y1, x2, y2 float64, color string)
	Clear()
	Capture() []byte
	Restore(snapshot []byte)
}

// Identity supplies the user name to join with.
type Identity interface {
	CurrentUserName() string
}

// StaticIdentity is an Identity with a fixed name.
type StaticIdentity string

func (s StaticIdentity) CurrentUserName() string {
	return string(s)
}

// Options configures a Controller. Callbacks run outside the controller's
// lock, in event order.
type Options struct {
	Dialer        *websocket.Dialer
	SendQueueSize int
	Logger        *slog.Logger

	OnStateChange func(state State, err error)
	OnPresence    func(users []string)
	OnShape       func(shape model.Shape)
}

// link is one transport connection. A Controller replaces it on every
// Connect so that a stale read loop cannot tear down a newer connection.
type link struct {
	conn     *websocket.Conn
	outbound chan []byte
}

// Controller drives one client session. All surface mutations are
// serialized by mu.
type Controller struct {
	surface  Surface
	identity Identity
	opts     Options
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	link      *link
	joinSent  bool
	users     []string
	drawn     map[string]model.Shape
	history   *history.Stack
	lastStamp int64
}

// New creates a disconnected Controller.
func New(surface Surface, identity Identity, opts Options) *Controller {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = defaultSendQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		surface:  surface,
		identity: identity,
		opts:     opts,
		logger:   logger.With("component", "client"),
		drawn:    make(map[string]model.Shape),
		history:  history.New(),
	}
}

// Connect dials the hub and, if the identity has a name, sends a join. The
// controller is Joined once the hub's init arrives. There is one attempt per
// call and no automatic reconnect.
func (c *Controller) Connect(ctx context.Context, url string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.notifyState(StateConnecting, nil)

	conn, _, err := c.opts.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		err = fmt.Errorf("failed to connect to %s: %w", url, err)
		c.notifyState(StateDisconnected, err)
		return err
	}

	l := &link{conn: conn, outbound: make(chan []byte, c.opts.SendQueueSize)}

	c.mu.Lock()
	c.link = l
	c.joinSent = false
	c.mu.Unlock()

	go c.writeLoop(l)
	go c.readLoop(l)

	if strings.TrimSpace(c.identity.CurrentUserName()) == "" {
		c.logger.Info("connected without a name, waiting for join")
		return nil
	}
	return c.Join()
}

// Join sends a join for the identity's current name. It is needed only when
// Connect ran before a name was available.
func (c *Controller) Join() error {
	name := strings.TrimSpace(c.identity.CurrentUserName())
	if name == "" {
		return ErrNameRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link == nil {
		return ErrNotConnected
	}
	if c.joinSent {
		return model.ErrAlreadyJoined
	}
	if err := c.sendLocked(protocol.JoinRequest(name)); err != nil {
		return err
	}
	c.joinSent = true
	return nil
}

// Disconnect closes the connection. The controller returns to Disconnected.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()

	if l == nil {
		return ErrNotConnected
	}
	c.teardown(l, nil)
	return nil
}

// EmitStroke draws a segment locally and sends it to the hub with a fresh id.
func (c *Controller) EmitStroke(x1, y1, x2, y2 float64, color string) (model.Shape, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireJoinedLocked(); err != nil {
		return model.Shape{}, err
	}

	name := strings.TrimSpace(c.identity.CurrentUserName())
	shape := model.Shape{
		ID:         model.ShapeID(name, c.nextStampLocked()),
		X1:         x1,
		Y1:         y1,
		X2:         x2,
		Y2:         y2,
		Color:      color,
		AuthorName: name,
	}
	if err := shape.Validate(); err != nil {
		return model.Shape{}, err
	}

	c.renderLocked(shape)
	if err := c.sendLocked(protocol.DrawRequest(shape)); err != nil {
		return model.Shape{}, err
	}
	return shape, nil
}

// CommitStrokeEnd records the current canvas as an undo point.
func (c *Controller) CommitStrokeEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.Push(c.surface.Capture())
}

// Undo restores the previous committed canvas. It reports false, and does
// not touch the surface, when there is nothing to undo.
func (c *Controller) Undo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	restore, ok := c.history.Undo()
	if !ok {
		return false
	}
	c.surface.Restore(restore)
	return true
}

// Redo re-applies the most recently undone canvas.
func (c *Controller) Redo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	restore, ok := c.history.Redo()
	if !ok {
		return false
	}
	c.surface.Restore(restore)
	return true
}

// Clear asks the hub to clear the board. The local canvas is cleared when
// the hub's clear broadcast arrives.
func (c *Controller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireJoinedLocked(); err != nil {
		return err
	}
	return c.sendLocked(protocol.ClearRequest())
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Users returns the last presence set received from the hub.
func (c *Controller) Users() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.users))
	copy(out, c.users)
	return out
}

// ShapeCount returns the number of distinct shapes drawn on the local canvas
// since the last clear.
func (c *Controller) ShapeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.drawn)
}

// HistoryLen returns the sizes of the undo and redo stacks.
func (c *Controller) HistoryLen() (undo, redo int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Len(), c.history.RedoLen()
}

// HandleMessage applies one server frame to the local state.
func (c *Controller) HandleMessage(data []byte) error {
	msg, err := protocol.ParseServerMessage(data)
	if err != nil {
		return err
	}

	var (
		joined   bool
		presence []string
		shape    *model.Shape
	)

	c.mu.Lock()
	switch msg.Kind() {
	case protocol.MessageTypeInit:
		shapes, errs := msg.InitShapes()
		for _, e := range errs {
			c.logger.Warn("skipping undecodable init shape", "err", e)
		}
		c.surface.Clear()
		c.drawn = make(map[string]model.Shape, len(shapes))
		c.history.Clear()
		for _, s := range shapes {
			c.renderLocked(s)
		}
		c.users = msg.Users
		presence = msg.Users
		if c.state != StateJoined {
			c.state = StateJoined
			joined = true
		}
	case protocol.MessageTypeJoin, protocol.MessageTypeLeave:
		c.users = msg.Users
		presence = msg.Users
	case protocol.MessageTypeClear:
		c.surface.Clear()
		c.drawn = make(map[string]model.Shape)
		c.history.Clear()
	case protocol.MessageTypeShape:
		s, err := model.DecodeShape(msg.Data)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.renderLocked(s)
		shape = &s
	default:
		c.mu.Unlock()
		return fmt.Errorf("unrecognized server message %q", msg.Kind())
	}
	c.mu.Unlock()

	if joined {
		c.notifyState(StateJoined, nil)
	}
	if presence != nil && c.opts.OnPresence != nil {
		c.opts.OnPresence(presence)
	}
	if shape != nil && c.opts.OnShape != nil {
		c.opts.OnShape(*shape)
	}
	return nil
}

// renderLocked draws a shape unless the identical segment is already drawn
// under the same id.
func (c *Controller) renderLocked(s model.Shape) {
	if prev, ok := c.drawn[s.ID]; ok && prev.SameSegment(s) {
		return
	}
	c.surface.Render(s.X1, s.Y1, s.X2, s.Y2, s.Color)
	c.drawn[s.ID] = s
}

func (c *Controller) requireJoinedLocked() error {
	switch c.state {
	case StateJoined:
		return nil
	case StateDisconnected:
		return ErrNotConnected
	default:
		return ErrNotJoined
	}
}

func (c *Controller) sendLocked(v any) error {
	if c.link == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	select {
	case c.link.outbound <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// nextStampLocked returns a strictly increasing millisecond stamp.
func (c *Controller) nextStampLocked() int64 {
	stamp := time.Now().UnixMilli()
	if stamp <= c.lastStamp {
		stamp = c.lastStamp + 1
	}
	c.lastStamp = stamp
	return stamp
}

func (c *Controller) readLoop(l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.teardown(l, err)
			return
		}
		if err := c.HandleMessage(data); err != nil {
			c.logger.Warn("dropping server message", "err", err)
		}
	}
}

func (c *Controller) writeLoop(l *link) {
	for data := range l.outbound {
		l.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			l.conn.Close()
			return
		}
	}
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	l.conn.Close()
}

// teardown retires l if it is still the current link.
func (c *Controller) teardown(l *link, cause error) {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	c.link = nil
	c.joinSent = false
	c.state = StateDisconnected
	close(l.outbound)
	c.mu.Unlock()

	if cause != nil {
		c.logger.Warn("connection lost", "err", cause)
	} else {
		c.logger.Info("disconnected")
	}
	c.notifyState(StateDisconnected, cause)
}

func (c *Controller) notifyState(state State, err error) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(state, err)
	}
}
