// Package protocol defines the JSON messages exchanged between board clients
// and the hub.
//
// Client -> server:
//
//	{"name": "alice"}                                  join
//	{"id": "alice_1", "x1":0, "y1":0, "x2":1, "y2":1, "color":"red"}  draw (id optional)
//	{"type": "clear"}                                  clear
//
// Server -> client:
//
//	{"type":"init", "shapes": {"<id>": "<shape json>", ...}, "users": [...]}
//	{"type":"join"|"leave", "users": [...]}
//	{"type":"clear"}
//	{"id":"<id>", "data":"<shape json>"}               shape broadcast
//
// The shapes object of init is written in arrival order.
package protocol

import (
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/shared-canvas/whiteboard/internal/model"
)

// MessageType represents the type of a board message.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeJoin  MessageType = "join"
	MessageTypeDraw  MessageType = "draw"
	MessageTypeClear MessageType = "clear"

	// Server -> Client message types
	MessageTypeInit  MessageType = "init"
	MessageTypeLeave MessageType = "leave"
	MessageTypeShape MessageType = "shape"
)

// Request is an inbound message as decoded from the wire. Pointer fields
// distinguish absent values from zero values.
type Request struct {
	Type  MessageType `json:"type,omitempty"`
	Name  *string     `json:"name,omitempty"`
	ID    string      `json:"id,omitempty"`
	X1    *float64    `json:"x1,omitempty"`
	Y1    *float64    `json:"y1,omitempty"`
	X2    *float64    `json:"x2,omitempty"`
	Y2    *float64    `json:"y2,omitempty"`
	Color *string     `json:"color,omitempty"`
}

// ParseRequest decodes a raw inbound frame.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return &req, nil
}

// Kind classifies the request. An explicit type wins; otherwise any shape
// field makes it a draw and a bare name makes it a join. Anything else is
// unknown ("").
func (r *Request) Kind() MessageType {
	switch r.Type {
	case MessageTypeClear, MessageTypeJoin, MessageTypeDraw:
		return r.Type
	case "":
	default:
		return ""
	}

	switch {
	case r.X1 != nil || r.Y1 != nil || r.X2 != nil || r.Y2 != nil || r.Color != nil:
		return MessageTypeDraw
	case r.Name != nil:
		return MessageTypeJoin
	}
	return ""
}

// Shape extracts the draw fields. All five of x1, y1, x2, y2 and color must be
// present; the id is copied as sent and may be empty.
func (r *Request) Shape() (model.Shape, error) {
	if r.X1 == nil || r.Y1 == nil || r.X2 == nil || r.Y2 == nil || r.Color == nil {
		return model.Shape{}, fmt.Errorf("%w: x1, y1, x2, y2 and color are required", model.ErrMalformedShape)
	}
	return model.Shape{
		ID:    r.ID,
		X1:    *r.X1,
		Y1:    *r.Y1,
		X2:    *r.X2,
		Y2:    *r.Y2,
		Color: *r.Color,
	}, nil
}

// JoinRequest builds a join message.
func JoinRequest(name string) *Request {
	return &Request{Name: &name}
}

// DrawRequest builds a flat draw message from a shape.
func DrawRequest(s model.Shape) *Request {
	return &Request{
		ID:    s.ID,
		X1:    &s.X1,
		Y1:    &s.Y1,
		X2:    &s.X2,
		Y2:    &s.Y2,
		Color: &s.Color,
	}
}

// ClearRequest builds a clear message.
func ClearRequest() *Request {
	return &Request{Type: MessageTypeClear}
}

// InitMessage carries the late-join snapshot.
type InitMessage struct {
	Type   MessageType                           `json:"type"`
	Shapes *orderedmap.OrderedMap[string, string] `json:"shapes"`
	Users  []string                              `json:"users"`
}

// PresenceMessage announces the full presence set after a join or leave.
type PresenceMessage struct {
	Type  MessageType `json:"type"`
	Users []string    `json:"users"`
}

// ClearMessage instructs every client to blank its canvas.
type ClearMessage struct {
	Type MessageType `json:"type"`
}

// ShapeMessage broadcasts one shape as an id plus its JSON string form.
type ShapeMessage struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// NewInitMessage builds an init message. Nil inputs are replaced with empty
// values so the wire form always carries an object and an array.
func NewInitMessage(shapes *orderedmap.OrderedMap[string, string], users []string) *InitMessage {
	if shapes == nil {
		shapes = orderedmap.New[string, string]()
	}
	return &InitMessage{Type: MessageTypeInit, Shapes: shapes, Users: nonNil(users)}
}

// NewPresenceMessage builds a join or leave message.
func NewPresenceMessage(t MessageType, users []string) *PresenceMessage {
	return &PresenceMessage{Type: t, Users: nonNil(users)}
}

// NewClearMessage builds a clear broadcast.
func NewClearMessage() *ClearMessage {
	return &ClearMessage{Type: MessageTypeClear}
}

// NewShapeMessage builds a shape broadcast.
func NewShapeMessage(s model.Shape) (*ShapeMessage, error) {
	data, err := s.Encode()
	if err != nil {
		return nil, err
	}
	return &ShapeMessage{ID: s.ID, Data: data}, nil
}

// ServerMessage is the union of every server -> client message, used by
// clients to decode a frame before dispatching on its kind.
type ServerMessage struct {
	Type   MessageType                           `json:"type,omitempty"`
	Shapes *orderedmap.OrderedMap[string, string] `json:"shapes,omitempty"`
	Users  []string                              `json:"users,omitempty"`
	ID     string                                `json:"id,omitempty"`
	Data   string                                `json:"data,omitempty"`
}

// ParseServerMessage decodes a raw outbound frame.
func ParseServerMessage(data []byte) (*ServerMessage, error) {
	msg := ServerMessage{Shapes: orderedmap.New[string, string]()}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server message: %w", err)
	}
	return &msg, nil
}

// Kind classifies a server message; shape broadcasts carry no type.
func (m *ServerMessage) Kind() MessageType {
	if m.Type != "" {
		return m.Type
	}
	if m.Data != "" {
		return MessageTypeShape
	}
	return ""
}

// InitShapes decodes the init snapshot in the order it was sent. Entries
// that fail to decode are skipped and reported in the returned error slice.
func (m *ServerMessage) InitShapes() ([]model.Shape, []error) {
	if m.Shapes == nil {
		return nil, nil
	}
	shapes := make([]model.Shape, 0, m.Shapes.Len())
	var errs []error
	for pair := m.Shapes.Oldest(); pair != nil; pair = pair.Next() {
		s, err := model.DecodeShape(pair.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("shape %s: %w", pair.Key, err))
			continue
		}
		shapes = append(shapes, s)
	}
	return shapes, errs
}

func nonNil(users []string) []string {
	if users == nil {
		return []string{}
	}
	return users
}
