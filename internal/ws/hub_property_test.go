package ws

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/shared-canvas/whiteboard/internal/model"
	"github.com/shared-canvas/whiteboard/internal/protocol"
)

// replica applies server messages the way a client canvas would.
type replica struct {
	shapes *orderedmap.OrderedMap[string, model.Shape]
	users  []string
}

func newReplica() *replica {
	return &replica{shapes: orderedmap.New[string, model.Shape]()}
}

func (r *replica) apply(msg *protocol.ServerMessage) error {
	switch msg.Kind() {
	case protocol.MessageTypeInit:
		shapes, errs := msg.InitShapes()
		if len(errs) > 0 {
			return errs[0]
		}
		r.shapes = orderedmap.New[string, model.Shape]()
		for _, s := range shapes {
			r.shapes.Set(s.ID, s)
		}
		r.users = msg.Users
	case protocol.MessageTypeShape:
		s, err := model.DecodeShape(msg.Data)
		if err != nil {
			return err
		}
		r.shapes.Set(s.ID, s)
	case protocol.MessageTypeClear:
		r.shapes = orderedmap.New[string, model.Shape]()
	case protocol.MessageTypeJoin, protocol.MessageTypeLeave:
		r.users = msg.Users
	default:
		return fmt.Errorf("unexpected message kind %q", msg.Kind())
	}
	return nil
}

func (r *replica) snapshot() []model.Shape {
	out := make([]model.Shape, 0, r.shapes.Len())
	for pair := r.shapes.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func drain(t *testing.T, c *Client, r *replica) bool {
	for {
		select {
		case data, ok := <-c.SendChan():
			if !ok {
				return true
			}
			msg, err := protocol.ParseServerMessage(data)
			if err != nil {
				t.Logf("parse: %v", err)
				return false
			}
			if err := r.apply(msg); err != nil {
				t.Logf("apply: %v", err)
				return false
			}
		default:
			return true
		}
	}
}

// Any interleaving of draws and clears leaves every connected replica, and a
// late joiner's init, equal to the hub's board.
func TestBoardConvergenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("replicas converge to the stored board", prop.ForAll(
		func(ops []int) bool {
			hub := newTestHub()
			defer hub.Close()

			names := []string{"alice", "bob", "carol"}
			clients := make([]*Client, len(names))
			replicas := make([]*replica, len(names))
			for i, name := range names {
				clients[i] = NewClient(nil, 1024)
				replicas[i] = newReplica()
				if _, err := hub.Join(clients[i], name); err != nil {
					t.Logf("join: %v", err)
					return false
				}
			}

			for _, op := range ops {
				who := op % len(names)
				if op%11 == 0 {
					hub.Clear(clients[who])
					continue
				}
				// A small id space per author forces overwrites
				id := model.ShapeID(names[who], int64(op%4))
				shape := model.Shape{ID: id, X1: float64(op), Y1: 1, X2: 2, Y2: float64(op % 7), Color: "black"}
				if _, err := hub.Draw(clients[who], shape); err != nil {
					t.Logf("draw: %v", err)
					return false
				}
			}

			want := hub.Snapshot()
			for i, c := range clients {
				if !drain(t, c, replicas[i]) {
					return false
				}
				if got := replicas[i].snapshot(); !reflect.DeepEqual(got, want) && !(len(got) == 0 && len(want) == 0) {
					t.Logf("%s diverged: %v vs %v", names[i], got, want)
					return false
				}
				if !reflect.DeepEqual(replicas[i].users, names) {
					t.Logf("%s presence: %v", names[i], replicas[i].users)
					return false
				}
			}

			late := NewClient(nil, 16)
			lateReplica := newReplica()
			if _, err := hub.Join(late, "dave"); err != nil {
				return false
			}
			if !drain(t, late, lateReplica) {
				return false
			}
			got := lateReplica.snapshot()
			return reflect.DeepEqual(got, want) || (len(got) == 0 && len(want) == 0)
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
