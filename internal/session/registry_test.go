package session

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/shared-canvas/whiteboard/internal/model"
)

func TestRegistry_Add(t *testing.T) {
	r := NewRegistry()

	t.Run("add session successfully", func(t *testing.T) {
		sess, err := r.Add("conn-1", "  alice ", "127.0.0.1:5000")
		if err != nil {
			t.Fatalf("Failed to add session: %v", err)
		}
		if sess.UserName != "alice" {
			t.Errorf("Expected trimmed name 'alice', got '%s'", sess.UserName)
		}
		if sess.Status != model.SessionStatusActive {
			t.Errorf("Expected status 'active', got '%s'", sess.Status)
		}
		if sess.ID == "" {
			t.Error("Session ID should not be empty")
		}
	})

	t.Run("reject empty name", func(t *testing.T) {
		if _, err := r.Add("conn-2", "   ", ""); !errors.Is(err, model.ErrNameRequired) {
			t.Errorf("Expected ErrNameRequired, got %v", err)
		}
	})

	t.Run("reject second join on same connection", func(t *testing.T) {
		if _, err := r.Add("conn-1", "alice", ""); !errors.Is(err, model.ErrAlreadyJoined) {
			t.Errorf("Expected ErrAlreadyJoined, got %v", err)
		}
	})
}

func TestRegistry_RemoveAndPresence(t *testing.T) {
	r := NewRegistry()
	r.Add("c1", "alice", "")
	r.Add("c2", "bob", "")
	r.Add("c3", "alice", "")

	if got := r.Presence(); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("unexpected presence %v", got)
	}

	sess, ok := r.Remove("c1")
	if !ok {
		t.Fatal("expected session to be removed")
	}
	if sess.Status != model.SessionStatusLeft || sess.LeftAt == nil {
		t.Errorf("removed session should be marked left: %+v", sess)
	}

	// alice is still connected through c3, now ordered after bob
	if got := r.Presence(); !reflect.DeepEqual(got, []string{"bob", "alice"}) {
		t.Errorf("unexpected presence %v", got)
	}

	if _, ok := r.Remove("c1"); ok {
		t.Error("removing twice must report false")
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 sessions, got %d", r.Len())
	}
}

// After any sequence of joins and leaves the presence set equals the names of
// the currently connected sessions: no ghosts, no omissions.
func TestPresenceCorrectnessProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("presence equals names of live sessions", prop.ForAll(
		func(ops []int) bool {
			r := NewRegistry()
			live := map[string]string{}

			for i, op := range ops {
				conn := fmt.Sprintf("conn-%d", op%7)
				if op%2 == 0 {
					name := fmt.Sprintf("user-%d", op%5)
					if _, err := r.Add(conn, name, ""); err == nil {
						live[conn] = name
					} else if _, exists := live[conn]; !exists {
						t.Logf("op %d: unexpected add failure: %v", i, err)
						return false
					}
				} else {
					_, removed := r.Remove(conn)
					_, existed := live[conn]
					if removed != existed {
						return false
					}
					delete(live, conn)
				}
			}

			want := map[string]struct{}{}
			for _, name := range live {
				want[name] = struct{}{}
			}
			got := r.Presence()
			if len(got) != len(want) {
				return false
			}
			sort.Strings(got)
			for _, name := range got {
				if _, ok := want[name]; !ok {
					return false
				}
			}
			return r.Len() == len(live)
		},
		gen.SliceOf(gen.IntRange(0, 99)),
	))

	properties.TestingRun(t)
}
