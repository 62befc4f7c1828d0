package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/shared-canvas/whiteboard/internal/model"
)

func segment(author string, n int) model.Shape {
	return model.Shape{
		ID:         model.ShapeID(author, int64(n)),
		X1:         float64(n),
		Y1:         float64(n + 1),
		X2:         float64(n + 2),
		Y2:         float64(n + 3),
		Color:      "black",
		AuthorName: author,
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s := NewStore()

	created, err := s.Put(segment("alice", 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected first put to create the shape")
	}

	got, ok := s.Get("alice_1")
	if !ok {
		t.Fatal("shape not found")
	}
	if got != segment("alice", 1) {
		t.Errorf("unexpected shape %+v", got)
	}
}

func TestStore_RejectsMalformed(t *testing.T) {
	s := NewStore()
	_, err := s.Put(model.Shape{ID: "alice_1"})
	if !errors.Is(err, model.ErrMalformedShape) {
		t.Errorf("expected ErrMalformedShape, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}

func TestStore_RejectsForeignID(t *testing.T) {
	s := NewStore()
	if _, err := s.Put(segment("alice", 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hijack := segment("alice", 1)
	hijack.AuthorName = "mallory"
	hijack.Color = "red"
	if _, err := s.Put(hijack); !errors.Is(err, model.ErrForeignShapeID) {
		t.Errorf("expected ErrForeignShapeID, got %v", err)
	}

	got, _ := s.Get("alice_1")
	if got.Color != "black" {
		t.Errorf("foreign write must not overwrite, got color %q", got.Color)
	}
}

func TestStore_OverwriteKeepsArrivalOrder(t *testing.T) {
	s := NewStore()
	for i := 0; i < 3; i++ {
		s.Put(segment("alice", i))
	}

	updated := segment("alice", 0)
	updated.Color = "green"
	created, err := s.Put(updated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("overwrite must not report a new shape")
	}

	snapshot := s.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 shapes, got %d", len(snapshot))
	}
	if snapshot[0].ID != "alice_0" || snapshot[0].Color != "green" {
		t.Errorf("expected overwritten shape to stay first, got %+v", snapshot[0])
	}
}

func TestStore_EncodedPreservesOrder(t *testing.T) {
	s := NewStore()
	ids := []string{"zed", "alice", "mike"}
	for i, author := range ids {
		s.Put(segment(author, 10-i))
	}

	encoded, err := s.Encoded()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := json.Marshal(encoded)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	raw := string(data)
	last := -1
	for i, author := range ids {
		idx := strings.Index(raw, fmt.Sprintf(`"%s"`, model.ShapeID(author, int64(10-i))))
		if idx < 0 || idx < last {
			t.Fatalf("ids not in arrival order in %s", raw)
		}
		last = idx
	}
}

// For all sequences of draws with distinct ids the store equals the set of
// those shapes; re-sending identical shapes never changes its size; a clear
// leaves exactly the shapes drawn afterwards, in arrival order.
func TestStoreProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("distinct draws produce exactly that set", prop.ForAll(
		func(n int) bool {
			s := NewStore()
			want := make(map[string]model.Shape, n)
			for i := 0; i < n; i++ {
				shape := segment("user", i)
				want[shape.ID] = shape
				if _, err := s.Put(shape); err != nil {
					return false
				}
			}
			if s.Len() != len(want) {
				return false
			}
			for _, shape := range s.Snapshot() {
				if want[shape.ID] != shape {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 200),
	))

	properties.Property("re-sending identical draws is idempotent", prop.ForAll(
		func(n, repeats int) bool {
			s := NewStore()
			for i := 0; i < n; i++ {
				s.Put(segment("user", i))
			}
			for r := 0; r < repeats; r++ {
				for i := 0; i < n; i++ {
					created, err := s.Put(segment("user", i))
					if err != nil || created {
						return false
					}
				}
			}
			return s.Len() == n
		},
		gen.IntRange(1, 50),
		gen.IntRange(1, 5),
	))

	properties.Property("snapshot after clear holds later draws in arrival order", prop.ForAll(
		func(before, after []int) bool {
			s := NewStore()
			for i := range before {
				s.Put(segment("early", i))
			}
			s.Clear()
			for i, v := range after {
				shape := segment("late", i)
				shape.X1 = float64(v)
				s.Put(shape)
			}

			snapshot := s.Snapshot()
			if len(snapshot) != len(after) {
				return false
			}
			for i, shape := range snapshot {
				if shape.ID != model.ShapeID("late", int64(i)) || shape.X1 != float64(after[i]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
