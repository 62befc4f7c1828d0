// Package board holds the authoritative shared drawing state.
package board

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/shared-canvas/whiteboard/internal/model"
)

// Store maps shape ids to shapes and remembers the order in which ids first
// arrived. Overwriting an existing id keeps its original position, so a late
// joiner always replays shapes in arrival order.
type Store struct {
	shapes *orderedmap.OrderedMap[string, model.Shape]
	mu     sync.RWMutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		shapes: orderedmap.New[string, model.Shape](),
	}
}

// Put inserts or overwrites a shape. A shape whose id is already held by a
// different author is rejected with model.ErrForeignShapeID. The returned
// bool reports whether the id was new.
func (s *Store) Put(shape model.Shape) (bool, error) {
	if err := shape.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.shapes.Get(shape.ID); ok && existing.AuthorName != shape.AuthorName {
		return false, fmt.Errorf("%w: %s is owned by %q", model.ErrForeignShapeID, shape.ID, existing.AuthorName)
	}

	_, present := s.shapes.Set(shape.ID, shape)
	return !present, nil
}

// Get returns the shape stored under id.
func (s *Store) Get(id string) (model.Shape, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shapes.Get(id)
}

// Clear removes every shape.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shapes = orderedmap.New[string, model.Shape]()
}

// Len returns the number of stored shapes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shapes.Len()
}

// Snapshot returns a copy of all shapes in arrival order.
func (s *Store) Snapshot() []model.Shape {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Shape, 0, s.shapes.Len())
	for pair := s.shapes.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// Encoded returns the snapshot as an ordered id → JSON string map, the form
// carried by the init message.
func (s *Store) Encoded() (*orderedmap.OrderedMap[string, string], error) {
	snapshot := s.Snapshot()
	encoded := orderedmap.New[string, string]()
	for _, shape := range snapshot {
		data, err := shape.Encode()
		if err != nil {
			return nil, err
		}
		encoded.Set(shape.ID, data)
	}
	return encoded, nil
}
