package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Shape is a single line segment, the only drawable primitive on the board.
type Shape struct {
	ID         string  `json:"id"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Color      string  `json:"color"`
	AuthorName string  `json:"name"`
}

// MaxCoordinate bounds the absolute value of any shape coordinate.
const MaxCoordinate = 1e6

// ShapeID builds a shape id in the `<userName>_<stamp>` form.
func ShapeID(userName string, stamp int64) string {
	return fmt.Sprintf("%s_%d", userName, stamp)
}

// Validate checks that coordinates are finite and within MaxCoordinate and
// that id and color are set.
func (s Shape) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrMalformedShape)
	}
	if strings.TrimSpace(s.Color) == "" {
		return fmt.Errorf("%w: color is required", ErrMalformedShape)
	}
	for _, v := range []float64{s.X1, s.Y1, s.X2, s.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coordinates must be finite", ErrMalformedShape)
		}
		if math.Abs(v) > MaxCoordinate {
			return fmt.Errorf("%w: coordinate %g exceeds %g", ErrMalformedShape, v, float64(MaxCoordinate))
		}
	}
	return nil
}

// SameSegment reports whether two shapes describe the same visible segment.
func (s Shape) SameSegment(o Shape) bool {
	return s.X1 == o.X1 && s.Y1 == o.Y1 && s.X2 == o.X2 && s.Y2 == o.Y2 && s.Color == o.Color
}

// Encode returns the JSON string form used inside init snapshots and shape broadcasts.
func (s Shape) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode shape %s: %w", s.ID, err)
	}
	return string(data), nil
}

// DecodeShape parses the JSON string form of a shape and validates it.
func DecodeShape(data string) (Shape, error) {
	var s Shape
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Shape{}, fmt.Errorf("%w: %v", ErrMalformedShape, err)
	}
	if err := s.Validate(); err != nil {
		return Shape{}, err
	}
	return s, nil
}
