// Package canvas is a headless render surface for the board: an RGBA raster
// that draws segments without antialiasing, so drawing the same segment twice
// leaves identical pixels.
package canvas

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sync"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720

	// DefaultLineWidth is the side of the square brush in pixels.
	DefaultLineWidth = 2
)

// Background is the color of a blank canvas.
var Background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// Raster is an in-memory canvas. It is safe for concurrent use.
type Raster struct {
	mu        sync.Mutex
	img       *image.RGBA
	lineWidth int
}

// New returns a blank raster. Non-positive dimensions select the defaults.
func New(width, height int) *Raster {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	r := &Raster{
		img:       image.NewRGBA(image.Rect(0, 0, width, height)),
		lineWidth: DefaultLineWidth,
	}
	r.fill()
	return r
}

// SetLineWidth sets the brush size for later Render calls.
func (r *Raster) SetLineWidth(w int) {
	if w < 1 {
		w = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lineWidth = w
}

// Render draws the segment (x1,y1)-(x2,y2). The segment is clipped to the
// raster before it is walked. Segments with no visible part or with
// non-finite coordinates draw nothing; unknown colors draw black.
func (r *Raster) Render(x1, y1, x2, y2 float64, colorName string) {
	c := ParseColor(colorName)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Pixel centers whose brush square touches the raster
	lo := -(r.lineWidth - 1) / 2
	hi := lo + r.lineWidth - 1
	b := r.img.Bounds()
	x1, y1, x2, y2, ok := clipSegment(x1, y1, x2, y2,
		float64(b.Min.X-hi)-0.5, float64(b.Min.Y-hi)-0.5,
		float64(b.Max.X-1-lo)+0.5, float64(b.Max.Y-1-lo)+0.5)
	if !ok {
		return
	}

	ax, ay := round(x1), round(y1)
	bx, by := round(x2), round(y2)

	dx := abs(bx - ax)
	dy := -abs(by - ay)
	sx, sy := 1, 1
	if ax > bx {
		sx = -1
	}
	if ay > by {
		sy = -1
	}
	e := dx + dy

	for {
		r.stamp(ax, ay, c)
		if ax == bx && ay == by {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			ax += sx
		}
		if e2 <= dx {
			e += dx
			ay += sy
		}
	}
}

// Clear blanks the canvas.
func (r *Raster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fill()
}

// Capture returns the canvas encoded as PNG.
func (r *Raster) Capture() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, r.img); err != nil {
		return nil
	}
	return buf.Bytes()
}

// Restore replaces the canvas with a snapshot from Capture. A nil snapshot
// blanks the canvas; an undecodable one leaves it unchanged.
func (r *Raster) Restore(snapshot []byte) {
	if len(snapshot) == 0 {
		r.Clear()
		return
	}

	src, err := png.Decode(bytes.NewReader(snapshot))
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fill()
	draw.Draw(r.img, r.img.Bounds(), src, src.Bounds().Min, draw.Src)
}

// WritePNG encodes the current canvas to w.
func (r *Raster) WritePNG(w io.Writer) error {
	_, err := w.Write(r.Capture())
	return err
}

// Bounds returns the canvas rectangle.
func (r *Raster) Bounds() image.Rectangle {
	return r.img.Bounds()
}

// At returns the color of one pixel.
func (r *Raster) At(x, y int) color.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.img.RGBAAt(x, y)
}

func (r *Raster) fill() {
	draw.Draw(r.img, r.img.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)
}

// stamp paints a lineWidth square centered on (x, y).
func (r *Raster) stamp(x, y int, c color.RGBA) {
	lo := -(r.lineWidth - 1) / 2
	hi := lo + r.lineWidth
	bounds := r.img.Bounds()
	for py := y + lo; py < y+hi; py++ {
		for px := x + lo; px < x+hi; px++ {
			if image.Pt(px, py).In(bounds) {
				r.img.SetRGBA(px, py, c)
			}
		}
	}
}

// clipSegment clips a segment to the box [xmin,xmax]x[ymin,ymax] with the
// Liang-Barsky algorithm. It reports false when no part of the segment lies
// inside the box.
func clipSegment(x1, y1, x2, y2, xmin, ymin, xmax, ymax float64) (float64, float64, float64, float64, bool) {
	for _, v := range []float64{x1, y1, x2, y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, 0, 0, false
		}
	}

	dx, dy := x2-x1, y2-y1
	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{x1 - xmin, xmax - x1, y1 - ymin, ymax - y1}

	t0, t1 := 0.0, 1.0
	for i := range p {
		if p[i] == 0 {
			if q[i] < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		t := q[i] / p[i]
		if p[i] < 0 {
			if t > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = math.Min(t1, t)
		}
	}

	cx1, cy1, cx2, cy2 := x1, y1, x2, y2
	if t0 > 0 {
		cx1, cy1 = x1+t0*dx, y1+t0*dy
	}
	if t1 < 1 {
		cx2, cy2 = x1+t1*dx, y1+t1*dy
	}
	// Cancellation on huge inputs can push a clipped point off the box
	return clamp(cx1, xmin, xmax), clamp(cy1, ymin, ymax), clamp(cx2, xmin, xmax), clamp(cy2, ymin, ymax), true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64) int {
	return int(math.Round(v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
