// Package export renders the board as a PDF document.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/shared-canvas/whiteboard/internal/canvas"
	"github.com/shared-canvas/whiteboard/internal/model"
)

// LineWidth is the stroke width in points.
const LineWidth = 2.0

// Options sizes the page; one board unit is one point.
type Options struct {
	Width  float64
	Height float64
	Title  string
	Users  []string
}

// WritePDF draws shapes in order on a single page and writes the document
// to w.
func WritePDF(w io.Writer, shapes []model.Shape, opts Options) error {
	if opts.Width <= 0 {
		opts.Width = canvas.DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = canvas.DefaultHeight
	}
	if opts.Title == "" {
		opts.Title = "Whiteboard"
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: opts.Width, Ht: opts.Height},
	})
	pdf.SetTitle(opts.Title, true)
	pdf.SetCreator("whiteboard", true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetLineWidth(LineWidth)
	pdf.SetLineCapStyle("round")
	for _, s := range shapes {
		c := canvas.ParseColor(s.Color)
		pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
		pdf.Line(s.X1, s.Y1, s.X2, s.Y2)
	}

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(128, 128, 128)
	footer := fmt.Sprintf("%s - %d shapes - %s", opts.Title, len(shapes), time.Now().UTC().Format(time.RFC3339))
	if len(opts.Users) > 0 {
		footer += " - " + strings.Join(opts.Users, ", ")
	}
	pdf.Text(6, opts.Height-6, footer)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}
