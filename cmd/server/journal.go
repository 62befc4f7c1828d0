package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shared-canvas/whiteboard/internal/canvas"
	"github.com/shared-canvas/whiteboard/internal/journal"
	"github.com/shared-canvas/whiteboard/internal/model"
	"github.com/shared-canvas/whiteboard/internal/protocol"
)

func buildJournalCmd() *cobra.Command {
	var pngPath string

	cmd := &cobra.Command{
		Use:   "journal <file>",
		Short: "Summarize a board event journal",
		Long:  "Prints the journal header and event counts per kind. With --png the shape and clear events are replayed onto a canvas and written as PNG.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer f.Close()

			header, events, err := journal.Read(f)
			if err != nil {
				return err
			}
			summarizeJournal(cmd.OutOrStdout(), header, events)

			if pngPath == "" {
				return nil
			}
			raster := replayJournal(header, events)
			out, err := os.Create(pngPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", pngPath, err)
			}
			defer out.Close()
			return raster.WritePNG(out)
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "Replay the journal and write the final board to this PNG file")

	return cmd
}

func summarizeJournal(w io.Writer, header *journal.Header, events []journal.Event) {
	fmt.Fprintf(w, "version %d, board %dx%d, started %s\n",
		header.Version, header.Width, header.Height, time.Unix(header.Timestamp, 0).UTC().Format(time.RFC3339))

	counts := map[string]int{}
	var order []string
	for _, ev := range events {
		if counts[ev.Kind] == 0 {
			order = append(order, ev.Kind)
		}
		counts[ev.Kind]++
	}
	for _, kind := range order {
		fmt.Fprintf(w, "%-6s %d\n", kind, counts[kind])
	}
	if n := len(events); n > 0 {
		fmt.Fprintf(w, "%d events over %.1fs\n", n, events[n-1].TimeOffset)
	}
}

// replayJournal redraws the board as the journal saw it. Undecodable shape
// events are skipped.
func replayJournal(header *journal.Header, events []journal.Event) *canvas.Raster {
	raster := canvas.New(header.Width, header.Height)
	for _, ev := range events {
		switch protocol.MessageType(ev.Kind) {
		case protocol.MessageTypeClear:
			raster.Clear()
		case protocol.MessageTypeShape:
			var msg protocol.ShapeMessage
			if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
				continue
			}
			s, err := model.DecodeShape(msg.Data)
			if err != nil {
				continue
			}
			raster.Render(s.X1, s.Y1, s.X2, s.Y2, s.Color)
		}
	}
	return raster
}
