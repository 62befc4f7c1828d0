package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shared-canvas/whiteboard/internal/canvas"
	"github.com/shared-canvas/whiteboard/internal/client"
	"github.com/shared-canvas/whiteboard/internal/config"
	"github.com/shared-canvas/whiteboard/internal/discovery"
	"github.com/shared-canvas/whiteboard/internal/model"
)

type options struct {
	url      string
	name     string
	discover bool
	demo     bool
	color    string
	out      string
	width    int
	height   int
	duration time.Duration
	logLevel string
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "whiteboard-client",
		Short:        "Headless whiteboard client",
		Long:         "Joins a whiteboard hub, mirrors the board into an in-memory canvas and writes it as PNG on exit.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "ws://localhost:8050/ws", "Hub WebSocket URL")
	f.StringVarP(&opts.name, "name", "n", "", "User name to join with")
	f.BoolVar(&opts.discover, "discover", false, "Find the hub on the local network instead of using --url")
	f.BoolVar(&opts.demo, "demo", false, "Draw a demo figure after joining")
	f.StringVar(&opts.color, "color", "black", "Stroke color for --demo")
	f.StringVarP(&opts.out, "out", "o", "board.png", "PNG file written on exit")
	f.IntVar(&opts.width, "width", canvas.DefaultWidth, "Canvas width")
	f.IntVar(&opts.height, "height", canvas.DefaultHeight, "Canvas height")
	f.DurationVar(&opts.duration, "duration", 0, "Stay connected this long (0 waits for a signal)")
	f.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")

	return cmd
}

func run(ctx context.Context, opts options) error {
	logger := config.NewLogger(config.LoggingConfig{Level: opts.logLevel, Format: "text"}, os.Stderr)
	slog.SetDefault(logger)

	if opts.name == "" {
		return client.ErrNameRequired
	}

	url := opts.url
	if opts.discover {
		addrs, err := discovery.Browse(discovery.DefaultBrowseTimeout)
		if err != nil {
			return err
		}
		if len(addrs) == 0 {
			return errors.New("no hub found on the local network")
		}
		url = fmt.Sprintf("ws://%s/ws", addrs[0])
		logger.Info("discovered hub", "url", url)
	}

	raster := canvas.New(opts.width, opts.height)
	joined := make(chan struct{})
	lost := make(chan error, 1)

	ctl := client.New(raster, client.StaticIdentity(opts.name), client.Options{
		Logger: logger,
		OnStateChange: func(state client.State, err error) {
			logger.Info("status", "state", state.String())
			switch state {
			case client.StateJoined:
				close(joined)
			case client.StateDisconnected:
				select {
				case lost <- err:
				default:
				}
			}
		},
		OnPresence: func(users []string) {
			logger.Info("presence", "users", users)
		},
		OnShape: func(s model.Shape) {
			logger.Debug("shape", "id", s.ID, "author", s.AuthorName)
		},
	})

	if err := ctl.Connect(ctx, url); err != nil {
		return err
	}

	select {
	case <-joined:
	case err := <-lost:
		return fmt.Errorf("disconnected before join: %w", err)
	case <-ctx.Done():
		ctl.Disconnect()
		return nil
	}

	if opts.demo {
		if err := drawDemo(ctl, opts); err != nil {
			return err
		}
	}

	var timeout <-chan time.Time
	if opts.duration > 0 {
		timeout = time.After(opts.duration)
	}

	select {
	case <-ctx.Done():
	case <-timeout:
	case err := <-lost:
		if err != nil {
			logger.Warn("connection lost", "err", err)
		}
	}
	ctl.Disconnect()

	return writeCanvas(raster, opts.out)
}

// drawDemo draws a circle as one stroke of short segments.
func drawDemo(ctl *client.Controller, opts options) error {
	const steps = 48
	cx, cy := float64(opts.width)/2, float64(opts.height)/2
	radius := math.Min(cx, cy) / 2

	px, py := cx+radius, cy
	for i := 1; i <= steps; i++ {
		angle := 2 * math.Pi * float64(i) / steps
		x, y := cx+radius*math.Cos(angle), cy+radius*math.Sin(angle)
		if _, err := ctl.EmitStroke(px, py, x, y, opts.color); err != nil {
			return err
		}
		px, py = x, y
	}
	ctl.CommitStrokeEnd()
	return nil
}

func writeCanvas(raster *canvas.Raster, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := raster.WritePNG(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	slog.Info("wrote canvas", "path", path)
	return nil
}
