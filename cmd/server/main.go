package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shared-canvas/whiteboard/api/handlers"
	"github.com/shared-canvas/whiteboard/internal/config"
	"github.com/shared-canvas/whiteboard/internal/db"
	"github.com/shared-canvas/whiteboard/internal/discovery"
	"github.com/shared-canvas/whiteboard/internal/journal"
	"github.com/shared-canvas/whiteboard/internal/repository"
	"github.com/shared-canvas/whiteboard/internal/ws"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:          "whiteboard-server",
		Short:        "Shared whiteboard synchronization hub",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config and PORT)")
	cmd.AddCommand(buildJournalCmd())

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := config.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	sessionRepo := repository.NewSessionRepository(database)
	if n, err := sessionRepo.MarkAllLeft(ctx, time.Now()); err != nil {
		logger.Warn("failed to settle stale sessions", "err", err)
	} else if n > 0 {
		logger.Info("settled sessions from a previous run", "count", n)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := ws.NewMetrics(registry)

	opts := ws.ServiceOptions{
		Handler: ws.HandlerOptions{
			SendQueueSize:     cfg.Hub.SendQueueSize,
			MaxMessageSize:    cfg.Hub.MaxMessageSize,
			MessagesPerSecond: cfg.Hub.MessagesPerSecond,
			Burst:             cfg.Hub.Burst,
		},
		Sessions: sessionRepo,
		Metrics:  metrics,
		Logger:   logger,
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Create(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		if err := j.WriteHeader(cfg.Board.Width, cfg.Board.Height); err != nil {
			return err
		}
		opts.Journal = j
		logger.Info("journaling board events", "path", cfg.Journal.Path)
	}

	wsService := ws.NewService(opts)
	defer wsService.Close()
	wsService.Handler().SetCheckOrigin(originChecker(cfg.Server.AllowedOrigins))

	router := newRouter(cfg, wsService, sessionRepo, registry)

	if cfg.Discovery.Enabled {
		adv, err := discovery.Advertise(cfg.Discovery.Instance, cfg.Server.Port)
		if err != nil {
			logger.Warn("mDNS advertisement disabled", "err", err)
		} else {
			defer adv.Shutdown()
			logger.Info("advertising on the local network", "service", discovery.ServiceType, "instance", adv.Instance())
		}
	}

	httpServer := &http.Server{Addr: cfg.Server.Addr(), Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", httpServer.Addr, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown
	wsService.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// auditStore is the session audit log as the router uses it.
type auditStore interface {
	handlers.SessionStore
	CountActive(ctx context.Context) (int, error)
}

func newRouter(cfg *config.Config, wsService *ws.Service, sessions auditStore, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		recorded, err := sessions.CountActive(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"sessions":         wsService.Hub().SessionCount(),
			"recordedSessions": recorded,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	handlers.NewWebSocketHandler(wsService.Handler()).RegisterRoutes(r)

	api := r.Group("/api")
	{
		handlers.NewBoardHandler(wsService.Hub(), cfg.Board.Width, cfg.Board.Height).RegisterRoutes(api)
		handlers.NewSessionHandler(sessions).RegisterRoutes(api)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// originChecker accepts requests without an Origin header and those whose
// origin is listed; "*" accepts everything.
func originChecker(origins []string) func(r *http.Request) bool {
	if slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
