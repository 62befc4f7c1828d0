package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/shared-canvas/whiteboard/internal/board"
	"github.com/shared-canvas/whiteboard/internal/model"
	"github.com/shared-canvas/whiteboard/internal/protocol"
	"github.com/shared-canvas/whiteboard/internal/session"
)

const recordTimeout = 5 * time.Second

// SessionRecorder persists session lifecycle events.
type SessionRecorder interface {
	Create(ctx context.Context, session *model.Session) error
	MarkLeft(ctx context.Context, id string, leftAt time.Time) error
}

// EventRecorder receives every broadcast frame in order.
type EventRecorder interface {
	Record(kind string, payload []byte) error
}

// ServiceOptions configures a Service. Every recorder is optional.
type ServiceOptions struct {
	Handler  HandlerOptions
	Sessions SessionRecorder
	Journal  EventRecorder
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Service owns the hub and its handler and connects hub lifecycle events to
// the audit log, the event journal and metrics.
type Service struct {
	hub      *Hub
	handler  *Handler
	sessions SessionRecorder
	logger   *slog.Logger
}

// NewService creates a hub over an empty board and wires its recorders.
func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hub := NewHub(board.NewStore(), session.NewRegistry(), logger)
	hub.SetMetrics(opts.Metrics)

	if opts.Handler.Logger == nil {
		opts.Handler.Logger = logger
	}
	if opts.Handler.Metrics == nil {
		opts.Handler.Metrics = opts.Metrics
	}

	s := &Service{
		hub:      hub,
		handler:  NewHandler(hub, opts.Handler),
		sessions: opts.Sessions,
		logger:   logger.With("component", "service"),
	}

	if opts.Journal != nil {
		journal := opts.Journal
		hub.SetObserver(func(kind protocol.MessageType, payload []byte) {
			if err := journal.Record(string(kind), payload); err != nil {
				s.logger.Error("failed to journal event", "kind", kind, "err", err)
			}
		})
	}

	if s.sessions != nil {
		hub.SetOnJoin(s.recordJoin)
		hub.SetOnLeave(s.recordLeave)
	}

	return s
}

// Hub returns the synchronization hub.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

func (s *Service) recordJoin(sess *model.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.sessions.Create(ctx, sess); err != nil {
		s.logger.Error("failed to record session join", "session", sess.ID, "user", sess.UserName, "err", err)
	}
}

func (s *Service) recordLeave(sess *model.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	leftAt := time.Now()
	if sess.LeftAt != nil {
		leftAt = *sess.LeftAt
	}
	if err := s.sessions.MarkLeft(ctx, sess.ID, leftAt); err != nil {
		s.logger.Error("failed to record session leave", "session", sess.ID, "user", sess.UserName, "err", err)
	}
}

// Close destroys every session and closes every connection.
func (s *Service) Close() {
	s.hub.Close()
}
