package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shared-canvas/whiteboard/internal/model"
)

// maxListLimit caps the limit query parameter.
const maxListLimit = 500

// SessionStore is the read side of the session audit log.
type SessionStore interface {
	ListRecent(ctx context.Context, limit int) ([]*model.Session, error)
	GetByID(ctx context.Context, id string) (*model.Session, error)
}

// SessionHandler serves the session audit log.
type SessionHandler struct {
	store SessionStore
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(store SessionStore) *SessionHandler {
	return &SessionHandler{store: store}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID           string  `json:"id"`
	ConnectionID string  `json:"connectionId"`
	UserName     string  `json:"userName"`
	RemoteAddr   string  `json:"remoteAddr,omitempty"`
	Status       string  `json:"status"`
	Duration     string  `json:"duration"`
	JoinedAt     string  `json:"joinedAt"`
	LeftAt       *string `json:"leftAt,omitempty"`
}

// SessionListResponse represents a list of sessions.
type SessionListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int                `json:"total"`
}

func toSessionResponse(s *model.Session) *SessionResponse {
	resp := &SessionResponse{
		ID:           s.ID,
		ConnectionID: s.ConnectionID,
		UserName:     s.UserName,
		RemoteAddr:   s.RemoteAddr,
		Status:       string(s.Status),
		Duration:     formatDuration(s.Duration()),
		JoinedAt:     s.JoinedAt.Format(time.RFC3339),
	}
	if s.LeftAt != nil {
		left := s.LeftAt.Format(time.RFC3339)
		resp.LeftAt = &left
	}
	return resp
}

// List handles GET /api/sessions?limit=N - most recent sessions first.
func (h *SessionHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer between 1 and "+strconv.Itoa(maxListLimit))
			return
		}
		limit = n
	}

	sessions, err := h.store.ListRecent(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list sessions: "+err.Error())
		return
	}

	resp := SessionListResponse{
		Sessions: make([]*SessionResponse, 0, len(sessions)),
		Total:    len(sessions),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /api/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	sess, err := h.store.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// RegisterRoutes registers the session audit routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions", h.List)
	rg.GET("/sessions/:id", h.Get)
}
