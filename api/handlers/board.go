package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shared-canvas/whiteboard/internal/export"
	"github.com/shared-canvas/whiteboard/internal/model"
)

// BoardReader is the read side of the hub.
type BoardReader interface {
	Snapshot() []model.Shape
	Presence() []string
}

// BoardHandler serves read-only views of the live board.
type BoardHandler struct {
	board  BoardReader
	width  int
	height int
}

// NewBoardHandler creates a new BoardHandler for a board of the given size.
func NewBoardHandler(board BoardReader, width, height int) *BoardHandler {
	return &BoardHandler{board: board, width: width, height: height}
}

// BoardResponse is the board in arrival order plus the presence set.
type BoardResponse struct {
	Shapes []model.Shape `json:"shapes"`
	Users  []string      `json:"users"`
}

// PresenceResponse is the presence set.
type PresenceResponse struct {
	Users []string `json:"users"`
}

// GetBoard handles GET /api/board.
func (h *BoardHandler) GetBoard(c *gin.Context) {
	shapes := h.board.Snapshot()
	if shapes == nil {
		shapes = []model.Shape{}
	}
	c.JSON(http.StatusOK, BoardResponse{Shapes: shapes, Users: nonNil(h.board.Presence())})
}

// GetPresence handles GET /api/presence.
func (h *BoardHandler) GetPresence(c *gin.Context) {
	c.JSON(http.StatusOK, PresenceResponse{Users: nonNil(h.board.Presence())})
}

// ExportPDF handles GET /api/board/export.pdf.
func (h *BoardHandler) ExportPDF(c *gin.Context) {
	var buf bytes.Buffer
	err := export.WritePDF(&buf, h.board.Snapshot(), export.Options{
		Width:  float64(h.width),
		Height: float64(h.height),
		Users:  h.board.Presence(),
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, "EXPORT_FAILED", err.Error())
		return
	}

	c.Header("Content-Disposition", `attachment; filename="board.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// RegisterRoutes registers the board routes on a Gin router group.
func (h *BoardHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/board", h.GetBoard)
	rg.GET("/board/export.pdf", h.ExportPDF)
	rg.GET("/presence", h.GetPresence)
}

func nonNil(users []string) []string {
	if users == nil {
		return []string{}
	}
	return users
}
