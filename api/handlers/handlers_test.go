package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shared-canvas/whiteboard/internal/db"
	"github.com/shared-canvas/whiteboard/internal/model"
	"github.com/shared-canvas/whiteboard/internal/protocol"
	"github.com/shared-canvas/whiteboard/internal/repository"
	"github.com/shared-canvas/whiteboard/internal/ws"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) (*gin.Engine, *ws.Service, *repository.SessionRepository) {
	t.Helper()

	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	repo := repository.NewSessionRepository(testDB)

	svc := ws.NewService(ws.ServiceOptions{Sessions: repo})
	t.Cleanup(svc.Close)

	r := gin.New()
	NewWebSocketHandler(svc.Handler()).RegisterRoutes(r)
	api := r.Group("/api")
	NewBoardHandler(svc.Hub(), 320, 240).RegisterRoutes(api)
	NewSessionHandler(repo).RegisterRoutes(api)

	return r, svc, repo
}

func doGet(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestBoardHandler_GetBoard(t *testing.T) {
	r, svc, _ := setupRouter(t)

	w := doGet(r, "/api/board")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != `{"shapes":[],"users":[]}` {
		t.Errorf("unexpected empty board: %s", body)
	}

	alice := ws.NewClient(nil, 16)
	if _, err := svc.Hub().Join(alice, "alice"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	for _, id := range []string{"alice_2", "alice_1"} {
		if _, err := svc.Hub().Draw(alice, model.Shape{ID: id, X2: 10, Y2: 10, Color: "red"}); err != nil {
			t.Fatalf("Draw: %v", err)
		}
	}

	w = doGet(r, "/api/board")
	var resp BoardResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Shapes) != 2 || resp.Shapes[0].ID != "alice_2" || resp.Shapes[1].ID != "alice_1" {
		t.Errorf("expected arrival order, got %+v", resp.Shapes)
	}
	if len(resp.Users) != 1 || resp.Users[0] != "alice" {
		t.Errorf("unexpected users: %v", resp.Users)
	}

	w = doGet(r, "/api/presence")
	if body := strings.TrimSpace(w.Body.String()); body != `{"users":["alice"]}` {
		t.Errorf("unexpected presence: %s", body)
	}
}

func TestBoardHandler_ExportPDF(t *testing.T) {
	r, svc, _ := setupRouter(t)

	alice := ws.NewClient(nil, 16)
	svc.Hub().Join(alice, "alice")
	svc.Hub().Draw(alice, model.Shape{ID: "alice_1", X2: 100, Y2: 100, Color: "blue"})

	w := doGet(r, "/api/board/export.pdf")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}
}

func TestSessionHandler_ListAndGet(t *testing.T) {
	r, svc, repo := setupRouter(t)

	alice := ws.NewClient(nil, 16)
	sess, err := svc.Hub().Join(alice, "alice")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	svc.Hub().Leave(alice)

	// Recording runs after the hub lock, on the calling goroutine
	got, err := repo.GetByID(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.SessionStatusLeft {
		t.Errorf("expected recorded leave, got %s", got.Status)
	}

	w := doGet(r, "/api/sessions?limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var list SessionListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || list.Sessions[0].UserName != "alice" || list.Sessions[0].LeftAt == nil {
		t.Errorf("unexpected list: %+v", list)
	}

	w = doGet(r, "/api/sessions/"+sess.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSessionHandler_Errors(t *testing.T) {
	r, _, _ := setupRouter(t)

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/sessions?limit=abc", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"/api/sessions?limit=0", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"/api/sessions/missing", http.StatusNotFound, "SESSION_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := doGet(r, tt.path)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, resp.Error.Code)
			}
		})
	}
}

func TestWebSocketHandler_Attach(t *testing.T) {
	r, svc, _ := setupRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	data, _ := json.Marshal(protocol.JoinRequest("alice"))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	msg, err := protocol.ParseServerMessage(frame)
	if err != nil || msg.Kind() != protocol.MessageTypeInit {
		t.Fatalf("expected init, got %s (%v)", frame, err)
	}
	if svc.Hub().SessionCount() != 1 {
		t.Errorf("expected 1 session, got %d", svc.Hub().SessionCount())
	}

	if w := doGet(r, "/ws"); w.Code != http.StatusBadRequest {
		t.Errorf("plain GET /ws should be rejected by the upgrader, got %d", w.Code)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "2s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute, "1h2m0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
