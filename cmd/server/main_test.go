package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shared-canvas/whiteboard/internal/config"
	"github.com/shared-canvas/whiteboard/internal/db"
	"github.com/shared-canvas/whiteboard/internal/model"
	"github.com/shared-canvas/whiteboard/internal/repository"
	"github.com/shared-canvas/whiteboard/internal/ws"
)

func TestNewRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB: %v", err)
	}
	defer testDB.Close()

	registry := prometheus.NewRegistry()
	svc := ws.NewService(ws.ServiceOptions{Metrics: ws.NewMetrics(registry)})
	defer svc.Close()

	repo := repository.NewSessionRepository(testDB)
	r := newRouter(cfg, svc, repo, registry)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil || health["status"] != "ok" {
		t.Errorf("unexpected health: %s", w.Body.String())
	}
	if health["recordedSessions"] != float64(0) {
		t.Errorf("expected no recorded sessions, got %v", health["recordedSessions"])
	}

	sess := &model.Session{ID: "s1", ConnectionID: "c1", UserName: "alice", Status: model.SessionStatusActive, JoinedAt: time.Now()}
	if err := repo.Create(context.Background(), sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	health = nil
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil || health["recordedSessions"] != float64(1) {
		t.Errorf("expected one recorded session, got %s", w.Body.String())
	}

	testDB.Close()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with a closed database, got %d", w.Code)
	}

	svc.Hub().Join(ws.NewClient(nil, 8), "alice")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "whiteboard_active_sessions 1") {
		t.Errorf("expected active session gauge in metrics output")
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "http://evil.example", true},
		{"listed", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"unlisted", []string{"http://localhost:3000"}, "http://evil.example", false},
		{"no origin header", []string{"http://localhost:3000"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(req); got != tt.want {
				t.Errorf("originChecker() = %v, want %v", got, tt.want)
			}
		})
	}
}
