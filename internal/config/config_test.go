package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8050 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Hub.SendQueueSize != 256 || cfg.Hub.MaxMessageSize != 8192 {
		t.Errorf("unexpected hub defaults: %+v", cfg.Hub)
	}
	if cfg.Journal.Path != "" || cfg.Discovery.Enabled {
		t.Errorf("journal and discovery should be off by default")
	}
	if cfg.Server.Addr() != "0.0.0.0:8050" {
		t.Errorf("unexpected addr %q", cfg.Server.Addr())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("BOARD_DB", "/tmp/board.db")
	t.Setenv("PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")

	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9000
  allowed_origins: ["http://localhost:3000"]
hub:
  messages_per_second: 50
  burst: 100
database:
  path: ${BOARD_DB}
journal:
  path: board.jsonl
logging:
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("PORT should override the file, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/board.db" {
		t.Errorf("expected expanded database path, got %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging: %+v", cfg.Logging)
	}
	if cfg.Hub.MessagesPerSecond != 50 || cfg.Hub.Burst != 100 {
		t.Errorf("unexpected hub: %+v", cfg.Hub)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8050
  extra: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadValidates(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"negative rate", "hub:\n  messages_per_second: -1\n", "messages_per_second"},
		{"tiny message size", "hub:\n  max_message_size: 10\n", "max_message_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected %s error, got %v", tt.field, err)
			}
		})
	}
}

func TestLoadInvalidPortEnv(t *testing.T) {
	t.Setenv("PORT", "abc")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "user", "alice")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"user":"alice"`) {
		t.Errorf("expected JSON output, got %q", out)
	}

	if lvl, err := ParseLevel("WARNING"); err != nil || lvl != slog.LevelWarn {
		t.Errorf("ParseLevel(WARNING) = %v, %v", lvl, err)
	}
}
