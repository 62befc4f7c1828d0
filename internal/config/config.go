// Package config loads the server configuration from YAML with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Hub       HubConfig       `yaml:"hub"`
	Board     BoardConfig     `yaml:"board"`
	Database  DatabaseConfig  `yaml:"database"`
	Journal   JournalConfig   `yaml:"journal"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type HubConfig struct {
	SendQueueSize     int     `yaml:"send_queue_size"`
	MaxMessageSize    int64   `yaml:"max_message_size"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

type BoardConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig enables the event journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path"`
}

type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads the configuration file at path. An empty path yields the
// defaults. Environment overrides are applied last, then the result is
// validated.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables
		expanded := os.ExpandEnv(string(data))

		dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8050
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Hub.SendQueueSize == 0 {
		cfg.Hub.SendQueueSize = 256
	}
	if cfg.Hub.MaxMessageSize == 0 {
		cfg.Hub.MaxMessageSize = 8192
	}
	if cfg.Board.Width == 0 {
		cfg.Board.Width = 1280
	}
	if cfg.Board.Height == 0 {
		cfg.Board.Height = 720
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "whiteboard.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Hub.SendQueueSize < 1 {
		errs = append(errs, fmt.Errorf("hub.send_queue_size must be positive, got %d", c.Hub.SendQueueSize))
	}
	if c.Hub.MaxMessageSize < 64 {
		errs = append(errs, fmt.Errorf("hub.max_message_size must be at least 64, got %d", c.Hub.MaxMessageSize))
	}
	if c.Hub.MessagesPerSecond < 0 || c.Hub.Burst < 0 {
		errs = append(errs, errors.New("hub.messages_per_second and hub.burst must not be negative"))
	}
	if c.Board.Width < 1 || c.Board.Height < 1 {
		errs = append(errs, fmt.Errorf("board dimensions must be positive, got %dx%d", c.Board.Width, c.Board.Height))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", level)
	}
}

// NewLogger builds a logger writing to w per the logging section.
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	level, _ := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
