// Package logger provides structured logging built on log/slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stdout,
	}
}

// New creates a new Logger instance.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level == slog.LevelDebug,
		ReplaceAttr: maskAttr,
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	return New(DefaultConfig())
}

// NewNop creates a logger that discards all output. Intended for tests.
func NewNop() *Logger {
	return New(Config{Level: "error", Output: io.Discard})
}

// With returns a Logger with the given attributes attached.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// sensitiveKeys are attribute keys whose values must never reach log output.
// The gateway handles API keys, bearer tokens and password hashes on every
// request, so masking happens once in the handler rather than per call site.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"password_hash": true,
	"secret":        true,
	"token":         true,
	"authorization": true,
	"bearer":        true,
	"api_key":       true,
	"apikey":        true,
	"x-api-key":     true,
	"key_hash":      true,
	"jwt":           true,
	"jwt_secret":    true,
	"dsn":           true,
	"database_url":  true,
}

// maskAttr replaces values of sensitive keys with a fixed marker.
func maskAttr(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "***")
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextKey is the type used for context values attached by middleware.
type ContextKey string

// Context keys shared between middleware and the logger.
const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyUserID    ContextKey = "user_id"
)

// FromContext returns a logger enriched with request-scoped attributes.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	log := l
	if id, ok := ctx.Value(ContextKeyRequestID).(string); ok && id != "" {
		log = log.With("request_id", id)
	}
	if id, ok := ctx.Value(ContextKeyUserID).(string); ok && id != "" {
		log = log.With("user_id", id)
	}
	return log
}
