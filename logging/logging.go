// Package logging provides the context-first structured logger shared by the
// pipeline components. It is a thin layer over log/slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config configures a Logger.
type Config struct {
	// Level is one of debug, info, warn or error. Unknown values mean info.
	Level string
	// Format is text or json. Unknown values mean text.
	Format Format
	// AddSource includes the caller's file and line.
	AddSource bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Logger logs structured messages. The zero value and a nil *Logger both
// discard everything.
type Logger struct {
	logger *slog.Logger
}

// New creates a Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return &Logger{logger: slog.New(handler)}
}

// FromSlog wraps an existing slog logger.
func FromSlog(l *slog.Logger) *Logger {
	return &Logger{logger: l}
}

// NewNop returns a Logger that discards all messages.
func NewNop() *Logger {
	return &Logger{}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Debug logs msg at debug level with key-value args.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args)
}

// Info logs msg at info level.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args)
}

// Warn logs msg at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args)
}

// Error logs msg at error level.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args)
}

// With returns a Logger that adds args to every message.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.logger == nil {
		return l
	}
	return &Logger{logger: l.logger.With(args...)}
}

// WithOperation scopes the logger to a named operation.
func (l *Logger) WithOperation(op string) *Logger {
	return l.With("operation", op)
}

// WithRepository scopes the logger to a repository key.
func (l *Logger) WithRepository(key string) *Logger {
	return l.With("repository", key)
}

// WithRequest scopes the logger to a request id.
func (l *Logger) WithRequest(id string) *Logger {
	return l.With("request_id", id)
}

// Slog exposes the underlying slog logger. It is nil for a no-op Logger.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return nil
	}
	return l.logger
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	if l == nil || l.logger == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	l.logger.Log(ctx, level, msg, args...)
}

// Duration is a convenience attribute recording elapsed milliseconds since
// start.
func Duration(start time.Time) slog.Attr {
	return slog.Int64("duration_ms", time.Since(start).Milliseconds())
}
