package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/telhawk-systems/proximity-stack/common/middleware"
)

// Logger is a slog.Logger whose *Context methods pick up correlation ids
// from the context: the HTTP request id and, for queue deliveries, the
// stream message id.
type Logger struct {
	*slog.Logger
}

type streamMsgKey struct{}

// New returns a Logger on stdout. format is "json" (default) or "text".
func New(level slog.Level, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

func NewWithWriter(w io.Writer, level slog.Level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: level, AddSource: level >= slog.LevelError}
	if format == "text" {
		return &Logger{Logger: slog.New(slog.NewTextHandler(w, opts))}
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, opts))}
}

// Discard drops everything. Components built without a logger use it.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithStreamMessage tags ctx with the id of the JetStream message being
// handled.
func WithStreamMessage(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, streamMsgKey{}, id)
}

// StreamMessage returns the id stored by WithStreamMessage, or "".
func StreamMessage(ctx context.Context) string {
	id, _ := ctx.Value(streamMsgKey{}).(string)
	return id
}

// WithContext returns the underlying logger with any correlation ids in
// ctx attached.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	out := l.Logger
	if id := middleware.GetRequestID(ctx); id != "" {
		out = out.With(slog.String(FieldRequestID, id))
	}
	if id := StreamMessage(ctx); id != "" {
		out = out.With(slog.String(FieldStreamMsg, id))
	}
	return out
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).DebugContext(ctx, msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).InfoContext(ctx, msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).WarnContext(ctx, msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).ErrorContext(ctx, msg, args...)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// ParseLevel maps a config level name to slog.Level, case-insensitively.
// Unknown names log at info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SetDefault installs l as slog's process-wide logger.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
