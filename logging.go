package imagecache

import (
	"context"
	"log/slog"
	"os"
)

// Logger provides structured logging for the engine. It is a thin
// wrapper around slog so callers can route engine logs into their own
// handler while the engine keeps a consistent field vocabulary.
type Logger struct {
	s *slog.Logger
}

// NewLogger creates a logger writing text records to stderr at the
// given level.
func NewLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &Logger{s: slog.New(handler)}
}

// NewLoggerWith wraps an existing slog logger.
func NewLoggerWith(s *slog.Logger) *Logger {
	if s == nil {
		return NewNopLogger()
	}
	return &Logger{s: s}
}

// NewNopLogger creates a logger that discards all records. It is the
// default when no logger is injected.
func NewNopLogger() *Logger {
	return &Logger{s: slog.New(slog.DiscardHandler)}
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.s.DebugContext(ctx, msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.s.InfoContext(ctx, msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.s.WarnContext(ctx, msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.s.ErrorContext(ctx, msg, args...)
}

// With returns a logger carrying additional fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...)}
}

// WithOperation returns a logger with operation context.
func (l *Logger) WithOperation(operation string) *Logger {
	return l.With("operation", operation)
}

// WithKey returns a logger with cache key context.
func (l *Logger) WithKey(id string) *Logger {
	return l.With("key", id)
}

// WithSize returns a logger with payload size context.
func (l *Logger) WithSize(size int64) *Logger {
	return l.With("size", size)
}
