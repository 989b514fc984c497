package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Format selects the slog handler
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Logger wraps slog.Logger with component context
type Logger struct {
	*slog.Logger
	component string
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level LogLevel) slog.Level {
	switch LogLevel(strings.ToLower(string(level))) {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a new structured logger writing JSON to stderr
func NewLogger(component string, level LogLevel) *Logger {
	return New(os.Stderr, component, level, FormatJSON)
}

// New creates a logger writing to w in the given format
func New(w io.Writer, component string, level LogLevel, format Format) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == FormatText {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger:    slog.New(handler),
		component: component,
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
	}
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}

// WithComponent creates a logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger,
		component: component,
	}
}

// WithRequest creates a logger with request context
func (l *Logger) WithRequest(requestID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("request_id", requestID),
		component: l.component,
	}
}

// WithWorker creates a logger tagged with a pool worker id
func (l *Logger) WithWorker(worker int) *Logger {
	return &Logger{
		Logger:    l.Logger.With("worker_id", worker),
		component: l.component,
	}
}

// NewRequest returns a logger tagged with a fresh request id, and the id.
func (l *Logger) NewRequest() (*Logger, string) {
	id := uuid.NewString()
	return l.WithRequest(id), id
}

// Debug logs a debug message with component context
func (l *Logger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, append([]any{"component", l.component}, args...)...)
}

// Info logs an info message with component context
func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, append([]any{"component", l.component}, args...)...)
}

// Warn logs a warning message with component context
func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, append([]any{"component", l.component}, args...)...)
}

// Error logs an error message with component context
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, append([]any{"component", l.component}, args...)...)
}

// LogFetch logs the outcome of one logical fetch
func (l *Logger) LogFetch(endpoint, key string, cacheHit bool, attempts int, duration time.Duration) {
	l.Info("fetch completed",
		"endpoint", endpoint,
		"key", key,
		"cache_hit", cacheHit,
		"attempts", attempts,
		"duration_ms", duration.Milliseconds())
}

// LogRetry logs a failed attempt that will be retried
func (l *Logger) LogRetry(endpoint string, attempt, maxAttempts int, reason string, delay time.Duration) {
	l.Warn("attempt failed, retrying",
		"endpoint", endpoint,
		"attempt", attempt,
		"max_attempts", maxAttempts,
		"reason", reason,
		"delay_ms", delay.Milliseconds())
}

// LogError logs error events with context
func (l *Logger) LogError(operation string, err error, context ...any) {
	args := append([]any{"operation", operation, "error", err.Error()}, context...)
	l.Error("operation failed", args...)
}
