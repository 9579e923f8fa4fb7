package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	slogger *slog.Logger
	logFile *os.File
)

// InitSlog initializes the slog-based logger
// If jsonOutput is true, logs are formatted as JSON for production.
// An empty logDir logs to stderr only.
func InitSlog(logDir string, jsonOutput bool, level slog.Level) error {
	var writer io.Writer = os.Stderr

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return err
		}

		logFileName := "eventsync-" + time.Now().Format("2006-01-02") + ".log"
		f, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}

		mu.Lock()
		logFile = f
		mu.Unlock()

		// Write to both stderr and file; stdout carries event output
		writer = io.MultiWriter(os.Stderr, f)
	}

	SetOutput(writer, jsonOutput, level)
	return nil
}

// SetOutput replaces the default logger with one writing to w.
func SetOutput(w io.Writer, jsonOutput bool, level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)

	mu.Lock()
	slogger = l
	mu.Unlock()

	slog.SetDefault(l)
}

// CloseSlog closes the slog log file
func CloseSlog() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Slog returns the slog.Logger instance for structured logging
func Slog() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if slogger == nil {
		return slog.Default()
	}
	return slogger
}

// Context keys for structured logging
type contextKey string

const (
	ContextKeyServer    contextKey = "server"
	ContextKeyDirectory contextKey = "directory"
	ContextKeyAttemptID contextKey = "attempt_id"
)

// WithServer returns a context carrying the server URL for log lines
func WithServer(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, ContextKeyServer, url)
}

// WithDirectory returns a context carrying a directory for log lines
func WithDirectory(ctx context.Context, directory string) context.Context {
	return context.WithValue(ctx, ContextKeyDirectory, directory)
}

// WithAttempt returns a context carrying an attempt ID for log lines
func WithAttempt(ctx context.Context, attemptID string) context.Context {
	return context.WithValue(ctx, ContextKeyAttemptID, attemptID)
}

// WithContext returns a logger with context fields
func WithContext(ctx context.Context) *slog.Logger {
	return FromContext(ctx, Slog())
}

// FromContext decorates base with the fields carried by ctx
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	logger := base

	if server := ctx.Value(ContextKeyServer); server != nil {
		logger = logger.With("server", server)
	}
	if directory := ctx.Value(ContextKeyDirectory); directory != nil {
		logger = logger.With("directory", directory)
	}
	if attemptID := ctx.Value(ContextKeyAttemptID); attemptID != nil {
		logger = logger.With("attempt_id", attemptID)
	}

	return logger
}

// InfoContext logs an info message with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// ErrorContext logs an error with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

// WarnContext logs a warning with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// DebugContext logs debug info with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}
