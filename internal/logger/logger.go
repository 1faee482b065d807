// Package logger provides a process-wide leveled logger that writes to a
// file. The terminal belongs to the UI, so nothing is ever written to
// stdout or stderr from here.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// LogLevel is the minimum severity that will be written.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel converts a config string to a LogLevel. Unknown values map to
// LevelWarning.
func ParseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warning":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelWarning
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

var (
	mu      sync.Mutex
	file    *os.File
	base    = slog.New(slog.NewTextHandler(io.Discard, nil))
	session = uuid.New().String()
)

// Init opens path for appending and routes all log calls to it. An empty
// path discards output. A file opened by an earlier Init is closed.
func Init(path string, level LogLevel) error {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	return initLocked(path, level)
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

// Session returns the id attached to every record written by this process.
func Session() string {
	return session
}

func initLocked(path string, level LogLevel) error {
	var w io.Writer = io.Discard
	if path != "" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating log directory: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		file = f
		w = f
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})
	base = slog.New(handler).With("session", session)
	return nil
}

func closeLocked() {
	if file != nil {
		_ = file.Close()
		file = nil
	}
	base = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func current() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base
}

func logf(level slog.Level, format string, args ...any) {
	l := current()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// Debug logs a debug message.
func Debug(format string, args ...any) { logf(slog.LevelDebug, format, args...) }

// Info logs an informational message.
func Info(format string, args ...any) { logf(slog.LevelInfo, format, args...) }

// Warning logs a warning message.
func Warning(format string, args ...any) { logf(slog.LevelWarn, format, args...) }

// Error logs an error message.
func Error(format string, args ...any) { logf(slog.LevelError, format, args...) }

// ErrorWithErr logs an error message with the error attached.
func ErrorWithErr(err error, format string, args ...any) {
	l := current()
	if !l.Enabled(context.Background(), slog.LevelError) {
		return
	}
	l.Error(fmt.Sprintf(format, args...), "error", err)
}
