package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the structured logger shared by the application components
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new logger writing to stdout.
// Level is one of debug, info, warn, error; anything else means info.
func NewLogger(level string, json bool) *Logger {
	return newLogger(os.Stdout, level, json)
}

// Discard returns a logger that drops everything, for tests
func Discard() *Logger {
	return newLogger(io.Discard, "error", false)
}

func newLogger(w io.Writer, level string, json bool) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// With returns a logger carrying the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
