// Package common provides shared utilities for PriceHistory.
package common

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so every component takes the same injected type.
type Logger struct {
	zerolog.Logger
}

// ParseLevel maps debug|info|warn|error to a zerolog level. Unknown → info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a console logger on stderr with the specified level.
func NewLogger(level string) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
	return &Logger{Logger: logger}
}

// NewLoggerWithOutput creates a JSON logger writing to w.
func NewLoggerWithOutput(level string, w io.Writer) *Logger {
	logger := zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
	return &Logger{Logger: logger}
}

// NewSilentLogger creates a logger that discards all output.
func NewSilentLogger() *Logger {
	return &Logger{Logger: zerolog.New(io.Discard)}
}

// Critical starts a fatal-level event without exiting the process. It marks
// unclassified failures that abort a run.
func (l *Logger) Critical() *zerolog.Event {
	return l.WithLevel(zerolog.FatalLevel)
}

// WithFields returns a child logger carrying extra context fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{Logger: l.Logger.With().Fields(fields).Logger()}
}
