// Package logger builds the zerolog loggers used across the backend.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the process-wide logger. Console output is used when stdout is
// a terminal-ish environment (LOG_FORMAT=console), JSON otherwise.
func New() zerolog.Logger {
	var w io.Writer = os.Stdout
	if os.Getenv("LOG_FORMAT") == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// NewWithWriter returns a logger writing to w; used by tests.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// Component returns a child logger tagged with a component name, e.g.
// "reconciler" or "detector".
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
