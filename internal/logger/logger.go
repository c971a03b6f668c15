// Package logger builds the structured logger shared by the recjpeg commands.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a text logger writing to w. Debug output is enabled when
// verbose is set or when the DEBUG environment variable is non-empty.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops every record. Useful as a default
// when a caller does not care about log output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
