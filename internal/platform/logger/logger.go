package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON slog logger on stdout. Development runs log at debug.
func New(development bool) *slog.Logger {
	return NewWithWriter(os.Stdout, development)
}

func NewWithWriter(w io.Writer, development bool) *slog.Logger {
	level := slog.LevelInfo
	if development {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).
		With("service", "qualtrack")
}
