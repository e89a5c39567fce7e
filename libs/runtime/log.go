package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogOptions selects level and encoding. Zero values mean info and JSON.
type LogOptions struct {
	Level  string // debug|info|warn|error
	Format string // json|text
}

func NewLogger(service string, opts LogOptions) *slog.Logger {
	return newLogger(os.Stdout, service, opts)
}

func newLogger(w io.Writer, service string, opts LogOptions) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(opts.Level))); err != nil {
		level = slog.LevelInfo
	}
	ho := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		h = slog.NewTextHandler(w, ho)
	} else {
		h = slog.NewJSONHandler(w, ho)
	}
	return slog.New(h).With("service", service)
}
