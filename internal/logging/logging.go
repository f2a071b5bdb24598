// Package logging builds the process-wide [log/slog] logger for pdfrag and
// carries it through request contexts.
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: text)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// Options controls logger construction. Zero values fall back to the
// LOG_LEVEL / LOG_FORMAT environment variables.
type Options struct {
	// Level overrides LOG_LEVEL when non-empty.
	Level string

	// Format overrides LOG_FORMAT when non-empty ("json" or "text").
	Format string

	// Output is where records are written. Defaults to os.Stderr so that
	// command output on stdout stays clean.
	Output io.Writer
}

// New constructs a logger from the environment, writing to stderr.
func New() *slog.Logger {
	return NewWithOptions(Options{})
}

// NewWithOptions constructs a logger, preferring explicit options over the
// environment.
func NewWithOptions(o Options) *slog.Logger {
	level := o.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	format := o.Format
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	out := o.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler).With(slog.String("app", "pdfrag"))
}

// Discard returns a logger that drops every record. Intended for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
