package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options selects level, format and destination of a logger.
type Options struct {
	Level  string
	Format string
	Out    io.Writer
}

var fallback atomic.Pointer[zerolog.Logger]

// New creates a structured logger. An empty level means info, an empty
// format means console, and a nil Out means stdout.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logger.New: %w", err)
		}
		level = parsed
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("logger.New: unknown format %q", opts.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Caller().Logger(), nil
}

// NewWithWriter creates a new structured logger with a custom writer
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// SetDefault sets the logger FromContext returns when the context has none.
func SetDefault(log zerolog.Logger) {
	fallback.Store(&log)
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context, falling back to the
// default set by SetDefault, or a disabled logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	if l := fallback.Load(); l != nil {
		return *l
	}
	return zerolog.Nop()
}
