// Package logging builds the zerolog loggers used across the ingestion
// pipeline. Every package receives a logger tagged with its component name.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configure New. Empty fields fall back to LOG_LEVEL and ENVIRONMENT.
type Options struct {
	Level       string
	Environment string
	Out         io.Writer
}

// ParseLevel maps a level name to a zerolog level; unknown names mean info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New returns the root logger. Outside production the output is the
// human-readable console format; in production it is JSON.
func New(opt Options) zerolog.Logger {
	if opt.Level == "" {
		opt.Level = os.Getenv("LOG_LEVEL")
	}
	if opt.Environment == "" {
		opt.Environment = os.Getenv("ENVIRONMENT")
	}
	out := opt.Out
	if out == nil {
		out = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	if opt.Environment != "production" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(ParseLevel(opt.Level)).
		With().
		Timestamp().
		Logger()
}

// Component tags base with the component name.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
