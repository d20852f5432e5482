// Package logging builds the runtime's structured logger. It mirrors
// the teacher's own structured-logging package in shape — a Level
// enum, an output Format, a Config, and a single New constructor — but
// is built directly on zerolog rather than log/slog, matching the rest
// of this module's ambient stack.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level is the minimum severity a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel accepts the config file's string form, defaulting to Info
// for anything it doesn't recognize rather than refusing to start.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects between a human-readable console writer and raw JSON
// lines suitable for log aggregation.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config controls New.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer // defaults to os.Stderr when nil
}

// New builds a zerolog.Logger from cfg, stamping every line with the
// process's service name and a RFC3339 timestamp.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var writer io.Writer = out
	if cfg.Format == FormatConsole {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(writer).
		Level(cfg.Level.zerologLevel()).
		With().
		Timestamp().
		Str("service", "mxtasking").
		Logger()

	return logger
}
