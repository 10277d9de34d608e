// Package logging configures structured logging: colored text through tint for terminals,
// or JSON for log collectors.
//
// Usage:
//
//	logger := logging.Setup(logging.Options{Level: "debug", Format: "text"})
//	logging.SetupFromEnv()                    // level from LOG_LEVEL, text format
//
// Environment variables:
//
//	LOG_LEVEL: debug, info, warn, error (default: info)
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Options select the level and output format.
type Options struct {
	// Level is debug, info, warn or error. Anything else means info.
	Level string

	// Format is text (colored) or json.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer

	// NoColor disables ANSI colors in text output.
	NoColor bool
}

// New builds a logger without touching the default.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(opts.Level)

	if strings.EqualFold(opts.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}))
	}
	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  true,
		NoColor:    opts.NoColor,
	}))
}

// Setup builds a logger and installs it as the slog default.
func Setup(opts Options) *slog.Logger {
	logger := New(opts)
	slog.SetDefault(logger)
	return logger
}

// SetupFromEnv configures colored logging at the level specified by LOG_LEVEL.
func SetupFromEnv() *slog.Logger {
	return Setup(Options{Level: os.Getenv("LOG_LEVEL")})
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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
