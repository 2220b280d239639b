// Package logger bridges slog to zerolog and provides pass-through flow
// handlers that log what streams through them.
//
// Library code in go-quill logs through slog (see quill.LogInfo and friends).
// Binaries pick the backend here:
//
//	log := logger.New(logger.Options{Level: "debug", Format: "console"})
//	ctx = quill.WithLogger(ctx, log)
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects level, format ("json" or "console") and destination.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a slog.Logger backed by zerolog.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level := ParseLevel(opts.Level)
	zl := zerolog.New(out).Level(toZerolog(level)).With().Timestamp().Logger()
	return slog.New(NewZerologHandler(zl))
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to slog levels.
// Anything else is info.
func ParseLevel(s string) slog.Level {
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

func toZerolog(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
