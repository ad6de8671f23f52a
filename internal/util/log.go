// Package util provides shared utility functions for logging, retries, and
// rate limiting.
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions controls logger construction.
type LogOptions struct {
	// Level is one of "debug", "info", "warn", "error". Unrecognised values
	// fall back to "info".
	Level string

	// Format is "json" or "text".
	Format string

	// File, when non-empty, is a log file that receives a copy of every
	// record. The file is size-rotated.
	File string

	// Console enables writing to stdout. When File is empty the console is
	// used regardless, so records are never dropped entirely.
	Console bool
}

// NewLogger creates a structured logger using log/slog with the given
// options. File output rotates at 10 MB keeping 3 backups.
func NewLogger(opts LogOptions) *slog.Logger {
	var slevel slog.Level
	switch strings.ToLower(opts.Level) {
	case "debug":
		slevel = slog.LevelDebug
	case "info":
		slevel = slog.LevelInfo
	case "warn":
		slevel = slog.LevelWarn
	case "error":
		slevel = slog.LevelError
	default:
		slevel = slog.LevelInfo
	}

	var writers []io.Writer
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			Compress:   true,
		})
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	w := io.MultiWriter(writers...)

	hopts := &slog.HandlerOptions{Level: slevel}
	var handler slog.Handler
	if strings.ToLower(opts.Format) == "text" {
		handler = slog.NewTextHandler(w, hopts)
	} else {
		handler = slog.NewJSONHandler(w, hopts)
	}

	return slog.New(handler)
}

// SetDefault configures the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
