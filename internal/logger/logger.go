// Package logger provides structured logging setup for pagecraft.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pagecraft/pagecraft/internal/config"
)

const defaultService = "pagecraft"

// New creates a *slog.Logger from the given Logging config. Records go to
// stdout as JSON by default, or as human-readable text when format is
// "text" (local development). Every record carries a "service" attribute.
func New(cfg config.Logging) *slog.Logger {
	return newWithWriter(cfg, os.Stdout)
}

func newWithWriter(cfg config.Logging, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", serviceName(cfg.Service))
}

func serviceName(s string) string {
	if s == "" {
		return defaultService
	}
	return s
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
