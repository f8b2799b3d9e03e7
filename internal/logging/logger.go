// Package logging provides structured logging configuration using log/slog.
//
// Loggers are built once at startup and passed to each component explicitly.
// The HTTP status server enriches them with chi's request id so every entry
// written while serving a request can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// New builds a logger for the given level and format writing to w.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// Use "json" format in production for machine parsing.
// Use "text" format in development for human readability.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops every entry. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// FromContext returns base enriched with request context.
//
// When called with a request context that contains a chi RequestID,
// the returned logger automatically includes request_id in all log entries.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return base.With("request_id", reqID)
	}
	return base
}

// ForRun returns a logger carrying the run id, used for every entry
// written during one pipeline run.
//
//	log := logging.ForRun(base, runID)
//	log.Info("run started")
//	// ... later ...
//	log.Info("run finished", "persisted", n)
func ForRun(base *slog.Logger, runID string) *slog.Logger {
	return base.With("run_id", runID)
}

// ForFile returns a logger carrying the file being processed and the stage.
func ForFile(base *slog.Logger, stage, file string) *slog.Logger {
	return base.With("stage", stage, "file", file)
}
