// Package logger provides structured logging for recurd. It uses Go's
// slog package with configurable level and format, and bridges gocron's
// logger interface onto slog.
package logger

import (
	"log/slog"
	"os"

	"github.com/go-co-op/gocron/v2"
)

// NewLogger creates a new slog Logger with the specified level and format.
// If jsonOutput is true, logs are formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// gocronLogger adapts slog to gocron's Logger interface.
type gocronLogger struct {
	logger *slog.Logger
}

// NewGocronLogger returns a gocron.Logger that forwards to the given slog
// logger.
//
//nolint:ireturn // Interface return is required by gocron's API contract
func NewGocronLogger(logger *slog.Logger) gocron.Logger {
	return &gocronLogger{logger: logger.With("component", "gocron")}
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *gocronLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
