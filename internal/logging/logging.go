// Package logging configures the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Logger is the global structured logger
var Logger *slog.Logger

func init() {
	Logger = slog.New(newHandler(os.Stderr, log.InfoLevel, false))
}

// Setup configures the logger based on verbosity and output preferences.
// Text output goes through a charm logger; JSON output keeps one object per
// line for log collectors.
func Setup(verbose bool, jsonOutput bool, w io.Writer) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	if w == nil {
		w = os.Stderr
	}

	Logger = slog.New(newHandler(w, level, jsonOutput))
	slog.SetDefault(Logger)
}

func newHandler(w io.Writer, level log.Level, jsonOutput bool) *log.Logger {
	opts := log.Options{
		Level:           level,
		Prefix:          "clrhost",
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	}
	if jsonOutput {
		opts.Formatter = log.JSONFormatter
		opts.TimeFormat = time.RFC3339
	}
	return log.NewWithOptions(w, opts)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// With returns a logger with additional attributes
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}
