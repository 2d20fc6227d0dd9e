// Package logging builds the process logger. Level and prefix come from the
// environment so the broker behaves the same whether it runs standalone or
// embedded as a plugin.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// NewLoggerWithWriter creates a logger writing to w.
//
// MCAD_LOG_LEVEL: debug, info, warn, error (default: info)
// MCAD_LOG_PREFIX: prefix for log messages (default: "mcad")
func NewLoggerWithWriter(w io.Writer) *log.Logger {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})

	switch os.Getenv("MCAD_LOG_LEVEL") {
	case "debug":
		lg.SetLevel(log.DebugLevel)
	case "warn":
		lg.SetLevel(log.WarnLevel)
	case "error":
		lg.SetLevel(log.ErrorLevel)
	default:
		lg.SetLevel(log.InfoLevel)
	}

	prefix := os.Getenv("MCAD_LOG_PREFIX")
	if prefix == "" {
		prefix = "mcad"
	}
	return lg.WithPrefix(prefix)
}

// NewLogger creates the default stderr logger.
func NewLogger() *log.Logger {
	return NewLoggerWithWriter(os.Stderr)
}
