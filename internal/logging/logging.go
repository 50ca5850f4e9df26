// Package logging builds the structured logger shared across CoreTet.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// New creates a logger writing to w (os.Stderr when nil) at the given level.
// Format "json" switches to JSON output; anything else is human-readable text.
func New(w io.Writer, level, format string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := log.Options{ReportTimestamp: true}
	if strings.EqualFold(format, "json") {
		opts.Formatter = log.JSONFormatter
	}

	logger := log.NewWithOptions(w, opts)
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
