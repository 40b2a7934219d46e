// Package logging builds the structured loggers used by the engine and
// the command line.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Params configures a logger.
type Params struct {
	Debug bool
	// JSON switches from the human console format to one JSON object per
	// line.
	JSON bool
	// Writer defaults to stderr.
	Writer io.Writer
}

// New creates a logger that writes to stderr unless Params.Writer is set.
func New(params Params) *log.Logger {
	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	w := params.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{
		ReportTimestamp: true,
		Level:           level,
	}
	if params.JSON {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, opts)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
