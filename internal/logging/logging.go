package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options configures the process logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// New builds the root logger. Components derive tagged children with WithPrefix.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	formatter := log.TextFormatter
	if strings.EqualFold(opts.Format, "json") {
		formatter = log.JSONFormatter
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Formatter:       formatter,
	})

	level, err := log.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
