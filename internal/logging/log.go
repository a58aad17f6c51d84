// Package logging builds the structured loggers used across storecheck.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures the logger.
type Options struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer
	// Prefix is the component name prefix
	Prefix string
	// TimeFormat is the time format string (default: RFC3339)
	TimeFormat string
	// ReportCaller adds file:line to log entries
	ReportCaller bool
	// ReportTimestamp adds timestamps to log entries
	ReportTimestamp bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Level:           "info",
		Output:          os.Stderr,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
	}
}

// ParseLevel converts a string level to log.Level. Unknown values map to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "info", "":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// New creates a logger with the given options.
func New(opts Options) *log.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.RFC3339
	}
	return log.NewWithOptions(opts.Output, log.Options{
		Level:           ParseLevel(opts.Level),
		Prefix:          opts.Prefix,
		TimeFormat:      opts.TimeFormat,
		ReportCaller:    opts.ReportCaller,
		ReportTimestamp: opts.ReportTimestamp,
	})
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

var (
	defaultOnce   sync.Once
	defaultLogger *log.Logger
	defaultMu     sync.RWMutex
)

// Default returns the process logger, honouring STORECHECK_LOG_LEVEL.
func Default() *log.Logger {
	defaultOnce.Do(func() {
		opts := DefaultOptions()
		if level := os.Getenv("STORECHECK_LOG_LEVEL"); level != "" {
			opts.Level = level
		}
		defaultMu.Lock()
		if defaultLogger == nil {
			defaultLogger = New(opts)
		}
		defaultMu.Unlock()
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process logger.
func SetDefault(logger *log.Logger) {
	defaultOnce.Do(func() {})
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// For returns the default logger with a component prefix.
func For(component string) *log.Logger {
	return Default().WithPrefix(component)
}
