// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. Every logger derived from it
// carries a service field.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))
	zerolog.DurationFieldUnit = time.Millisecond

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", "mailsync").
		Logger()

	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. Unknown names map to
// info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Page listings (cursor, summary count)
//   - Batch dispatch (size, mode)
//   - Cache hits and misses, quota waits
//
// Info: Normal operation events
//   - Sync run start and completion
//   - Per-page progress
//   - Retries that eventually succeeded
//
// Warn: Warning conditions that don't prevent operation
//   - Detail fetch failures (message keeps its summary)
//   - Cross-page duplicate identities
//   - Cache errors (fallback to direct fetch)
//   - Rate limit penalties, exhausted retries
//   - Cancelled runs
//
// Error: Error conditions requiring attention
//   - Summary page failures (run aborted)
//   - Failed HTTP requests
//
// Context Fields:
//   - run_id: Sync run identifier
//   - page: Summary page number
//   - batch: Batch number within a page
//   - message_id: Message identity
//   - endpoint: Normalized provider endpoint
//   - error_class: Error classification (client, not_found, server, rate_limit, network, cancelled)
//   - duration: Operation duration
