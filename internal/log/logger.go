package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog logger with the given level string (debug, info, warn, error).
func New(level string) *zerolog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(out io.Writer, level string) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	// The effective threshold is global so SetLevel can change it at runtime.
	SetLevel(level)
	logger := zerolog.New(output).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	return &logger
}

// SetLevel changes the process-wide log threshold.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
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
