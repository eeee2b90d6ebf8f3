// Package logger provides the process-wide structured logger used by every
// other package. It wraps a single *slog.Logger built by
// toolhive-core/logging behind package-level functions so callers never
// thread a logger through constructors they don't otherwise need.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/stacklok/toolhive-core/env"
	"github.com/stacklok/toolhive-core/logging"
)

var singleton atomic.Pointer[slog.Logger]

// Initialize creates the singleton logger from the process environment.
// Call it once at startup; Get also falls back to it lazily for code
// that logs before main has run.
func Initialize() {
	InitializeWithEnv(&env.OSReader{})
}

// InitializeWithEnv creates the singleton logger, reading LOG_LEVEL and
// UNSTRUCTURED_LOGS through envReader so tests can inject both.
func InitializeWithEnv(envReader env.Reader) {
	format := logging.FormatJSON
	if unstructuredLogsWithEnv(envReader) {
		format = logging.FormatText
	}
	singleton.Store(logging.New(
		logging.WithOutput(os.Stderr),
		logging.WithLevel(logLevelWithEnv(envReader)),
		logging.WithFormat(format),
	))
}

// unstructuredLogsWithEnv reports whether UNSTRUCTURED_LOGS requests the
// human-readable text handler. Unset or unparsable values default to
// structured JSON: autopeerd is a daemon and its logs feed collectors,
// not terminals.
func unstructuredLogsWithEnv(envReader env.Reader) bool {
	v, err := strconv.ParseBool(envReader.Getenv("UNSTRUCTURED_LOGS"))
	if err != nil {
		return false
	}
	return v
}

func logLevelWithEnv(envReader env.Reader) slog.Level {
	switch strings.ToLower(strings.TrimSpace(envReader.Getenv("LOG_LEVEL"))) {
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

// Get returns the current singleton logger, initializing it from the
// environment on first use.
func Get() *slog.Logger {
	if l := singleton.Load(); l != nil {
		return l
	}
	Initialize()
	return singleton.Load()
}

// NewLogr adapts the singleton for libraries that want a logr.Logger.
func NewLogr() logr.Logger {
	return logr.FromSlogHandler(Get().Handler())
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { Get().Debug(fmt.Sprintf(format, args...)) }

// Debugw logs a message with structured key-value pairs at debug level.
func Debugw(msg string, keysAndValues ...any) { Get().Debug(msg, keysAndValues...) }

// Info logs at info level.
func Info(msg string, args ...any) { Get().Info(msg, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { Get().Info(fmt.Sprintf(format, args...)) }

// Infow logs a message with structured key-value pairs at info level.
func Infow(msg string, keysAndValues ...any) { Get().Info(msg, keysAndValues...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { Get().Warn(msg, args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { Get().Warn(fmt.Sprintf(format, args...)) }

// Warnw logs a message with structured key-value pairs at warn level.
func Warnw(msg string, keysAndValues ...any) { Get().Warn(msg, keysAndValues...) }

// Error logs at error level.
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { Get().Error(fmt.Sprintf(format, args...)) }

// Errorw logs a message with structured key-value pairs at error level.
func Errorw(msg string, keysAndValues ...any) { Get().Error(msg, keysAndValues...) }

// DPanic logs at error level; unlike Panic it never unwinds, it exists
// for invariant breaks that should be loud but survivable.
func DPanic(msg string, args ...any) { Get().Error(msg, args...) }

// DPanicf logs a formatted message at error level.
func DPanicf(format string, args ...any) { Get().Error(fmt.Sprintf(format, args...)) }

// DPanicw logs a message with structured key-value pairs at error level.
func DPanicw(msg string, keysAndValues ...any) { Get().Error(msg, keysAndValues...) }

// Panic logs at error level, then panics.
func Panic(msg string, args ...any) {
	Get().Error(msg, args...)
	panic(msg)
}

// Panicf logs a formatted message at error level, then panics.
func Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	Get().Error(msg)
	panic(msg)
}

// Panicw logs a message with structured key-value pairs at error level,
// then panics.
func Panicw(msg string, keysAndValues ...any) {
	Get().Error(msg, keysAndValues...)
	panic(msg)
}
