package pkg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// CDC-ACM component identifiers.
const (
	ComponentControl   Component = "control"   // EP0 class request handling
	ComponentRx        Component = "rx"        // Bulk OUT (host to device) path
	ComponentTx        Component = "tx"        // Bulk IN (device to host) path
	ComponentNotify    Component = "notify"    // Interrupt IN notifications
	ComponentTransport Component = "transport" // Endpoint transport adapters
	ComponentHost      Component = "host"      // Host-side tooling
	ComponentApp       Component = "app"       // Example applications
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

var (
	// DefaultLogger is the default logger used by the CDC stack.
	DefaultLogger *slog.Logger

	// logLevel controls the minimum log level.
	logLevel = new(slog.LevelVar)

	// logMutex protects logger configuration.
	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogLevel sets the minimum log level for all stack logging.
func SetLogLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.Set(level)
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() slog.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel.Level()
}

// ParseLogLevel converts a level name (debug, info, warn, error) to a
// [slog.Level]. Matching is case-insensitive; "warning" is accepted.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log level %q: %w", name, ErrInvalidParameter)
}

// ParseLogFormat converts a format name (text, json) to a [LogFormat].
func ParseLogFormat(name string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "text", "":
		return LogFormatText, nil
	case "json":
		return LogFormatJSON, nil
	}
	return LogFormatText, fmt.Errorf("log format %q: %w", name, ErrInvalidParameter)
}

// SetLogger replaces the default logger with a custom logger.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogFormat configures the default logger to use the specified format.
// The logger writes to os.Stderr and uses the current log level.
func SetLogFormat(format LogFormat) {
	SetLogOutput(os.Stderr, format)
}

// SetLogOutput configures the default logger to write to w in the
// specified format, using the current log level.
func SetLogOutput(w io.Writer, format LogFormat) {
	logMutex.Lock()
	defer logMutex.Unlock()
	switch format {
	case LogFormatJSON:
		DefaultLogger = NewJSONLogger(w, nil)
	default:
		DefaultLogger = NewLogger(w, nil)
	}
}

// NewLogger creates a new text logger writing to the given writer. With nil
// opts the logger follows the level set by [SetLogLevel].
func NewLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewJSONLogger creates a new JSON logger writing to the given writer. With
// nil opts the logger follows the level set by [SetLogLevel].
func NewJSONLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// LogEnabled reports whether a message at level would be emitted. Callers on
// packet paths use it to skip building attributes that would be discarded.
func LogEnabled(level slog.Level) bool {
	return logger().Enabled(context.Background(), level)
}

func logger() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return DefaultLogger
}

func logAt(level slog.Level, component Component, msg string, args []any) {
	l := logger()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, msg, append([]any{"component", string(component)}, args...)...)
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	logAt(slog.LevelDebug, component, msg, args)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	logAt(slog.LevelInfo, component, msg, args)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	logAt(slog.LevelWarn, component, msg, args)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	logAt(slog.LevelError, component, msg, args)
}
