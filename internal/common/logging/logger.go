package logging

import (
	"context"
	"fmt"
	"io"
	"os"
)

// NewDefaultLogger creates a logger with default configuration using zap
func NewDefaultLogger() Logger {
	logger, err := NewZapLogger(DefaultLogConfig())
	if err != nil {
		panic(fmt.Sprintf("failed to initialize default zap logger: %v", err))
	}
	return logger
}

// InitGlobalLogger installs a zap logger built from the given level and format.
// Output goes to stderr unless w is non-nil, so CLI output on stdout stays clean.
func InitGlobalLogger(level, format string, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}

	logger, err := NewZapLogger(LogConfig{
		Level:  ParseLevel(level),
		Output: w,
		Format: ParseFormat(format),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	SetGlobalLogger(logger)
	logger.Debug("Logger initialized",
		String("level", ParseLevel(level).String()),
		String("format", string(ParseFormat(format))),
	)
	return logger
}

// MustSync flushes any buffered log entries for zap loggers
// This should be called before application exit
func MustSync() {
	if zapLogger, ok := GetGlobalLogger().(*ZapAdapter); ok {
		_ = zapLogger.Sync()
	}
}

// Err creates an error field with key "error"
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// NopLogger discards everything. Useful for tests and for components built without a logger.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field)               {}
func (NopLogger) Info(string, ...Field)                {}
func (NopLogger) Warn(string, ...Field)                {}
func (NopLogger) Error(string, error, ...Field)        {}
func (n NopLogger) WithFields(...Field) Logger         { return n }
func (n NopLogger) WithContext(context.Context) Logger { return n }
