package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapAdapter(t *testing.T) {
	t.Run("basic logging", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: DebugLevel, Output: &buf})
		require.NoError(t, err)

		logger.Debug("debug message", String("key", "value"))
		logger.Info("info message", Int("count", 42))
		logger.Warn("warn message", Bool("enabled", true))
		logger.Error("error message", errors.New("test error"), String("code", "ERR123"))

		output := buf.String()
		assert.Contains(t, output, "DEBUG")
		assert.Contains(t, output, "debug message")
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "info message")
		assert.Contains(t, output, "WARN")
		assert.Contains(t, output, "warn message")
		assert.Contains(t, output, "ERROR")
		assert.Contains(t, output, "test error")
	})

	t.Run("with fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf})
		require.NoError(t, err)

		logger = logger.WithFields(String("external_system_id", "ES1"))
		logger.Info("sending request")

		assert.Contains(t, buf.String(), "external_system_id")
		assert.Contains(t, buf.String(), "ES1")
	})

	t.Run("with request id in context", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf})
		require.NoError(t, err)

		ctx := ContextWithRequestID(context.Background(), "req-456")
		logger.WithContext(ctx).Info("context test")

		assert.Contains(t, buf.String(), "request_id")
		assert.Contains(t, buf.String(), "req-456")
	})

	t.Run("context without request id returns same logger", func(t *testing.T) {
		logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &bytes.Buffer{}})
		require.NoError(t, err)

		assert.Same(t, logger, logger.WithContext(context.Background()))
	})

	t.Run("log level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: WarnLevel, Output: &buf})
		require.NoError(t, err)

		logger.Debug("debug - should not appear")
		logger.Info("info - should not appear")
		logger.Warn("warn - should appear")
		logger.Error("error - should appear", nil)

		output := buf.String()
		assert.NotContains(t, output, "debug - should not appear")
		assert.NotContains(t, output, "info - should not appear")
		assert.Contains(t, output, "warn - should appear")
		assert.Contains(t, output, "error - should appear")
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf, Format: FormatJSON})
		require.NoError(t, err)

		logger.Info("json message", String("protocol", "HTTP"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
		assert.Equal(t, "json message", entry["msg"])
		assert.Equal(t, "HTTP", entry["protocol"])
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"":        InfoLevel,
		"bogus":   InfoLevel,
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(input))
		})
	}
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	previous := GetGlobalLogger()
	defer SetGlobalLogger(previous)

	InitGlobalLogger("info", "console", &buf)
	Info("global info", String("k", "v"))
	Warn("global warn")
	Error("global error", errors.New("boom"))
	Debug("global debug")

	assert.Contains(t, buf.String(), "global info")
	assert.Contains(t, buf.String(), "global warn")
	assert.Contains(t, buf.String(), "boom")
	assert.NotContains(t, buf.String(), "global debug")
}
