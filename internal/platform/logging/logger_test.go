package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&Config{
		Level: "debug",
		Dir:   tmpDir,
		File:  "test.log",
	})

	assert.NoError(t, err)
	assert.NotNil(t, logger)

	err = logger.Close()
	assert.NoError(t, err)
}

func TestLogger_Info(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&Config{
		Level: "info",
		Dir:   tmpDir,
		File:  "info.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	testMsg := "test info message"
	logger.Info(testMsg)

	time.Sleep(10 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "info.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), testMsg)
}

func TestLogger_Error(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&Config{
		Level: "error",
		Dir:   tmpDir,
		File:  "error.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	testMsg := "test error message"
	logger.Error(testMsg)

	time.Sleep(10 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "error.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), testMsg)
}

func TestLogger_InfoTag(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&Config{
		Level: "debug",
		Dir:   tmpDir,
		File:  "tag.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.InfoTag("Cache", "warmed 12 phrases")

	time.Sleep(10 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "tag.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[Cache]")
	assert.Contains(t, string(content), "warmed 12 phrases")
}

func TestLogger_NilReceiverTag(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.InfoTag("Cache", "ignored")
		logger.WarnTag("Cache", "ignored")
		logger.ErrorTag("Cache", "ignored")
	})
}

func TestLogger_LogLevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&Config{
		Level: "error",
		Dir:   tmpDir,
		File:  "filter.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Debug("this should not appear")
	logger.Info("this should not appear either")
	logger.Warn("this should not appear")
	logger.Error("this should appear")

	time.Sleep(10 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "filter.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "this should not appear")
	assert.Contains(t, string(content), "this should appear")
}

func TestFormatLog(t *testing.T) {
	assert.Equal(t, "[HTTP] listening", FormatLog("HTTP", "listening"))
	assert.Equal(t, "[Cache] already tagged", FormatLog("Events", "[Cache] already tagged"))
	assert.Equal(t, "bare message", FormatLog("", "bare message"))
}

func TestContainsFormatPlaceholders(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"hello world", false},
		{"hello %s", true},
		{"value is %d", true},
		{"no placeholders here", false},
		{"%[1]s argument", true},
	}

	for _, tt := range tests {
		result := containsFormatPlaceholders(tt.input)
		assert.Equal(t, tt.expected, result, "input: %s", tt.input)
	}
}

func TestTextHandler_Enabled(t *testing.T) {
	handler := &TextHandler{
		writer: &strings.Builder{},
		level:  slog.LevelInfo,
	}

	assert.True(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelError))
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		result := parseLevel(tt.input)
		assert.Equal(t, tt.expected, result, "input: %s", tt.input)
	}
}

func TestLogger_ConcurrentLogging(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&Config{
		Level: "debug",
		Dir:   tmpDir,
		File:  "concurrent.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			logger.Info("concurrent message number", idx)
		}(i)
	}

	wg.Wait()

	time.Sleep(50 * time.Millisecond)

	logFile := filepath.Join(tmpDir, "concurrent.log")
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)

	count := strings.Count(string(content), "concurrent message number")
	assert.Equal(t, 10, count)
}
