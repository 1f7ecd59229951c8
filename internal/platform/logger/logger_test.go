package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleAndFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "placesd.log")
	var console bytes.Buffer

	l := New(Options{
		Env:          "prod",
		ConsoleLevel: "warn",
		FileLevel:    "debug",
		File:         logFile,
		App:          "placesd",
		Console:      &console,
	})
	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	require.NoError(t, Close(l))
	require.NoError(t, Close(l), "second close is a no-op")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	for _, msg := range []string{"debug message", "info message", "warn message"} {
		assert.Contains(t, string(content), msg)
	}
	assert.Contains(t, string(content), `"app":"placesd"`)

	assert.NotContains(t, console.String(), "info message")
	assert.Contains(t, console.String(), "warn message")
}

func TestNew_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	l := New(Options{Env: "dev", Console: &console})
	l.Debug("hidden")
	l.Info("shown")
	assert.NoError(t, Close(l))

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelFromString("DEBUG", slog.LevelInfo))
	assert.Equal(t, slog.LevelWarn, LevelFromString("warn", slog.LevelInfo))
	assert.Equal(t, slog.LevelError, LevelFromString("error", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, LevelFromString("", slog.LevelInfo))
	assert.Equal(t, slog.LevelDebug, LevelFromString("verbose", slog.LevelDebug))
}

func TestRedactingHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewRedactingHandler(slog.NewJSONHandler(&buf, nil), DefaultRedactKeys)
	l := slog.New(h).With("URL", "https://private.example/")

	l.Info("visit",
		"title", "Secret page",
		"owner", 7,
		slog.Group("req", slog.String("search", "medical"), slog.Int("limit", 5)))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, redacted, rec["URL"])
	assert.Equal(t, redacted, rec["title"])
	assert.EqualValues(t, 7, rec["owner"])
	req := rec["req"].(map[string]any)
	assert.Equal(t, redacted, req["search"])
	assert.EqualValues(t, 5, req["limit"])
	assert.NotContains(t, buf.String(), "private.example")
}

func TestMultiHandler(t *testing.T) {
	var debugBuf, errorBuf bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	l := slog.New(h).WithGroup("db").With("conn", "rw")
	l.Info("opened")
	l.Error("failed")

	assert.Equal(t, 2, strings.Count(debugBuf.String(), "db.conn=rw"))
	assert.Equal(t, 1, strings.Count(errorBuf.String(), "msg=failed"))
	assert.NotContains(t, errorBuf.String(), "opened")
}
