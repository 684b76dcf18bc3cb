package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	handler := newStructuredJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func TestStructuredJSONHandler_BasicFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelInfo)

	serviceName = "ratewise-test"
	environment = "testing"
	version = "9.9.9"

	l.Info("hello world")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, LevelINFO, entry.Level)
	assert.Equal(t, "hello world", entry.Message)
	assert.Equal(t, "ratewise-test", entry.Service)
	assert.Equal(t, "testing", entry.Environment)
	assert.Equal(t, "9.9.9", entry.Version)
}

func TestStructuredJSONHandler_ContextAnnotations(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelInfo)

	ctx := context.Background()
	ctx = WithComponent(ctx, Components.Retry)
	ctx = WithStage(ctx, Stages.Retry)
	ctx = WithRequestID(ctx, "req-123")

	l.InfoContext(ctx, "retrying")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, Components.Retry, entry.Component)
	assert.Equal(t, Stages.Retry, entry.Stage)
	require.NotNil(t, entry.Request)
	assert.Equal(t, "req-123", entry.Request.RequestID)
}

func TestStructuredJSONHandler_ErrorAttribute(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelError)

	l.Error("attempt failed", "error", errors.New("boom"))

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.NotNil(t, entry.Error)
	assert.Equal(t, "boom", entry.Error.Message)
	assert.Contains(t, entry.Error.Type, "errorString")
}

func TestStructuredJSONHandler_CustomAttributesFallIntoAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelInfo)

	l.Info("custom event", "attempt", 3, "reason", "timeout")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.NotNil(t, entry.Attributes)
	assert.EqualValues(t, 3, entry.Attributes["attempt"])
	assert.Equal(t, "timeout", entry.Attributes["reason"])
}

func TestStructuredJSONHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelWarn)

	l.Debug("should not appear")
	l.Info("should not appear either")

	assert.Empty(t, buf.String())

	l.Warn("should appear")
	assert.True(t, strings.Contains(buf.String(), "should appear"))
}

func TestWithComponentStageRequestID_Isolated(t *testing.T) {
	base := context.Background()
	withComponent := WithComponent(base, "X")

	assert.Nil(t, base.Value(ComponentKey))
	assert.Equal(t, "X", withComponent.Value(ComponentKey))
}
