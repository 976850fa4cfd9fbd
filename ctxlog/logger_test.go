package ctxlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactSensitiveData_OpenAIKey(t *testing.T) {
	input := "using key sk-abcdefghijklmnopqrstuvwxyz0123456789 for this call"
	redacted := RedactSensitiveData(input)
	assert.NotContains(t, redacted, "abcdefghijklmnopqrstuvwxyz0123456789")
	assert.Contains(t, redacted, "sk-a")
}

func TestRedactSensitiveData_BearerToken(t *testing.T) {
	redacted := RedactSensitiveData("Authorization: Bearer abc123XYZ")
	assert.Contains(t, redacted, "Bearer [REDACTED]")
	assert.NotContains(t, redacted, "abc123XYZ")
}

func TestRedactSensitiveData_LeavesPlainTextAlone(t *testing.T) {
	assert.Equal(t, "all models failed after 3 attempts", RedactSensitiveData("all models failed after 3 attempts"))
}

func TestContextHandler_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	handler := NewContextHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler)

	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithStage(ctx, "compress")
	logger.InfoContext(ctx, "pipeline action")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "sess-1", decoded["session_id"])
	assert.Equal(t, "compress", decoded["stage"])
}

func TestModuleConfig_ExactAndHierarchicalOverride(t *testing.T) {
	cfg := NewModuleConfig(slog.LevelInfo)
	cfg.SetModuleLevel("ctxcompress", slog.LevelDebug)

	assert.Equal(t, slog.LevelDebug, cfg.LevelFor("ctxcompress"))
	assert.Equal(t, slog.LevelDebug, cfg.LevelFor("ctxcompress.internal"))
	assert.Equal(t, slog.LevelInfo, cfg.LevelFor("ctxprune"))
}

func TestExtractFields_RoundTrips(t *testing.T) {
	ctx := WithSessionID(context.Background(), "s1")
	ctx = WithModel(ctx, "model-a")
	ctx = WithCorrelationID(ctx, "corr-1")

	fields := ExtractFields(ctx)
	assert.Equal(t, "s1", fields.SessionID)
	assert.Equal(t, "model-a", fields.Model)
	assert.Equal(t, "corr-1", fields.CorrelationID)
}

func TestAttemptFailed_RedactsErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	old := DefaultLogger
	DefaultLogger = slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))
	defer func() { DefaultLogger = old }()

	AttemptFailed("modelA", 1, errors.New("rejected Bearer abc123XYZ"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded["error"], "Bearer [REDACTED]")
}
