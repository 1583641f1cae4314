package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriter_RejectsBadLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "LOUD")
	err := InitWriter(&bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid LOG_LEVEL")
}

func TestInitWriter_RejectsBadFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")
	err := InitWriter(&bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid LOG_FORMAT")
}

func TestFromContext_AddsCorrelationFields(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "DEBUG")
	var buf bytes.Buffer
	require.NoError(t, InitWriter(&buf))

	ctx := WithRequestID(context.Background(), 42)
	ctx = WithOrigin(ctx, "https://dapp.example")
	ctx = WithChannelID(ctx, "ch-1")
	Info(ctx, "relayed request")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "relayed request", line["msg"])
	assert.Equal(t, "42", line["request_id"])
	assert.Equal(t, "https://dapp.example", line["origin"])
	assert.Equal(t, "ch-1", line["channel_id"])
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}
