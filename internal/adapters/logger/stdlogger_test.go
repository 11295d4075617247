package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelAndFormat(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"nonsense", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}

	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat(""))
	assert.Equal(t, FormatText, ParseFormat("logfmt"))
}

func TestStdLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInfo, FormatText, &buf)
	ctx := context.Background()

	l.Debug(ctx, "Hidden")
	l.Info(ctx, "Tick executed", map[string]interface{}{"symbol": "BTCUSDT", "algo": "accumulator"})
	l.Error(ctx, errors.New("boom"), "Failed to sync")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[INFO] Tick executed | algo=accumulator symbol=BTCUSDT")
	assert.Contains(t, lines[1], "[ERROR] Failed to sync | error: boom")
}

func TestStdLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelDebug, FormatJSON, &buf)
	l.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx := context.Background()

	l.Warn(ctx, "Spot balance short", map[string]interface{}{"asset": "BTC"}, map[string]interface{}{"missing": "0.1"})
	l.Error(ctx, errors.New("boom"), "Failed to place order")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "WARN", first.Level)
	assert.Equal(t, "Spot balance short", first.Message)
	assert.Equal(t, map[string]interface{}{"asset": "BTC", "missing": "0.1"}, first.Fields)
	assert.True(t, l.now().Equal(first.Time))

	var second entry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "boom", second.Error)
	assert.Empty(t, second.Fields)
}
