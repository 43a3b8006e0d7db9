package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestComponentLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewComponentLogger(NewLogger(&buf, "info", "json"), "conversation")
	logger.Info("phase_changed", "to", "greeting")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "conversation", entry["component"])
	assert.Equal(t, "phase_changed", entry["msg"])
	assert.Equal(t, "greeting", entry["to"])
}

func TestDebugFilteredAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "text")
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}
