package configutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/avatarchat/pkg/errorsx"
)

func TestValidateSettings(t *testing.T) {
	schema := Schema{Required: []string{"api_key"}, Optional: []string{"model"}}

	assert.NoError(t, ValidateSettings(map[string]any{"API-Key": "k", "model": "nova-2"}, schema))

	err := ValidateSettings(map[string]any{"api_key": "  ", "colour": "red"}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing: api_key")
	assert.Contains(t, err.Error(), "unknown: colour")
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonConfig))

	schema.AllowUnknown = true
	assert.NoError(t, ValidateSettings(map[string]any{"api_key": "k", "colour": "red"}, schema))
}

func TestValidateSettingsChecksValues(t *testing.T) {
	schema := Schema{
		Section:  "speech.settings",
		Optional: []string{"encoding", "utterance_end_ms", "sample_rate"},
		OneOf:    map[string][]string{"encoding": {"linear16", "mulaw"}},
		Ranges: map[string]Range{
			"utterance_end_ms": {Min: 0, Max: 5000},
			"sample_rate":      {Min: 8000, Max: 48000},
		},
	}

	assert.NoError(t, ValidateSettings(map[string]any{
		"encoding":         "MULAW",
		"utterance_end_ms": 5000,
		"sample_rate":      "16000",
	}, schema))

	err := ValidateSettings(map[string]any{
		"encoding":         "opus",
		"utterance_end_ms": 7000.0,
		"sample_rate":      "fast",
	}, schema)
	require.Error(t, err)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonConfig))
	var serr *SettingsError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "speech.settings", serr.Section)
	assert.Empty(t, serr.Missing)
	require.Len(t, serr.Invalid, 3)
	assert.Contains(t, err.Error(), "speech.settings: invalid:")
	assert.Contains(t, err.Error(), "encoding must be one of [linear16 mulaw], got opus")
	assert.Contains(t, err.Error(), "utterance_end_ms must be between 0 and 5000, got 7000")
	assert.Contains(t, err.Error(), `sample_rate must be a number, got "fast"`)
}

func TestDecodeSettings(t *testing.T) {
	var out struct {
		APIKey     string        `mapstructure:"api_key"`
		SampleRate int           `mapstructure:"sample_rate"`
		Backoff    time.Duration `mapstructure:"backoff"`
		Interim    *bool         `mapstructure:"interim"`
	}
	err := DecodeSettings(map[string]any{
		"ApiKey":      "k",
		"sample-rate": "16000",
		"backoff":     "250ms",
		"interim":     "true",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "k", out.APIKey)
	assert.Equal(t, 16000, out.SampleRate)
	assert.Equal(t, 250*time.Millisecond, out.Backoff)
	assert.True(t, BoolValue(out.Interim, false))
	assert.Equal(t, 7, IntValue(nil, 7))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("AVATAR_TEST_KEY", "secret")
	settings := ExpandEnv(map[string]any{
		"api_key": "${AVATAR_TEST_KEY}",
		"nested":  map[string]any{"list": []any{"$AVATAR_TEST_KEY", 3}},
	})
	assert.Equal(t, "secret", settings["api_key"])
	assert.Equal(t, []any{"secret", 3}, settings["nested"].(map[string]any)["list"])
	assert.Nil(t, ExpandEnv(nil))
}

func TestMillisAndRequireString(t *testing.T) {
	assert.Equal(t, 300*time.Millisecond, Millis(300, time.Second))
	assert.Equal(t, time.Second, Millis(0, time.Second))
	assert.Error(t, RequireString(" ", "speech.provider"))
	assert.NoError(t, RequireString("mock", "speech.provider"))
}
