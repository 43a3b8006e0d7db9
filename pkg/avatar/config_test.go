package avatar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/avatarchat/pkg/conversation"
	"github.com/harunnryd/avatarchat/pkg/errorsx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "avatarchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "environment: test\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "clip", cfg.Video.Provider)
	assert.Equal(t, "textinput", cfg.Speech.Provider)
	assert.Equal(t, "websocket", cfg.Transport.Provider)
	assert.Equal(t, 10000, cfg.Conversation.SilenceTimeoutMS)
	assert.Equal(t, 2, cfg.Conversation.MaxSilencePrompts)
	assert.True(t, cfg.Privacy.RedactPII)
	assert.True(t, cfg.Observability.Metrics)
	assert.Equal(t, 10*time.Second, cfg.Lifecycle.DrainTimeout())
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("AVATARCHAT_TEST_KEY", "secret-key")
	t.Setenv("AVATARCHAT_TEST_DIR", "/tmp/artifacts")
	path := writeConfig(t, `
speech:
  provider: deepgram
  fallbacks: [textinput]
  settings:
    api_key: ${AVATARCHAT_TEST_KEY}
    model: nova-2
  fallback_settings:
    mock:
      script: ["hello"]
observability:
  artifacts_dir: ${AVATARCHAT_TEST_DIR}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Speech.Settings["api_key"])
	assert.Equal(t, "/tmp/artifacts", cfg.Observability.ArtifactsDir)
	assert.Equal(t, []string{"textinput"}, cfg.Speech.Fallbacks)
	assert.Equal(t, "secret-key", cfg.Speech.SettingsFor("Deepgram")["api_key"])
	assert.NotNil(t, cfg.Speech.SettingsFor("mock"))
	assert.Nil(t, cfg.Speech.SettingsFor("textinput"))
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"log level":          "log_level: loud\n",
		"log format":         "log_format: xml\n",
		"negative timeout":   "conversation:\n  silence_timeout_ms: -1\n",
		"negative retention": "observability:\n  retention_days: -3\n",
		"duplicate fallback": "speech:\n  provider: textinput\n  fallbacks: [mock, textinput]\n",
		"empty provider":     "video:\n  provider: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
			assert.True(t, errorsx.HasReason(err, errorsx.ReasonConfig))
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonConfig))
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestMachineConfigConvertsMillis(t *testing.T) {
	conv := ConversationConfig{SettleDelayMS: 150, SilenceTimeoutMS: 4000, MaxSilencePrompts: 3}
	mc := conv.MachineConfig(nil)

	assert.Equal(t, 150*time.Millisecond, mc.SettleDelay)
	assert.Equal(t, 4*time.Second, mc.SilenceTimeout)
	assert.Equal(t, conversation.DefaultResumeDelay, mc.ResumeDelay)
	assert.Equal(t, conversation.DefaultForegroundDelay, mc.ForegroundDelay)
	assert.Equal(t, 3, mc.MaxSilencePrompts)
}
