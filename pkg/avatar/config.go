package avatar

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harunnryd/avatarchat/pkg/configutil"
	"github.com/harunnryd/avatarchat/pkg/conversation"
	"github.com/harunnryd/avatarchat/pkg/errorsx"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
	Video         VendorConfig        `mapstructure:"video"`
	Speech        SpeechConfig        `mapstructure:"speech"`
	Transport     VendorConfig        `mapstructure:"transport"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Lifecycle     LifecycleConfig     `mapstructure:"lifecycle"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

// SpeechConfig names the primary recognizer and the ones tried after it.
// FallbackSettings holds per-provider settings for the fallbacks.
type SpeechConfig struct {
	Provider         string                    `mapstructure:"provider"`
	Fallbacks        []string                  `mapstructure:"fallbacks"`
	Settings         map[string]any            `mapstructure:"settings"`
	FallbackSettings map[string]map[string]any `mapstructure:"fallback_settings"`
}

// SettingsFor returns the settings map of a speech provider.
func (s SpeechConfig) SettingsFor(provider string) map[string]any {
	name := normalizeName(provider)
	if name == normalizeName(s.Provider) {
		return s.Settings
	}
	for k, v := range s.FallbackSettings {
		if normalizeName(k) == name {
			return v
		}
	}
	return nil
}

type ConversationConfig struct {
	SettleDelayMS     int `mapstructure:"settle_delay_ms"`
	ResumeDelayMS     int `mapstructure:"resume_delay_ms"`
	ForegroundDelayMS int `mapstructure:"foreground_delay_ms"`
	SilenceTimeoutMS  int `mapstructure:"silence_timeout_ms"`
	MaxSilencePrompts int `mapstructure:"max_silence_prompts"`
	MaxSpeechFailures int `mapstructure:"max_speech_failures"`
	QueueSize         int `mapstructure:"queue_size"`
}

// MachineConfig converts the millisecond settings into a machine config.
func (c ConversationConfig) MachineConfig(clock conversation.Clock) conversation.Config {
	return conversation.Config{
		SettleDelay:       configutil.Millis(c.SettleDelayMS, conversation.DefaultSettleDelay),
		ResumeDelay:       configutil.Millis(c.ResumeDelayMS, conversation.DefaultResumeDelay),
		ForegroundDelay:   configutil.Millis(c.ForegroundDelayMS, conversation.DefaultForegroundDelay),
		SilenceTimeout:    configutil.Millis(c.SilenceTimeoutMS, conversation.DefaultSilenceTimeout),
		MaxSilencePrompts: c.MaxSilencePrompts,
		MaxSpeechFailures: c.MaxSpeechFailures,
		QueueSize:         c.QueueSize,
		Clock:             clock,
	}
}

type ObservabilityConfig struct {
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	RetentionDays int    `mapstructure:"retention_days"`
	Metrics       bool   `mapstructure:"metrics"`
	EventBuffer   int    `mapstructure:"event_buffer"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type LifecycleConfig struct {
	DrainTimeoutMS int  `mapstructure:"drain_timeout_ms"`
	Banner         bool `mapstructure:"banner"`
}

// DrainTimeout is the time allowed for shutdown before giving up.
func (c LifecycleConfig) DrainTimeout() time.Duration {
	return configutil.Millis(c.DrainTimeoutMS, 10*time.Second)
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("conversation.settle_delay_ms", 300)
	v.SetDefault("conversation.resume_delay_ms", 300)
	v.SetDefault("conversation.foreground_delay_ms", 500)
	v.SetDefault("conversation.silence_timeout_ms", 10000)
	v.SetDefault("conversation.max_silence_prompts", 2)
	v.SetDefault("conversation.max_speech_failures", 3)
	v.SetDefault("conversation.queue_size", 64)
	v.SetDefault("video.provider", "clip")
	v.SetDefault("speech.provider", "textinput")
	v.SetDefault("speech.fallbacks", []string{})
	v.SetDefault("transport.provider", "websocket")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.metrics", true)
	v.SetDefault("observability.event_buffer", 1024)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("lifecycle.drain_timeout_ms", 10000)
	v.SetDefault("lifecycle.banner", true)
}

// DefaultConfig is the configuration used when no file is given.
func DefaultConfig() (Config, error) {
	v := viper.New()
	SetDefaults(v)
	return decode(v)
}

// LoadConfig reads path, applies defaults, expands ${ENV} references and
// validates the result.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	SetDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, errorsx.WrapOp(fmt.Errorf("read config: %w", err), errorsx.ReasonConfig, "config.load")
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.WrapOp(fmt.Errorf("unmarshal: %w", err), errorsx.ReasonConfig, "config.load")
	}
	expandEnvStrings(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.WrapOp(fmt.Errorf("validate config: %w", err), errorsx.ReasonConfig, "config.load")
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	for path, v := range map[string]string{
		"video.provider":     c.Video.Provider,
		"speech.provider":    c.Speech.Provider,
		"transport.provider": c.Transport.Provider,
	} {
		if err := configutil.RequireString(v, path); err != nil {
			return err
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("log_level must be one of [debug, info, warn, error], got %s", c.LogLevel)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "text", "json", "":
	default:
		return fmt.Errorf("log_format must be one of [text, json], got %s", c.LogFormat)
	}
	conv := c.Conversation
	for name, v := range map[string]int{
		"conversation.settle_delay_ms":     conv.SettleDelayMS,
		"conversation.resume_delay_ms":     conv.ResumeDelayMS,
		"conversation.foreground_delay_ms": conv.ForegroundDelayMS,
		"conversation.silence_timeout_ms":  conv.SilenceTimeoutMS,
		"conversation.max_silence_prompts": conv.MaxSilencePrompts,
		"conversation.max_speech_failures": conv.MaxSpeechFailures,
		"conversation.queue_size":          conv.QueueSize,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	if c.Observability.RetentionDays < 0 {
		return fmt.Errorf("observability.retention_days must not be negative, got %d", c.Observability.RetentionDays)
	}
	seen := map[string]bool{normalizeName(c.Speech.Provider): true}
	for _, fb := range c.Speech.Fallbacks {
		name := normalizeName(fb)
		if name == "" {
			return fmt.Errorf("speech.fallbacks must not contain empty names")
		}
		if seen[name] {
			return fmt.Errorf("speech.fallbacks lists %s twice", fb)
		}
		seen[name] = true
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Video.Settings = configutil.ExpandEnv(cfg.Video.Settings)
	cfg.Speech.Settings = configutil.ExpandEnv(cfg.Speech.Settings)
	for k, v := range cfg.Speech.FallbackSettings {
		cfg.Speech.FallbackSettings[k] = configutil.ExpandEnv(v)
	}
	cfg.Transport.Settings = configutil.ExpandEnv(cfg.Transport.Settings)
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
