package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harunnryd/avatarchat/pkg/adapters/speech"
	"github.com/harunnryd/avatarchat/pkg/adapters/video"
	"github.com/harunnryd/avatarchat/pkg/avatar"
	"github.com/harunnryd/avatarchat/pkg/configutil"
	"github.com/harunnryd/avatarchat/pkg/providers/clipplayer"
	"github.com/harunnryd/avatarchat/pkg/providers/deepgram"
	"github.com/harunnryd/avatarchat/pkg/providers/mock"
	"github.com/harunnryd/avatarchat/pkg/providers/textinput"
	"github.com/harunnryd/avatarchat/pkg/transports"
	"github.com/harunnryd/avatarchat/pkg/transports/ws"
)

// maxClipMS caps configured clip lengths at ten minutes.
const maxClipMS = 10 * 60 * 1000

type clipSettings struct {
	DefaultDurationMS int            `mapstructure:"default_duration_ms"`
	Clips             map[string]int `mapstructure:"clips"`
}

type mockVideoSettings struct {
	ClipDurationMS int `mapstructure:"clip_duration_ms"`
}

type deepgramSettings struct {
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	Language          string `mapstructure:"language"`
	Encoding          string `mapstructure:"encoding"`
	SampleRate        int    `mapstructure:"sample_rate"`
	UtteranceEndMS    *int   `mapstructure:"utterance_end_ms"`
	ChunkSize         int    `mapstructure:"chunk_size"`
	AudioPath         string `mapstructure:"audio_path"`
	MaxRetries        *int   `mapstructure:"max_retries"`
	RetryBackoffMS    int    `mapstructure:"retry_backoff_ms"`
	BreakerThreshold  *int   `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int    `mapstructure:"breaker_cooldown_ms"`
}

type mockSpeechSettings struct {
	Script          []string `mapstructure:"script"`
	DelayMS         int      `mapstructure:"delay_ms"`
	InitUnavailable bool     `mapstructure:"init_unavailable"`
}

func registerProviders(reg *avatar.ProviderRegistry) {
	reg.RegisterPlayer("clip", func(cfg avatar.Config, logger *slog.Logger) (video.Player, error) {
		if err := configutil.ValidateSettings(cfg.Video.Settings, configutil.Schema{
			Section:  "video.settings",
			Optional: []string{"default_duration_ms", "clips"},
			Ranges:   map[string]configutil.Range{"default_duration_ms": {Min: 1, Max: maxClipMS}},
		}); err != nil {
			return nil, err
		}
		var settings clipSettings
		if err := configutil.DecodeSettings(cfg.Video.Settings, &settings); err != nil {
			return nil, err
		}
		clips := make(map[string]time.Duration, len(settings.Clips))
		for name, ms := range settings.Clips {
			if ms <= 0 || ms > maxClipMS {
				return nil, fmt.Errorf("video.settings.clips.%s must be between 1 and %d, got %d", name, maxClipMS, ms)
			}
			clips[name] = time.Duration(ms) * time.Millisecond
		}
		return clipplayer.New(clipplayer.Config{
			Clips:           clips,
			DefaultDuration: configutil.Millis(settings.DefaultDurationMS, clipplayer.DefaultDuration),
		}, logger), nil
	})
	reg.RegisterPlayer("mock", func(cfg avatar.Config, logger *slog.Logger) (video.Player, error) {
		var settings mockVideoSettings
		if err := configutil.DecodeSettings(cfg.Video.Settings, &settings); err != nil {
			return nil, err
		}
		return mock.NewPlayer(mock.PlayerConfig{
			ClipDuration: configutil.Millis(settings.ClipDurationMS, clipplayer.DefaultDuration),
		}), nil
	})

	reg.RegisterRecognizer("deepgram", func(cfg avatar.Config, raw map[string]any, logger *slog.Logger) (speech.Recognizer, error) {
		if err := configutil.ValidateSettings(raw, configutil.Schema{
			Section:  "speech.settings",
			Required: []string{"api_key", "audio_path"},
			Optional: []string{"model", "language", "encoding", "sample_rate", "utterance_end_ms", "chunk_size",
				"max_retries", "retry_backoff_ms", "breaker_threshold", "breaker_cooldown_ms"},
			OneOf: map[string][]string{"encoding": {"linear16", "mulaw"}},
			Ranges: map[string]configutil.Range{
				"sample_rate":       {Min: 8000, Max: 48000},
				"utterance_end_ms":  {Min: 0, Max: 5000},
				"chunk_size":        {Min: 1, Max: 1 << 20},
				"max_retries":       {Min: 0, Max: 10},
				"breaker_threshold": {Min: 0, Max: 100},
			},
		}); err != nil {
			return nil, err
		}
		var settings deepgramSettings
		if err := configutil.DecodeSettings(raw, &settings); err != nil {
			return nil, err
		}
		utteranceEnd := configutil.IntValue(settings.UtteranceEndMS, 1000)
		audio, err := openAudio(settings.AudioPath)
		if err != nil {
			return nil, err
		}
		return deepgram.New(deepgram.Config{
			APIKey:           settings.APIKey,
			Model:            settings.Model,
			Language:         settings.Language,
			Encoding:         strings.ToLower(strings.TrimSpace(settings.Encoding)),
			SampleRate:       settings.SampleRate,
			UtteranceEndMS:   utteranceEnd,
			ChunkSize:        settings.ChunkSize,
			MaxRetries:       configutil.IntValue(settings.MaxRetries, 2),
			RetryBackoff:     configutil.Millis(settings.RetryBackoffMS, 250*time.Millisecond),
			BreakerThreshold: configutil.IntValue(settings.BreakerThreshold, 3),
			BreakerCooldown:  configutil.Millis(settings.BreakerCooldownMS, 15*time.Second),
		}, audio, logger), nil
	})
	reg.RegisterRecognizer("textinput", func(cfg avatar.Config, raw map[string]any, logger *slog.Logger) (speech.Recognizer, error) {
		return textinput.New(logger), nil
	})
	reg.RegisterRecognizer("mock", func(cfg avatar.Config, raw map[string]any, logger *slog.Logger) (speech.Recognizer, error) {
		var settings mockSpeechSettings
		if err := configutil.DecodeSettings(raw, &settings); err != nil {
			return nil, err
		}
		rc := mock.RecognizerConfig{
			Script: settings.Script,
			Delay:  configutil.Millis(settings.DelayMS, 500*time.Millisecond),
		}
		if settings.InitUnavailable {
			rc.InitErr = speech.ErrUnavailable
		}
		return mock.NewRecognizer(rc), nil
	})

	reg.RegisterTransport("websocket", func(cfg avatar.Config, gatherer prometheus.Gatherer, logger *slog.Logger) (transports.Transport, error) {
		if err := configutil.ValidateSettings(cfg.Transport.Settings, configutil.Schema{
			Section: "transport.settings",
			Optional: []string{"server_addr", "ws_path", "health_path", "metrics_path", "allow_any_origin",
				"allowed_origins", "send_buffer", "command_buffer"},
			Ranges: map[string]configutil.Range{
				"send_buffer":    {Min: 1, Max: 4096},
				"command_buffer": {Min: 1, Max: 4096},
			},
		}); err != nil {
			return nil, err
		}
		var settings ws.Config
		if err := configutil.DecodeSettings(cfg.Transport.Settings, &settings); err != nil {
			return nil, err
		}
		return ws.New(settings, gatherer, logger), nil
	})
}

// openAudio opens the raw capture stream; "-" reads stdin.
func openAudio(path string) (io.Reader, error) {
	path = strings.TrimSpace(path)
	if path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("speech.settings.audio_path: %w", err)
	}
	return f, nil
}
