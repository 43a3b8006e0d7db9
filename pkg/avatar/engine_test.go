package avatar

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/avatarchat/pkg/adapters/speech"
	"github.com/harunnryd/avatarchat/pkg/conversation"
	"github.com/harunnryd/avatarchat/pkg/intent"
	"github.com/harunnryd/avatarchat/pkg/phase"
	"github.com/harunnryd/avatarchat/pkg/providers/mock"
	"github.com/harunnryd/avatarchat/pkg/providers/textinput"
	"github.com/harunnryd/avatarchat/pkg/runner"
	"github.com/harunnryd/avatarchat/pkg/transports"
	mocktransport "github.com/harunnryd/avatarchat/pkg/transports/mock"
)

func engineConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := DefaultConfig()
	require.NoError(t, err)
	cfg.Conversation.SettleDelayMS = 10
	cfg.Conversation.ResumeDelayMS = 10
	cfg.Conversation.ForegroundDelayMS = 10
	cfg.Observability.ArtifactsDir = t.TempDir()
	cfg.Lifecycle.DrainTimeoutMS = 2000
	return cfg
}

type engineHarness struct {
	engine    *Engine
	player    *mock.Player
	rec       *textinput.Recognizer
	transport *mocktransport.Transport
	done      chan struct{}
	runErr    error
}

func startEngine(t *testing.T, cfg Config, banner *bytes.Buffer) *engineHarness {
	t.Helper()
	h := &engineHarness{
		player:    mock.NewPlayer(mock.PlayerConfig{ClipDuration: 10 * time.Millisecond}),
		rec:       textinput.New(nil),
		transport: mocktransport.New(),
		done:      make(chan struct{}),
	}
	opts := EngineOptions{
		Config:     cfg,
		Player:     h.player,
		Recognizer: h.rec,
		Transport:  h.transport,
	}
	if banner != nil {
		opts.BannerOut = banner
	}
	e, err := NewEngine(opts)
	require.NoError(t, err)
	h.engine = e

	go func() {
		h.runErr = e.Run(context.Background())
		close(h.done)
	}()
	require.Eventually(t, func() bool { return e.State() == runner.StateRunning }, 2*time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		_ = e.Stop()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
			t.Error("engine did not stop")
		}
	})
	return h
}

func (h *engineHarness) waitPhase(t *testing.T, want phase.Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return h.engine.Machine().Phase() == want }, 2*time.Second, 5*time.Millisecond,
		"phase %s never reached, last %s", want, h.engine.Machine().Phase())
}

func TestEngineRoutesCommandsToMachine(t *testing.T) {
	h := startEngine(t, engineConfig(t), nil)

	require.True(t, h.transport.Send(transports.Command{Type: transports.CommandStart}))
	require.Eventually(t, h.rec.Listening, 2*time.Second, 5*time.Millisecond)

	require.True(t, h.transport.Send(transports.Command{Type: transports.CommandSay, Text: "hello avatar"}))
	require.Eventually(t, func() bool {
		for _, n := range h.transport.Received() {
			if tr, ok := n.(conversation.TextRecognized); ok && tr.Kind == intent.Greeting {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, h.transport.Send(transports.Command{Type: transports.CommandEnd}))
	h.waitPhase(t, phase.Idle)
}

func TestEngineTogglePauseHoldsConversation(t *testing.T) {
	h := startEngine(t, engineConfig(t), nil)

	require.True(t, h.engine.HandleCommand(transports.Command{Type: transports.CommandStart}))
	h.waitPhase(t, phase.Listening)

	require.True(t, h.engine.HandleCommand(transports.Command{Type: transports.CommandTogglePause}))
	require.Eventually(t, func() bool {
		held, byUser := h.engine.Machine().Held()
		return held && byUser
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, h.rec.Listening())

	require.True(t, h.engine.HandleCommand(transports.Command{Type: transports.CommandTogglePause}))
	require.Eventually(t, h.rec.Listening, 2*time.Second, 5*time.Millisecond)
}

func TestEngineSayWithoutListeningIsIgnored(t *testing.T) {
	h := startEngine(t, engineConfig(t), nil)
	assert.False(t, h.engine.HandleCommand(transports.Command{Type: transports.CommandSay, Text: "hello"}))
	assert.False(t, h.engine.HandleCommand(transports.Command{Type: transports.CommandType("dance")}))
}

func TestEngineStopDrainsAndFlushes(t *testing.T) {
	cfg := engineConfig(t)
	h := startEngine(t, cfg, nil)

	require.True(t, h.engine.HandleCommand(transports.Command{Type: transports.CommandStart}))
	h.waitPhase(t, phase.Listening)
	id := h.engine.Machine().ConversationID()
	require.NotEmpty(t, id)

	require.NoError(t, h.engine.Stop())
	select {
	case <-h.done:
		require.NoError(t, h.runErr)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop")
	}

	assert.Equal(t, runner.StateStopped, h.engine.State())
	assert.True(t, h.player.Released())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.engine.Metrics().Commands.WithLabelValues("start", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.engine.Metrics().Transitions.WithLabelValues("idle", "greeting")))

	summaries, err := filepath.Glob(filepath.Join(cfg.Observability.ArtifactsDir, "*.summary.json"))
	require.NoError(t, err)
	assert.Len(t, summaries, 1)

	_, ok := <-h.transport.Commands()
	assert.False(t, ok)
}

func TestEngineWithoutMetricsPrintsBanner(t *testing.T) {
	cfg := engineConfig(t)
	cfg.Observability.Metrics = false
	cfg.Lifecycle.Banner = true
	var banner bytes.Buffer
	h := startEngine(t, cfg, &banner)

	assert.Nil(t, h.engine.Metrics())
	assert.Nil(t, h.engine.Gatherer())
	assert.NotEmpty(t, banner.String())
	assert.Equal(t, "textinput", h.engine.SpeechProvider())
}

func TestNewEngineContinuesWithoutRecognizer(t *testing.T) {
	cfg := engineConfig(t)
	cfg.Speech = SpeechConfig{Provider: "primary"}
	reg := testRegistry("primary")

	e, err := NewEngine(EngineOptions{
		Config:    cfg,
		Providers: reg,
		Player:    mock.NewPlayer(mock.PlayerConfig{}),
		Transport: mocktransport.New(),
	})
	require.NoError(t, err)
	assert.Nil(t, e.Recognizer())
	assert.Empty(t, e.SpeechProvider())

	perm := make(chan error, 1)
	e.Machine().Subscribe(conversation.ListenerFunc(func(n conversation.Notification) {
		if pr, ok := n.(conversation.PermissionRequired); ok {
			select {
			case perm <- pr.Err:
			default:
			}
		}
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case err := <-perm:
		assert.True(t, errors.Is(err, speech.ErrUnavailable))
	case <-time.After(2 * time.Second):
		t.Fatal("no permission notification")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestNewEngineFailsOnUnknownPlayer(t *testing.T) {
	cfg := engineConfig(t)
	cfg.Video.Provider = "hologram"
	_, err := NewEngine(EngineOptions{Config: cfg, Providers: testRegistry()})
	require.Error(t, err)
}
