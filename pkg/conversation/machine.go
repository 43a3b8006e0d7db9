// Package conversation drives the avatar's conversation: it owns the phase,
// reacts to playback, speech and host lifecycle events, and tells the video
// player and speech recognizer what to do next.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/avatarchat/pkg/adapters/speech"
	"github.com/harunnryd/avatarchat/pkg/adapters/video"
	"github.com/harunnryd/avatarchat/pkg/errorsx"
	"github.com/harunnryd/avatarchat/pkg/logging"
	"github.com/harunnryd/avatarchat/pkg/metrics"
	"github.com/harunnryd/avatarchat/pkg/phase"
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("conversation: machine already running")

type hold int

const (
	holdNone hold = iota
	holdHost
	holdUser
)

type recognizerState int

const (
	recognizerPending recognizerState = iota
	recognizerReady
	recognizerUnavailable
)

type snapshot struct {
	phase        phase.Phase
	silenceCount int
	held         bool
	heldByUser   bool
	id           string
}

// Machine is the conversation state machine. All state changes happen on
// the goroutine running Run; the exported methods only enqueue events or
// read a snapshot, so they are safe for concurrent use.
type Machine struct {
	cfg    Config
	clock  Clock
	player video.Player
	rec    speech.Recognizer
	logger *slog.Logger

	events      chan Event
	quit        chan struct{}
	done        chan struct{}
	quitOnce    sync.Once
	disposeOnce sync.Once
	running     atomic.Bool

	// loop-owned
	ctx               context.Context
	phase             phase.Phase
	hold              hold
	silenceCount      int
	failures          int
	conversationID    string
	generation        uint64
	session           uint64
	sessionSeq        uint64
	recState          recognizerState
	permissionEmitted bool
	silence           slot
	settle            slot
	backlog           []Event

	mu        sync.RWMutex
	snap      snapshot
	listeners []Listener
	observer  metrics.Observer
}

// New creates a machine in Idle. rec may be nil, in which case the machine
// behaves as if speech recognition were unavailable.
func New(player video.Player, rec speech.Recognizer, cfg Config, logger *slog.Logger) *Machine {
	cfg = cfg.withDefaults()
	if player == nil {
		player = nopPlayer{}
	}
	return &Machine{
		cfg:      cfg,
		clock:    cfg.Clock,
		player:   player,
		rec:      rec,
		logger:   logging.NewComponentLogger(logger, "conversation"),
		events:   make(chan Event, cfg.QueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		phase:    phase.Idle,
		snap:     snapshot{phase: phase.Idle},
		observer: metrics.NoopObserver{},
	}
}

// Run plays the idle clip, prepares the recognizer and processes events
// until ctx is cancelled or Dispose is called. Resources are released
// before Run returns.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)
	m.ctx = ctx
	m.boot()
	for {
		select {
		case <-ctx.Done():
			m.teardown()
			return nil
		case <-m.quit:
			m.teardown()
			return nil
		case ev := <-m.events:
			m.process(ev)
		}
	}
}

func (m *Machine) boot() {
	m.play(m.phase)
	m.initRecognizer()
	m.drainBacklog()
}

// Dispatch enqueues ev. It returns false once the machine is disposed.
func (m *Machine) Dispatch(ev Event) bool {
	select {
	case <-m.quit:
		return false
	default:
	}
	select {
	case m.events <- ev:
		return true
	case <-m.quit:
		return false
	}
}

// Begin starts a conversation if the machine is idle.
func (m *Machine) Begin() bool { return m.Dispatch(StartRequested{}) }

// End finishes the conversation from any phase.
func (m *Machine) End() bool { return m.Dispatch(EndRequested{}) }

// TogglePause flips the user's manual pause.
func (m *Machine) TogglePause() bool { return m.Dispatch(PauseToggled{}) }

// Start, Pause, Resume and Stop mirror the host's lifecycle callbacks.
func (m *Machine) Start() bool { return m.Dispatch(Resumed{}) }

func (m *Machine) Pause() bool { return m.Dispatch(Paused{}) }

func (m *Machine) Resume() bool { return m.Dispatch(Resumed{}) }

func (m *Machine) Stop() bool { return m.Dispatch(Stopped{}) }

// Dispose stops the loop and releases the player and recognizer. Pending
// timers are cancelled and later events are dropped. Safe to call more
// than once.
func (m *Machine) Dispose() {
	m.quitOnce.Do(func() { close(m.quit) })
	if m.running.Load() {
		<-m.done
		return
	}
	m.teardown()
}

// Done is closed when Run has returned.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Phase returns the current phase.
func (m *Machine) Phase() phase.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.phase
}

// SilenceCount returns the number of consecutive silence timeouts.
func (m *Machine) SilenceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.silenceCount
}

// Held reports whether playback and listening are suspended, and whether
// the user asked for it.
func (m *Machine) Held() (held, byUser bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.held, m.snap.heldByUser
}

// ConversationID returns the id of the running conversation, if any.
func (m *Machine) ConversationID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.id
}

// Subscribe registers l for notifications.
func (m *Machine) Subscribe(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// SetObserver sets the metrics observer. nil restores the no-op observer.
func (m *Machine) SetObserver(o metrics.Observer) {
	if o == nil {
		o = metrics.NoopObserver{}
	}
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

func (m *Machine) process(ev Event) {
	m.handle(ev)
	m.drainBacklog()
}

func (m *Machine) drainBacklog() {
	for len(m.backlog) > 0 {
		next := m.backlog[0]
		m.backlog = m.backlog[1:]
		m.handle(next)
	}
}

// raise queues an event produced while handling another one; it is handled
// before the next queued event.
func (m *Machine) raise(ev Event) {
	m.backlog = append(m.backlog, ev)
}

func (m *Machine) teardown() {
	m.disposeOnce.Do(func() {
		m.silence.cancel()
		m.settle.cancel()
		m.stopRecognizer()
		m.backlog = nil
		if err := m.player.Release(); err != nil {
			m.logger.Warn("player_release_failed", "error", err)
		}
		if m.rec != nil {
			if err := m.rec.Destroy(); err != nil {
				m.logger.Warn("recognizer_destroy_failed", "error", err)
			}
		}
		m.logger.Info("conversation_disposed", "phase", m.phase.String())
	})
}

func (m *Machine) publish() {
	m.mu.Lock()
	m.snap = snapshot{
		phase:        m.phase,
		silenceCount: m.silenceCount,
		held:         m.hold != holdNone,
		heldByUser:   m.hold == holdUser,
		id:           m.conversationID,
	}
	m.mu.Unlock()
}

func (m *Machine) notify(n Notification) {
	m.mu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()
	for _, l := range listeners {
		l.OnNotification(n)
	}
}

func (m *Machine) record(name string, tags map[string]string, fields map[string]any) {
	m.mu.RLock()
	obs := m.observer
	m.mu.RUnlock()
	if tags == nil {
		tags = map[string]string{}
	}
	if m.conversationID != "" {
		tags[metrics.TagConversationID] = m.conversationID
	}
	tags[metrics.TagComponent] = "conversation"
	obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   m.clock.Now(),
		Value:  1,
		Tags:   tags,
		Fields: fields,
	})
}

// play issues the phase's directive. A failed non-looping play is treated
// as finished so the conversation keeps moving.
func (m *Machine) play(p phase.Phase) {
	d := phase.DirectiveFor(p)
	m.generation++
	gen := m.generation
	var onCompleted func()
	if !d.Loop {
		onCompleted = func() { m.Dispatch(PlaybackCompleted{Generation: gen}) }
	}
	if err := m.player.Play(d.Clip, d.Loop, d.FollowUp, onCompleted); err != nil {
		err = errorsx.WrapOp(err, errorsx.ReasonPlayerPlay, "play")
		m.logger.Warn("playback_failed",
			"clip", d.Clip,
			"error", err,
			"reason", errorsx.Reason(err),
		)
		m.record(metrics.EventPlaybackFailed, map[string]string{metrics.TagReason: string(errorsx.Reason(err))}, map[string]any{"clip": d.Clip})
		if !d.Loop {
			m.raise(PlaybackCompleted{Generation: gen})
		}
		return
	}
	// Players start unpaused; a held machine keeps the new clip frozen.
	if m.hold != holdNone {
		if err := m.player.Pause(); err != nil {
			m.logger.Warn("player_pause_failed", "clip", d.Clip, "error", errorsx.WrapOp(err, errorsx.ReasonPlayerControl, "pause"))
		}
	}
}

// initRecognizer prepares the recognizer once. It reports whether a session
// can be started.
func (m *Machine) initRecognizer() bool {
	switch m.recState {
	case recognizerReady:
		return true
	case recognizerUnavailable:
		return false
	}
	if m.rec == nil {
		m.markUnavailable(speech.ErrUnavailable)
		return false
	}
	if err := m.rec.Initialize(m.ctx); err != nil {
		if speech.IsUnavailable(err) {
			m.markUnavailable(err)
			return false
		}
		err = errorsx.WrapOp(err, errorsx.ReasonRecognizerInit, "initialize")
		m.logger.Warn("recognizer_init_failed", "recognizer", m.rec.Name(), "error", err)
		return false
	}
	m.recState = recognizerReady
	return true
}

func (m *Machine) markUnavailable(err error) {
	m.recState = recognizerUnavailable
	m.emitPermissionRequired(errorsx.Wrap(err, errorsx.ReasonRecognizerUnavailable))
}

func (m *Machine) emitPermissionRequired(err error) {
	if m.permissionEmitted {
		return
	}
	m.permissionEmitted = true
	m.logger.Warn("recognizer_unavailable", "error", err)
	m.record(metrics.EventRecognizerUnavailable, map[string]string{metrics.TagReason: string(errorsx.Reason(err))}, nil)
	m.notify(PermissionRequired{Err: err})
}

// startRecognizer opens a fresh session with callbacks tagged by its id.
// When listening is impossible the silence timer alone drives the
// conversation.
func (m *Machine) startRecognizer() {
	m.stopRecognizer()
	if m.failures >= m.cfg.MaxSpeechFailures {
		m.emitPermissionRequired(errorsx.Wrap(errors.New("too many consecutive speech failures"), errorsx.ReasonRecognizerUnavailable))
		return
	}
	if !m.initRecognizer() {
		if m.recState != recognizerUnavailable {
			m.raise(SpeechFailed{Err: errorsx.Wrap(errors.New("recognizer not initialized"), errorsx.ReasonRecognizerInit)})
		}
		return
	}
	m.sessionSeq++
	s := m.sessionSeq
	m.rec.SetCallbacks(
		func(text string) { m.Dispatch(SpeechRecognized{Text: text, Session: s}) },
		func(err error) { m.Dispatch(SpeechFailed{Err: err, Session: s}) },
	)
	if err := m.rec.StartListening(m.ctx); err != nil {
		m.raise(SpeechFailed{Err: errorsx.WrapOp(err, errorsx.ReasonRecognizerStart, "start_listening")})
		return
	}
	m.session = s
	m.logger.Debug("recognizer_started", "session", s)
	m.record(metrics.EventRecognizerStarted, nil, map[string]any{"session": s})
}

// stopRecognizer cancels the live session, if any, suppressing its
// callbacks.
func (m *Machine) stopRecognizer() {
	if m.session == 0 {
		return
	}
	m.session = 0
	if err := m.rec.Cancel(); err != nil {
		m.logger.Warn("recognizer_cancel_failed",
			"error", errorsx.WrapOp(err, errorsx.ReasonRecognizerStop, "cancel"),
		)
	}
}

// armListening schedules the silence timer and the delayed recognizer start.
func (m *Machine) armListening(settle time.Duration) {
	if m.hold != holdNone {
		return
	}
	m.silence.schedule(m.clock, m.cfg.SilenceTimeout, func(tok uint64) {
		m.Dispatch(SilenceTimedOut{Token: tok})
	})
	m.settle.schedule(m.clock, settle, func(tok uint64) {
		m.Dispatch(settleElapsed{token: tok})
	})
}

type nopPlayer struct{}

func (nopPlayer) Name() string                            { return "nop" }
func (nopPlayer) Play(string, bool, string, func()) error { return nil }
func (nopPlayer) Pause() error                            { return nil }
func (nopPlayer) Resume() error                           { return nil }
func (nopPlayer) Release() error                          { return nil }
