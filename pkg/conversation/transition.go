package conversation

import (
	"github.com/google/uuid"

	"github.com/harunnryd/avatarchat/pkg/errorsx"
	"github.com/harunnryd/avatarchat/pkg/intent"
	"github.com/harunnryd/avatarchat/pkg/metrics"
	"github.com/harunnryd/avatarchat/pkg/phase"
	"github.com/harunnryd/avatarchat/pkg/redact"
)

func (m *Machine) handle(ev Event) {
	switch e := ev.(type) {
	case StartRequested:
		m.onStartRequested()
	case EndRequested:
		m.onEndRequested()
	case PlaybackCompleted:
		m.onPlaybackCompleted(e)
	case SpeechRecognized:
		m.onSpeechRecognized(e)
	case SpeechFailed:
		m.onSpeechFailed(e)
	case SilenceTimedOut:
		m.onSilenceTimedOut(e)
	case settleElapsed:
		m.onSettleElapsed(e)
	case Paused, Stopped:
		m.suspend(holdHost, ev.Name())
	case Resumed:
		m.onResumed()
	case PauseToggled:
		m.onPauseToggled()
	default:
		m.logger.Debug("unknown_event_ignored", "event", ev.Name())
	}
}

// transitionTo enters next and runs its entry effects. Every transition
// cancels pending timers; entering Listening arms them again.
func (m *Machine) transitionTo(next phase.Phase, reason string) {
	prev := m.phase
	m.phase = next
	m.silence.cancel()
	m.settle.cancel()
	if !next.Is(phase.StageListening) {
		m.stopRecognizer()
	}
	if next.Is(phase.StageIdle) || next.Is(phase.StageGreeting) {
		m.silenceCount = 0
	}
	m.play(next)
	if next.Is(phase.StageListening) {
		m.armListening(m.cfg.SettleDelay)
	}
	m.publish()

	id := m.conversationID
	m.logger.Info("phase_changed",
		"from", prev.String(),
		"to", next.String(),
		"reason", reason,
		"silence_count", m.silenceCount,
		"conversation_id", id,
	)
	m.record(metrics.EventPhaseChanged, map[string]string{
		metrics.TagFrom:   prev.String(),
		metrics.TagTo:     next.String(),
		metrics.TagReason: reason,
	}, map[string]any{"silence_count": m.silenceCount})
	m.notify(PhaseChanged{From: prev, To: next, ConversationID: id, Reason: reason, At: m.clock.Now()})

	if next.Is(phase.StageIdle) {
		m.conversationID = ""
		m.publish()
	}
}

func (m *Machine) onStartRequested() {
	if !m.phase.Is(phase.StageIdle) {
		m.logger.Debug("start_ignored", "phase", m.phase.String())
		return
	}
	m.conversationID = uuid.NewString()
	m.failures = 0
	m.transitionTo(phase.Greeting, "start_requested")
}

func (m *Machine) onEndRequested() {
	if m.conversationID == "" {
		m.conversationID = uuid.NewString()
	}
	m.silenceCount = 0
	m.transitionTo(phase.Goodbye, "end_requested")
}

func (m *Machine) onPlaybackCompleted(e PlaybackCompleted) {
	if e.Generation != 0 && e.Generation != m.generation {
		m.dropStale(e, "superseded_playback")
		return
	}
	switch m.phase.Stage {
	case phase.StageGreeting, phase.StagePrompt:
		m.transitionTo(phase.Listening, "playback_completed")
	case phase.StageFallback:
		m.silenceCount = 0
		m.transitionTo(phase.Listening, "playback_completed")
	case phase.StageResponding:
		m.silenceCount = 0
		if m.phase.Response == intent.Goodbye {
			m.transitionTo(phase.Idle, "farewell_completed")
			return
		}
		m.transitionTo(phase.Listening, "playback_completed")
	case phase.StageGoodbye:
		m.silenceCount = 0
		m.transitionTo(phase.Idle, "farewell_completed")
	default:
		m.dropStale(e, "no_playback_expected")
	}
}

func (m *Machine) onSpeechRecognized(e SpeechRecognized) {
	if !m.phase.Is(phase.StageListening) {
		m.dropStale(e, "not_listening")
		return
	}
	if e.Session != 0 && e.Session != m.session {
		m.dropStale(e, "superseded_session")
		return
	}
	m.silence.cancel()
	m.stopRecognizer()
	kind := intent.Classify(e.Text)
	m.silenceCount = 0
	m.failures = 0

	m.logger.Info("text_recognized",
		"text", redact.Text(e.Text),
		"kind", kind.String(),
		"conversation_id", m.conversationID,
	)
	m.record(metrics.EventTextRecognized, map[string]string{metrics.TagKind: kind.String()}, map[string]any{"text": e.Text})
	m.notify(TextRecognized{Text: e.Text, Kind: kind, ConversationID: m.conversationID})
	m.transitionTo(phase.Responding(kind), "speech_recognized")
}

func (m *Machine) onSpeechFailed(e SpeechFailed) {
	if !m.phase.Is(phase.StageListening) {
		m.dropStale(e, "not_listening")
		return
	}
	if e.Session != 0 && e.Session != m.session {
		m.dropStale(e, "superseded_session")
		return
	}
	m.stopRecognizer()
	m.failures++
	reason := errorsx.Reason(e.Err)
	m.logger.Warn("speech_failed",
		"error", e.Err,
		"reason", reason,
		"failures", m.failures,
		"conversation_id", m.conversationID,
	)
	m.record(metrics.EventSpeechFailed, map[string]string{metrics.TagReason: string(reason)}, nil)
	m.transitionTo(phase.Fallback, "speech_failed")
}

func (m *Machine) onSilenceTimedOut(e SilenceTimedOut) {
	if !m.phase.Is(phase.StageListening) {
		m.dropStale(e, "not_listening")
		return
	}
	if e.Token != 0 && !m.silence.take(e.Token) {
		m.dropStale(e, "superseded_timer")
		return
	}
	m.silence.cancel()
	m.stopRecognizer()
	m.silenceCount++
	m.record(metrics.EventSilenceTimeout, nil, map[string]any{"silence_count": m.silenceCount})
	if m.silenceCount >= m.cfg.MaxSilencePrompts {
		m.transitionTo(phase.Goodbye, "silence_limit")
		return
	}
	m.transitionTo(phase.Prompt, "silence")
}

func (m *Machine) onSettleElapsed(e settleElapsed) {
	if !m.settle.take(e.token) {
		return
	}
	if !m.phase.Is(phase.StageListening) || m.hold != holdNone {
		return
	}
	m.startRecognizer()
}

// suspend freezes playback and listening. A user hold is never downgraded
// to a host hold.
func (m *Machine) suspend(h hold, reason string) {
	prev := m.hold
	if m.hold != holdUser {
		m.hold = h
	}
	m.silence.cancel()
	m.settle.cancel()
	m.stopRecognizer()
	if err := m.player.Pause(); err != nil {
		m.logger.Warn("player_pause_failed", "error", errorsx.WrapOp(err, errorsx.ReasonPlayerControl, "pause"))
	}
	if prev != m.hold {
		m.holdChanged(reason)
	}
}

func (m *Machine) onResumed() {
	switch m.hold {
	case holdUser:
		m.logger.Debug("resume_deferred_to_user", "phase", m.phase.String())
		return
	case holdNone:
		m.resumePlayer()
		return
	}
	m.hold = holdNone
	m.holdChanged("resumed")
	m.resumePlayer()
	if m.phase.Is(phase.StageListening) {
		m.armListening(m.cfg.ForegroundDelay)
	}
}

func (m *Machine) onPauseToggled() {
	if m.hold != holdUser {
		m.suspend(holdUser, "pause_toggled")
		return
	}
	m.hold = holdNone
	m.holdChanged("pause_toggled")
	m.resumePlayer()
	if m.phase.Is(phase.StageListening) {
		m.armListening(m.cfg.ResumeDelay)
	}
}

func (m *Machine) resumePlayer() {
	if err := m.player.Resume(); err != nil {
		m.logger.Warn("player_resume_failed", "error", errorsx.WrapOp(err, errorsx.ReasonPlayerControl, "resume"))
	}
}

func (m *Machine) holdChanged(reason string) {
	m.publish()
	held, byUser := m.hold != holdNone, m.hold == holdUser
	m.logger.Info("suspension_changed", "held", held, "by_user", byUser, "reason", reason, "phase", m.phase.String())
	m.record(metrics.EventSuspensionChanged, map[string]string{metrics.TagReason: reason}, map[string]any{"held": held, "by_user": byUser})
	m.notify(SuspensionChanged{Held: held, ByUser: byUser})
}

func (m *Machine) dropStale(ev Event, why string) {
	m.logger.Debug("stale_event_dropped", "event", ev.Name(), "why", why, "phase", m.phase.String())
	m.record(metrics.EventStaleEvent, map[string]string{metrics.TagEvent: ev.Name(), metrics.TagReason: why}, nil)
}
