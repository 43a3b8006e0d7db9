package metrics

import "time"

// Event names recorded by the conversation machine.
const (
	EventPhaseChanged          = "phase_changed"
	EventTextRecognized        = "text_recognized"
	EventSilenceTimeout        = "silence_timeout"
	EventSpeechFailed          = "speech_failed"
	EventStaleEvent            = "stale_event"
	EventRecognizerStarted     = "recognizer_started"
	EventRecognizerUnavailable = "recognizer_unavailable"
	EventPlaybackFailed        = "playback_failed"
	EventSuspensionChanged     = "suspension_changed"
)

// Event names recorded by the engine.
const (
	EventCommandReceived = "command_received"
)

// Well-known tag keys.
const (
	TagConversationID = "conversation_id"
	TagComponent      = "component"
	TagFrom           = "from"
	TagTo             = "to"
	TagKind           = "kind"
	TagEvent          = "event"
	TagReason         = "reason"
	TagCommand        = "command"
	TagOutcome        = "outcome"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
