package conversation

import (
	"time"

	"github.com/harunnryd/avatarchat/pkg/intent"
	"github.com/harunnryd/avatarchat/pkg/phase"
)

// Notification is emitted to listeners after a transition's effects ran.
type Notification interface {
	Type() string
}

// PhaseChanged is emitted on every transition.
type PhaseChanged struct {
	From           phase.Phase
	To             phase.Phase
	ConversationID string
	Reason         string
	At             time.Time
}

// TextRecognized is emitted when speech was accepted and classified.
type TextRecognized struct {
	Text           string
	Kind           intent.Kind
	ConversationID string
}

// PermissionRequired is emitted once when listening is impossible.
type PermissionRequired struct {
	Err error
}

// SuspensionChanged is emitted when playback and listening are put on hold
// or released.
type SuspensionChanged struct {
	Held   bool
	ByUser bool
}

func (PhaseChanged) Type() string       { return "phase_changed" }
func (TextRecognized) Type() string     { return "text_recognized" }
func (PermissionRequired) Type() string { return "permission_required" }
func (SuspensionChanged) Type() string  { return "suspension_changed" }

// Listener observes machine notifications. It runs on the machine's loop
// and must not block.
type Listener interface {
	OnNotification(n Notification)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(n Notification)

func (f ListenerFunc) OnNotification(n Notification) { f(n) }
