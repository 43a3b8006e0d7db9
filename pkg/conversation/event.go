package conversation

// Event is an input to the conversation machine. Events are processed one
// at a time on the machine's loop.
type Event interface {
	Name() string
}

// StartRequested begins a conversation from Idle.
type StartRequested struct{}

// EndRequested ends the conversation from any phase.
type EndRequested struct{}

// PlaybackCompleted reports that a non-looping clip finished. Generation is
// set by the machine from the Play call it answers; zero applies to the
// clip currently on screen.
type PlaybackCompleted struct {
	Generation uint64
}

// SpeechRecognized carries the recognizer's result. Session is set by the
// machine's callbacks; zero applies to the live session.
type SpeechRecognized struct {
	Text    string
	Session uint64
}

// SpeechFailed reports any recognizer-side error.
type SpeechFailed struct {
	Err     error
	Session uint64
}

// SilenceTimedOut fires when no speech outcome arrived in time.
type SilenceTimedOut struct {
	Token uint64
}

// Paused is raised when the host goes to the background.
type Paused struct{}

// Stopped is raised when the host is no longer visible.
type Stopped struct{}

// Resumed is raised when the host returns to the foreground.
type Resumed struct{}

// PauseToggled is the user's play/pause tap.
type PauseToggled struct{}

type settleElapsed struct {
	token uint64
}

func (StartRequested) Name() string    { return "start_requested" }
func (EndRequested) Name() string      { return "end_requested" }
func (PlaybackCompleted) Name() string { return "playback_completed" }
func (SpeechRecognized) Name() string  { return "speech_recognized" }
func (SpeechFailed) Name() string      { return "speech_failed" }
func (SilenceTimedOut) Name() string   { return "silence_timed_out" }
func (Paused) Name() string            { return "paused" }
func (Stopped) Name() string           { return "stopped" }
func (Resumed) Name() string           { return "resumed" }
func (PauseToggled) Name() string      { return "pause_toggled" }
func (settleElapsed) Name() string     { return "settle_elapsed" }
