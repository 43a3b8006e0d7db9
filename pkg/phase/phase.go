// Package phase defines the conversation phases and the video directive each
// one plays.
package phase

import "github.com/harunnryd/avatarchat/pkg/intent"

// Stage is the discrete part of a Phase.
type Stage int

const (
	StageIdle Stage = iota
	StageGreeting
	StageListening
	StageResponding
	StagePrompt
	StageGoodbye
	StageFallback
)

// String returns the lower-case stage name.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageGreeting:
		return "greeting"
	case StageListening:
		return "listening"
	case StageResponding:
		return "responding"
	case StagePrompt:
		return "prompt"
	case StageGoodbye:
		return "goodbye"
	case StageFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Phase is the conversation's current state. Response is only set for
// StageResponding; use the constructors so Phase values stay comparable.
type Phase struct {
	Stage    Stage
	Response intent.Kind
}

var (
	Idle      = Phase{Stage: StageIdle}
	Greeting  = Phase{Stage: StageGreeting}
	Listening = Phase{Stage: StageListening}
	Prompt    = Phase{Stage: StagePrompt}
	Goodbye   = Phase{Stage: StageGoodbye}
	Fallback  = Phase{Stage: StageFallback}
)

// Responding returns the Responding phase for kind.
func Responding(kind intent.Kind) Phase {
	return Phase{Stage: StageResponding, Response: kind}
}

// Is reports whether p is in stage s regardless of payload.
func (p Phase) Is(s Stage) bool { return p.Stage == s }

func (p Phase) String() string {
	if p.Stage == StageResponding {
		return "responding(" + p.Response.String() + ")"
	}
	return p.Stage.String()
}
