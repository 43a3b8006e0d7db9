package phase

// Directive tells the video player what to show for a phase. FollowUp is
// empty when nothing should be staged after Clip.
type Directive struct {
	Clip     string
	Loop     bool
	FollowUp string
}

// DirectiveFor maps a phase to its playback directive.
func DirectiveFor(p Phase) Directive {
	switch p.Stage {
	case StageIdle:
		return Directive{Clip: "idle", Loop: true}
	case StageGreeting:
		return Directive{Clip: "greeting", FollowUp: "listening"}
	case StageListening:
		return Directive{Clip: "listening", Loop: true}
	case StageResponding:
		return Directive{Clip: p.Response.String()}
	case StagePrompt:
		return Directive{Clip: "prompt"}
	case StageGoodbye:
		return Directive{Clip: "goodbye"}
	case StageFallback:
		return Directive{Clip: "fallback"}
	default:
		return Directive{Clip: "idle", Loop: true}
	}
}
