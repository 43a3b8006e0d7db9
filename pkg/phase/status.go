package phase

import "github.com/harunnryd/avatarchat/pkg/intent"

// StatusText is the one-line caption a UI shows under the video.
func StatusText(p Phase) string {
	switch p.Stage {
	case StageIdle:
		return "Tap 'Start Chat' to begin"
	case StageGreeting:
		return "Greeting..."
	case StageListening:
		return "Listening..."
	case StageResponding:
		switch p.Response {
		case intent.Greeting:
			return "Responding to greeting..."
		case intent.Weather:
			return "Talking about weather..."
		case intent.Goodbye:
			return "Saying goodbye..."
		case intent.Fallback:
			return "Didn't catch that..."
		case intent.Prompt:
			return "Are you still there?"
		default:
			return "Responding..."
		}
	case StageGoodbye:
		return "Goodbye!"
	case StageFallback:
		return "Didn't catch that..."
	case StagePrompt:
		return "Are you still there?"
	default:
		return ""
	}
}
