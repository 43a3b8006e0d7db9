package intent

// Kind is the closed set of response categories a recognized utterance
// maps to. Prompt and Fallback are synthesized by the conversation machine
// and never returned by Classify.
type Kind int

const (
	Unknown Kind = iota
	Greeting
	Weather
	General
	Goodbye
	Fallback
	Prompt
)

// String returns the lower-case name, which doubles as the clip id of the
// matching response video.
func (k Kind) String() string {
	switch k {
	case Greeting:
		return "greeting"
	case Weather:
		return "weather"
	case General:
		return "general"
	case Goodbye:
		return "goodbye"
	case Fallback:
		return "fallback"
	case Prompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// Parse maps a lower-case name back to its Kind.
func Parse(name string) (Kind, bool) {
	for _, k := range []Kind{Greeting, Weather, General, Goodbye, Fallback, Prompt} {
		if k.String() == name {
			return k, true
		}
	}
	return Unknown, false
}
