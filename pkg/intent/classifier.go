// Package intent classifies recognized speech into response categories by
// keyword containment.
package intent

import "strings"

type rule struct {
	kind     Kind
	keywords []string
}

// Order is precedence: ending the conversation wins over any other keyword
// in the same utterance.
var rules = []rule{
	{kind: Goodbye, keywords: []string{"goodbye", "bye", "see you", "see you later"}},
	{kind: Greeting, keywords: []string{"hello", "hi"}},
	{kind: Weather, keywords: []string{"weather", "today"}},
}

// Classify lower-cases text and returns the first kind whose keyword list has
// a substring match, or General when nothing matches.
func Classify(text string) Kind {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.kind
			}
		}
	}
	return General
}

// Keywords returns a copy of the keywords checked for kind.
func Keywords(kind Kind) []string {
	for _, r := range rules {
		if r.kind == kind {
			out := make([]string, len(r.keywords))
			copy(out, r.keywords)
			return out
		}
	}
	return nil
}
