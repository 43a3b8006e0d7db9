// Package redact masks personal data in transcripts before they are logged
// or written to artifacts.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

type pattern struct {
	re   *regexp.Regexp
	mask string
}

// Card numbers run before phone numbers so a 16-digit card is not reported
// as a phone.
var patterns = []pattern{
	{re: regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`), mask: "[REDACTED_EMAIL]"},
	{re: regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`), mask: "[REDACTED_CARD]"},
	{re: regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`), mask: "[REDACTED_PHONE]"},
}

// SetEnabled toggles PII redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text masks emails, card numbers and phone numbers when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := in
	for _, p := range patterns {
		out = p.re.ReplaceAllString(out, p.mask)
	}
	return out
}

// Fields returns a copy of fields with every string value passed through
// Text. Keys listed in keep are copied verbatim.
func Fields(fields map[string]any, keep ...string) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok || contains(keep, k) {
			out[k] = v
			continue
		}
		out[k] = Text(s)
	}
	return out
}

func contains(list []string, key string) bool {
	for _, k := range list {
		if k == key {
			return true
		}
	}
	return false
}
