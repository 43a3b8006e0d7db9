package configutil

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/harunnryd/avatarchat/pkg/errorsx"
)

// Range bounds a numeric setting, inclusive on both ends.
type Range struct {
	Min, Max int
}

// Schema describes a provider's settings block. Key matching ignores case,
// underscores and hyphens.
type Schema struct {
	// Section prefixes every message, e.g. "speech.settings".
	Section      string
	Required     []string
	Optional     []string
	AllowUnknown bool
	// OneOf restricts string values, compared case-insensitively.
	OneOf map[string][]string
	// Ranges bounds integer values. Numeric strings left by env expansion
	// are parsed first.
	Ranges map[string]Range
}

// SettingsError lists every problem found in one settings block.
type SettingsError struct {
	Section string
	Missing []string
	Unknown []string
	Invalid []string
}

func (e *SettingsError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(e.Invalid, ", "))
	}
	msg := strings.Join(parts, "; ")
	if e.Section != "" {
		msg = e.Section + ": " + msg
	}
	return msg
}

// ValidateSettings checks input against schema and returns a
// *SettingsError tagged with the config reason code.
func ValidateSettings(input map[string]any, schema Schema) error {
	required := make(map[string]string, len(schema.Required))
	for _, k := range schema.Required {
		required[normalizeKey(k)] = k
	}
	allowed := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for k := range required {
		allowed[k] = struct{}{}
	}
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = struct{}{}
	}
	oneOf := make(map[string][]string, len(schema.OneOf))
	for k, v := range schema.OneOf {
		oneOf[normalizeKey(k)] = v
	}
	ranges := make(map[string]Range, len(schema.Ranges))
	for k, r := range schema.Ranges {
		ranges[normalizeKey(k)] = r
	}

	serr := &SettingsError{Section: schema.Section}
	present := make(map[string]bool, len(input))
	for k, v := range input {
		nk := normalizeKey(k)
		if _, ok := allowed[nk]; !ok && !schema.AllowUnknown {
			serr.Unknown = append(serr.Unknown, k)
			continue
		}
		if isEmptyValue(v) {
			continue
		}
		present[nk] = true
		if choices, ok := oneOf[nk]; ok && !matchesOneOf(v, choices) {
			serr.Invalid = append(serr.Invalid, fmt.Sprintf("%s must be one of [%s], got %v", k, strings.Join(choices, " "), v))
		}
		if r, ok := ranges[nk]; ok {
			if msg := checkRange(v, r); msg != "" {
				serr.Invalid = append(serr.Invalid, k+" "+msg)
			}
		}
	}
	for nk, key := range required {
		if !present[nk] {
			serr.Missing = append(serr.Missing, key)
		}
	}

	if len(serr.Missing) == 0 && len(serr.Unknown) == 0 && len(serr.Invalid) == 0 {
		return nil
	}
	sort.Strings(serr.Missing)
	sort.Strings(serr.Unknown)
	sort.Strings(serr.Invalid)
	return errorsx.WrapOp(serr, errorsx.ReasonConfig, "settings")
}

func matchesOneOf(v any, choices []string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	for _, c := range choices {
		if strings.EqualFold(s, c) {
			return true
		}
	}
	return false
}

func checkRange(v any, r Range) string {
	var n int
	switch val := v.(type) {
	case int:
		n = val
	case int64:
		n = int(val)
	case float64:
		if val != float64(int(val)) {
			return fmt.Sprintf("must be a whole number, got %v", val)
		}
		n = int(val)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Sprintf("must be a number, got %q", val)
		}
		n = parsed
	default:
		return fmt.Sprintf("must be a number, got %T", v)
	}
	if n < r.Min || n > r.Max {
		return fmt.Sprintf("must be between %d and %d, got %d", r.Min, r.Max, n)
	}
	return ""
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
