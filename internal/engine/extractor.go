package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExtractName scans a user message for a name introduction. Patterns are
// tried in table order and the first capture wins. The capture is then
// cleaned up: one leading filler word is stripped, captures longer than
// two words are cut down to their first word, and the result is
// capitalized. Returns "" when no pattern matches or cleanup leaves
// nothing.
func (e *Engine) ExtractName(message string) string {
	for _, re := range e.namePatterns {
		match := re.FindStringSubmatch(message)
		if match == nil || match[1] == "" {
			continue
		}
		if name := e.cleanName(match[1]); name != "" {
			return name
		}
	}
	return ""
}

func (e *Engine) cleanName(raw string) string {
	name := strings.TrimSpace(raw)
	if e.fillerPattern != nil {
		name = strings.TrimSpace(e.fillerPattern.ReplaceAllString(name, ""))
	}

	words := strings.Fields(name)
	if len(words) > 2 {
		name = words[0]
	}
	return capitalize(name)
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(name string) string {
	if name == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + strings.ToLower(name[size:])
}
