package engine

import "strings"

// Classify matches a user message against the ordered intent table and
// returns the first hit, or IntentDefault. Matching is case-insensitive
// substring containment; name introductions are decided by the session,
// not here.
func (e *Engine) Classify(message string) Intent {
	lower := strings.ToLower(message)
	for _, rule := range e.rules.Intents {
		if !containsAny(lower, rule.Keywords) {
			continue
		}
		if len(rule.RequiresAny) > 0 && !containsAny(lower, rule.RequiresAny) {
			continue
		}
		return rule.Name
	}
	return IntentDefault
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
