// Package engine implements the scripted persona: rule-based name
// extraction, keyword intent classification, and template rendering.
// The whole pipeline is deterministic; the same inputs always produce
// the same reply.
package engine

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Intent identifies which reply template a user message selects.
type Intent string

const (
	IntentNameIntroduction Intent = "name_introduction"
	IntentDistress         Intent = "distress"
	IntentSadness          Intent = "sadness"
	IntentMoney            Intent = "money"
	IntentGratitude        Intent = "gratitude"
	IntentFather           Intent = "father"
	IntentDefault          Intent = "default"
)

// intentRule is one entry of the ordered classification table. A message
// matches when it contains any of Keywords and, if RequiresAny is set,
// at least one of those too.
type intentRule struct {
	Name        Intent   `yaml:"name"`
	Keywords    []string `yaml:"keywords"`
	RequiresAny []string `yaml:"requires_any"`
}

// rules is the parsed form of rules.yaml.
type rules struct {
	NamePatterns   []string          `yaml:"name_patterns"`
	NameFillers    []string          `yaml:"name_fillers"`
	DefaultAddress string            `yaml:"default_address"`
	AddressPrefix  string            `yaml:"address_prefix"`
	Intents        []intentRule      `yaml:"intents"`
	Templates      map[string]string `yaml:"templates"`
}

// Engine holds the compiled rule table.
type Engine struct {
	rules         rules
	namePatterns  []*regexp.Regexp
	fillerPattern *regexp.Regexp
}

// New compiles the embedded rule table.
func New() (*Engine, error) {
	return NewFromRules(defaultRules)
}

// NewFromRules compiles a rule table from raw YAML. Tests use it to
// exercise the engine with reduced tables.
func NewFromRules(raw []byte) (*Engine, error) {
	var r rules
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("engine: failed to parse rules: %w", err)
	}
	if len(r.NamePatterns) == 0 {
		return nil, fmt.Errorf("engine: rule table has no name patterns")
	}
	for _, key := range []string{"greeting", "default", "name_introduction", "edit_notice"} {
		if r.Templates[key] == "" {
			return nil, fmt.Errorf("engine: rule table is missing the %q template", key)
		}
	}

	e := &Engine{rules: r}
	for _, pattern := range r.NamePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("engine: invalid name pattern %q: %w", pattern, err)
		}
		e.namePatterns = append(e.namePatterns, re)
	}

	if len(r.NameFillers) > 0 {
		quoted := make([]string, len(r.NameFillers))
		for i, filler := range r.NameFillers {
			quoted[i] = regexp.QuoteMeta(filler)
		}
		pattern := `(?i)^(` + strings.Join(quoted, "|") + `)\s*`
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("engine: invalid filler pattern: %w", err)
		}
		e.fillerPattern = re
	}
	return e, nil
}

// Greeting is the canned message shown when a conversation has no
// history yet.
func (e *Engine) Greeting() string {
	return e.rules.Templates["greeting"]
}

// TypingStatus is the indicator text broadcast while a reply is pending.
func (e *Engine) TypingStatus() string {
	return e.rules.Templates["typing"]
}

// ConversationTitle derives a conversation title from its first user
// message: the first 30 characters with an ellipsis, or a fixed title
// when the message is empty.
func (e *Engine) ConversationTitle(firstMessage string) string {
	firstMessage = strings.TrimSpace(firstMessage)
	if firstMessage == "" {
		return e.rules.Templates["empty_title"]
	}
	runes := []rune(firstMessage)
	if len(runes) > 30 {
		return string(runes[:30]) + "..."
	}
	return firstMessage
}

// render substitutes the {address} and {name} placeholders.
func (e *Engine) render(key, address, name string) string {
	return strings.NewReplacer(
		"{address}", address,
		"{name}", name,
	).Replace(e.rules.Templates[key])
}
