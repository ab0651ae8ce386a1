package filter

import (
	"encoding/json"
	"fmt"
)

// Matcher tests cleaned text. A match anywhere in the text counts.
// *regexp.Regexp satisfies it.
type Matcher interface {
	MatchString(s string) bool
}

// MatcherFunc adapts a predicate over the cleaned text to a Matcher.
type MatcherFunc func(s string) bool

func (f MatcherFunc) MatchString(s string) bool {
	return f(s)
}

// Locator is implemented by matchers that can report where they match.
// Only rules whose pattern is a Locator take part in Redact.
type Locator interface {
	Matcher
	FindAllStringIndex(s string, n int) [][]int
}

// Rule is a named pattern with a severity.
type Rule struct {
	Name     string
	Pattern  Matcher
	Severity Severity
}

// PatternString renders the rule's pattern for display, using the
// matcher's String method when it has one.
func (r Rule) PatternString() string {
	if s, ok := r.Pattern.(fmt.Stringer); ok {
		return s.String()
	}
	if r.Pattern == nil {
		return ""
	}
	return fmt.Sprintf("%T", r.Pattern)
}

func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name     string   `json:"name"`
		Pattern  string   `json:"pattern"`
		Severity Severity `json:"severity,omitempty"`
	}{r.Name, r.PatternString(), r.Severity})
}

func names(rules []Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Name
	}
	return out
}
