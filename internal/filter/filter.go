// Package filter inspects text against an ordered set of named pattern
// rules and turns the matches into an allow/restrict decision.
//
// A Filter does no locking. Callers that mutate rules while other
// goroutines check text must serialize those calls themselves.
package filter

import "slices"

// Label is the verdict reported by Classify.
type Label string

const (
	LabelAllowed    Label = "allowed"
	LabelRestricted Label = "restricted"
)

// Result is the outcome of a single Check.
type Result struct {
	Safe      bool   `json:"safe"`
	Matched   []Rule `json:"matched"`
	Sanitized string `json:"sanitized"`
	// Rules is a snapshot of the rule set the text was checked against.
	Rules []Rule `json:"rules"`
}

// Classification summarizes a Check.
type Classification struct {
	Label    Label    `json:"label"`
	Severity Severity `json:"severity"`
	Triggers []string `json:"triggers"`
}

// Filter holds an ordered, name-keyed rule set.
type Filter struct {
	rules []Rule
}

// Default is a ready-to-use Filter with the built-in rules. It is
// shared and mutable; code that needs its own rule set should call New.
var Default = New(nil)

// New creates a Filter. A nil slice selects DefaultRules; any non-nil
// slice, including an empty one, is used as given (copied).
func New(rules []Rule) *Filter {
	if rules == nil {
		return &Filter{rules: DefaultRules()}
	}
	return &Filter{rules: slices.Clone(rules)}
}

// Check cleans text and tests it against every rule in order.
func (f *Filter) Check(text string) Result {
	sanitized := Clean(text)
	matched := []Rule{}

	for _, rule := range f.rules {
		if rule.Pattern != nil && rule.Pattern.MatchString(sanitized) {
			matched = append(matched, rule)
		}
	}

	return Result{
		Safe:      len(matched) == 0,
		Matched:   matched,
		Sanitized: sanitized,
		Rules:     f.Rules(),
	}
}

// Classify labels text as allowed or restricted. The reported severity
// is the highest among matched rules; an unset severity counts as low.
func (f *Filter) Classify(text string) Classification {
	return classify(f.Check(text))
}

func classify(res Result) Classification {
	if len(res.Matched) == 0 {
		return Classification{
			Label:    LabelAllowed,
			Severity: SeverityNone,
			Triggers: []string{},
		}
	}

	maxSeverity := SeverityLow
	for _, rule := range res.Matched {
		if rule.Severity.Rank() > maxSeverity.Rank() {
			maxSeverity = rule.Severity
		}
	}

	return Classification{
		Label:    LabelRestricted,
		Severity: maxSeverity,
		Triggers: names(res.Matched),
	}
}

// Classify derives the classification of an existing result.
func (r Result) Classify() Classification {
	return classify(r)
}

// EnsureSafe returns a *BlockedError naming the matched rules if any
// rule matches text, and nil otherwise.
func (f *Filter) EnsureSafe(text string) error {
	return f.Check(text).Err()
}

// Err converts an unsafe result into a *BlockedError.
func (r Result) Err() error {
	if r.Safe {
		return nil
	}
	return &BlockedError{Rules: names(r.Matched)}
}

// AddRule appends a rule, replacing any rule with the same name. A
// replaced rule moves to the end of the evaluation order. An unset
// severity is stored as SeverityMedium.
func (f *Filter) AddRule(name string, pattern Matcher, severity Severity) {
	if severity == "" {
		severity = SeverityMedium
	}
	f.RemoveRule(name)
	f.rules = append(f.rules, Rule{Name: name, Pattern: pattern, Severity: severity})
}

// RemoveRule drops the rule with the given name, if present.
func (f *Filter) RemoveRule(name string) {
	f.rules = slices.DeleteFunc(f.rules, func(r Rule) bool {
		return r.Name == name
	})
}

// Rules returns a copy of the rule set in evaluation order.
func (f *Filter) Rules() []Rule {
	return slices.Clone(f.rules)
}
