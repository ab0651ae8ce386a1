package filter

import "strings"

// Redaction is the outcome of Redact.
type Redaction struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
	// Rules names the rules that replaced at least one span, in
	// evaluation order.
	Rules []string `json:"rules"`
}

// Redact cleans text and replaces every span matched by a rule with
// [REDACTED:<rule name>]. Rules are applied in order, each one against
// the output of the previous. Rules whose pattern is not a Locator
// are skipped.
func (f *Filter) Redact(text string) Redaction {
	out := Redaction{Text: Clean(text), Rules: []string{}}

	for _, rule := range f.rules {
		loc, ok := rule.Pattern.(Locator)
		if !ok {
			continue
		}
		spans := loc.FindAllStringIndex(out.Text, -1)
		if len(spans) == 0 {
			continue
		}
		out.Text = replaceSpans(out.Text, spans, "[REDACTED:"+rule.Name+"]")
		out.Count += len(spans)
		out.Rules = append(out.Rules, rule.Name)
	}
	return out
}

func replaceSpans(s string, spans [][]int, replacement string) string {
	var b strings.Builder
	last := 0
	for _, span := range spans {
		b.WriteString(s[last:span[0]])
		b.WriteString(replacement)
		last = span[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
