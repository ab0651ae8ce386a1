package filter

import "regexp"

// Patterns shipped with the default rule set. RE2 has no backtracking,
// so these run in time linear to the input.
var (
	emailPattern        = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern        = regexp.MustCompile(`(\+\d{1,3}[-.]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	creditCardPattern   = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	profanityPattern    = regexp.MustCompile(`(?i)\b(fuck|shit|bitch|asshole|cunt|dick|pussy)\b`)
	longNumericSequence = regexp.MustCompile(`\b\d{10,}\b`)
)

// DefaultRules returns a fresh copy of the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "email", Pattern: emailPattern, Severity: SeverityMedium},
		{Name: "phone_number", Pattern: phonePattern, Severity: SeverityMedium},
		{Name: "credit_card", Pattern: creditCardPattern, Severity: SeverityHigh},
		{Name: "profanity_strong", Pattern: profanityPattern, Severity: SeverityHigh},
		{Name: "numeric_sequence_long", Pattern: longNumericSequence, Severity: SeverityLow},
	}
}
