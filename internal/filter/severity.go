package filter

import (
	"fmt"
	"strings"
)

// Severity is the risk level attached to a rule.
//
// The zero value means "unset". AddRule stores SeverityMedium for an
// unset severity, while a Rule built directly with no severity ranks as
// SeverityLow when a classification is computed.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"

	// SeverityNone is only reported by Classify for allowed text.
	SeverityNone Severity = "none"
)

// Rank orders severities: low=1, medium=2, high=3, critical=4.
// Unset and unknown values rank as low; SeverityNone ranks 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityNone:
		return 0
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 1
	}
}

// Valid reports whether s is one of the four rule severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func (s Severity) String() string {
	return string(s)
}

// ParseSeverity parses a rule severity, case-insensitively.
// An empty string parses to the unset severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev == "" || sev.Valid() {
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}
