package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Clean normalizes text before matching: NFKC, control characters
// stripped, whitespace runs collapsed to a single space, and trimmed.
// The result is also what callers get back as Result.Sanitized.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	// Controls go first so that a mark separated from its base by a
	// control character still composes. Tab, newline and carriage
	// return survive here and get collapsed with the rest of the
	// whitespace below.
	cleaned := strings.Map(func(r rune) rune {
		if isStrippedControl(r) {
			return -1
		}
		return r
	}, text)

	cleaned = norm.NFKC.String(cleaned)

	return strings.Join(strings.FieldsFunc(cleaned, isSpace), " ")
}

func isStrippedControl(r rune) bool {
	switch {
	case r <= 0x08:
		return true
	case r == 0x0B, r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r == 0x7F:
		return true
	}
	return false
}

// isSpace matches what a JavaScript \s class does: Unicode white space
// plus the BOM, but not NEL (U+0085), which is left in place.
func isSpace(r rune) bool {
	if r == '\u0085' {
		return false
	}
	return unicode.IsSpace(r) || r == '\uFEFF'
}
