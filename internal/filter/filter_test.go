package filter

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func ruleNames(rules []Rule) []string {
	return names(rules)
}

func TestCheck_Email(t *testing.T) {
	f := New(nil)
	res := f.Check("Contact me at test@example.com")
	require.False(t, res.Safe)
	require.Contains(t, ruleNames(res.Matched), "email")
	require.Equal(t, "Contact me at test@example.com", res.Sanitized)
}

func TestCheck_PhoneNumber(t *testing.T) {
	res := New(nil).Check("Call 123-456-7890")
	require.False(t, res.Safe)
	require.Contains(t, ruleNames(res.Matched), "phone_number")
}

func TestCheck_CreditCard(t *testing.T) {
	res := New(nil).Check("card 4111 1111 1111 1111 exp 12/29")
	require.False(t, res.Safe)
	require.Contains(t, ruleNames(res.Matched), "credit_card")
}

func TestCheck_LongNumericSequence(t *testing.T) {
	res := New(nil).Check("order 98765432101234")
	require.Contains(t, ruleNames(res.Matched), "numeric_sequence_long")
}

func TestCheck_SafeText(t *testing.T) {
	res := New(nil).Check("Hello there, nice weather.")
	require.True(t, res.Safe)
	require.Empty(t, res.Matched)
	require.Len(t, res.Rules, len(DefaultRules()))
}

func TestCheck_MatchOrderFollowsRuleOrder(t *testing.T) {
	f := New([]Rule{
		{Name: "second-in-text", Pattern: regexp.MustCompile(`beta`)},
		{Name: "first-in-text", Pattern: regexp.MustCompile(`alpha`)},
	})
	res := f.Check("alpha then beta")
	require.Equal(t, []string{"second-in-text", "first-in-text"}, ruleNames(res.Matched))
}

func TestCheck_MatchesAfterCleaning(t *testing.T) {
	f := New([]Rule{{Name: "phrase", Pattern: regexp.MustCompile(`^bad word$`)}})
	require.False(t, f.Check("  bad\x00 \t\n word ").Safe)
}

func TestCheck_Idempotent(t *testing.T) {
	f := New(nil)
	text := "mail test@example.com or call 123-456-7890"
	require.Equal(t, f.Check(text), f.Check(text))
}

func TestCheck_SnapshotIsolation(t *testing.T) {
	f := New(nil)
	res := f.Check("test@example.com")

	res.Rules[0] = Rule{Name: "hijacked", Pattern: regexp.MustCompile(`.`)}
	res.Rules = res.Rules[:1]
	res.Matched[0].Name = "renamed"

	again := f.Check("test@example.com")
	require.Equal(t, ruleNames(DefaultRules()), ruleNames(again.Rules))
	require.Equal(t, "email", again.Matched[0].Name)
	require.True(t, f.Check("Hello there").Safe)
}

func TestCheck_ResultUnaffectedByLaterMutation(t *testing.T) {
	f := New(nil)
	res := f.Check("test@example.com")
	f.RemoveRule("email")
	f.AddRule("extra", regexp.MustCompile(`x`), SeverityLow)

	require.Equal(t, ruleNames(DefaultRules()), ruleNames(res.Rules))
	require.Equal(t, []string{"email"}, ruleNames(res.Matched))
}

func TestCheck_NilPatternNeverMatches(t *testing.T) {
	f := New([]Rule{{Name: "empty"}})
	require.True(t, f.Check("anything").Safe)
}

func TestCheck_MatcherFunc(t *testing.T) {
	f := New([]Rule{{
		Name:     "shouting",
		Pattern:  MatcherFunc(func(s string) bool { return s != "" && strings.ToUpper(s) == s }),
		Severity: SeverityLow,
	}})
	require.False(t, f.Check("STOP  THAT").Safe)
	require.True(t, f.Check("stop that").Safe)
}

func TestClassify_Profanity(t *testing.T) {
	c := New(nil).Classify("shit")
	require.Equal(t, Classification{
		Label:    LabelRestricted,
		Severity: SeverityHigh,
		Triggers: []string{"profanity_strong"},
	}, c)
}

func TestClassify_Allowed(t *testing.T) {
	c := New(nil).Classify("Hello there, nice weather.")
	require.Equal(t, LabelAllowed, c.Label)
	require.Equal(t, SeverityNone, c.Severity)
	require.NotNil(t, c.Triggers)
	require.Empty(t, c.Triggers)
}

func TestClassify_SeverityDominance(t *testing.T) {
	f := New([]Rule{
		{Name: "a", Pattern: regexp.MustCompile(`a`), Severity: SeverityLow},
		{Name: "b", Pattern: regexp.MustCompile(`b`), Severity: SeverityHigh},
		{Name: "c", Pattern: regexp.MustCompile(`c`), Severity: SeverityMedium},
	})
	c := f.Classify("abc")
	require.Equal(t, SeverityHigh, c.Severity)
	require.Equal(t, []string{"a", "b", "c"}, c.Triggers)
}

func TestClassify_UnsetSeverityCountsAsLow(t *testing.T) {
	f := New([]Rule{{Name: "bare", Pattern: regexp.MustCompile(`x`)}})
	require.Equal(t, SeverityLow, f.Classify("x").Severity)

	// The same rule added through the registry defaults to medium.
	f.AddRule("bare", regexp.MustCompile(`x`), "")
	require.Equal(t, SeverityMedium, f.Classify("x").Severity)
}

func TestClassify_Critical(t *testing.T) {
	f := New(nil)
	f.AddRule("secret", regexp.MustCompile(`(?i)top secret`), SeverityCritical)
	c := f.Classify("TOP SECRET: mail test@example.com")
	require.Equal(t, SeverityCritical, c.Severity)
	require.Equal(t, []string{"email", "secret"}, c.Triggers)
}

func TestSafetyConsistency(t *testing.T) {
	f := New(nil)
	for _, text := range []string{
		"",
		"Hello there, nice weather.",
		"Contact me at test@example.com",
		"shit, call 123-456-7890",
		"\x00\x01\x02",
	} {
		res := f.Check(text)
		c := f.Classify(text)
		require.Equal(t, res.Safe, len(res.Matched) == 0, text)
		require.Equal(t, res.Safe, c.Label == LabelAllowed, text)
		require.Equal(t, res.Classify(), c, text)
	}
}

func TestEnsureSafe_Blocked(t *testing.T) {
	err := New(nil).EnsureSafe("shit")
	require.Error(t, err)
	require.Contains(t, err.Error(), "profanity_strong")
	require.True(t, errors.Is(err, ErrContentBlocked))

	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	require.Equal(t, []string{"profanity_strong"}, blocked.Rules)
}

func TestEnsureSafe_MessageListsMatchesInOrder(t *testing.T) {
	f := New(nil)
	text := "shit, mail test@example.com"
	err := f.EnsureSafe(text)
	require.EqualError(t, err, "Text contains unsafe content: email, profanity_strong")
	require.Equal(t, ruleNames(f.Check(text).Matched), err.(*BlockedError).Rules)
}

func TestEnsureSafe_Safe(t *testing.T) {
	require.NoError(t, New(nil).EnsureSafe("Hello there, nice weather."))
}

func TestAddRemove_RoundTrip(t *testing.T) {
	f := New(nil)
	before := ruleNames(f.Rules())

	f.AddRule("x", regexp.MustCompile(`x`), SeverityLow)
	require.Equal(t, append(before, "x"), ruleNames(f.Rules()))

	f.RemoveRule("x")
	require.Equal(t, before, ruleNames(f.Rules()))
}

func TestAddRule_ReplacesAndMovesToEnd(t *testing.T) {
	f := New(nil)
	p := regexp.MustCompile(`@corp\.internal`)
	f.AddRule("email", p, SeverityCritical)

	rules := f.Rules()
	count := 0
	for _, r := range rules {
		if r.Name == "email" {
			count++
		}
	}
	require.Equal(t, 1, count)

	last := rules[len(rules)-1]
	require.Equal(t, "email", last.Name)
	require.Same(t, p, last.Pattern)
	require.Equal(t, SeverityCritical, last.Severity)
}

func TestAddRule_DefaultSeverity(t *testing.T) {
	f := New([]Rule{})
	f.AddRule("x", regexp.MustCompile(`x`), "")
	require.Equal(t, SeverityMedium, f.Rules()[0].Severity)
}

func TestRemoveRule_Email(t *testing.T) {
	f := New(nil)
	f.RemoveRule("email")
	require.True(t, f.Check("test@example.com").Safe)
}

func TestRemoveRule_MissingIsNoop(t *testing.T) {
	f := New(nil)
	f.RemoveRule("does-not-exist")
	require.Equal(t, ruleNames(DefaultRules()), ruleNames(f.Rules()))
}

func TestRules_DefensiveCopy(t *testing.T) {
	f := New(nil)
	rules := f.Rules()
	rules[0].Name = "changed"
	_ = append(rules[:1], rules[2:]...)

	require.Equal(t, ruleNames(DefaultRules()), ruleNames(f.Rules()))
}

func TestNew_CopiesInput(t *testing.T) {
	in := []Rule{{Name: "a", Pattern: regexp.MustCompile(`a`)}}
	f := New(in)
	in[0].Name = "changed"
	require.Equal(t, []string{"a"}, ruleNames(f.Rules()))
}

func TestNew_EmptySliceMeansNoRules(t *testing.T) {
	f := New([]Rule{})
	require.Empty(t, f.Rules())
	require.True(t, f.Check("shit test@example.com").Safe)
}

func TestDefault_IsIndependentOfNew(t *testing.T) {
	f := New(nil)
	f.RemoveRule("email")
	require.Contains(t, ruleNames(Default.Rules()), "email")
}
