// Package cli implements the filtersense subcommands that run outside
// the HTTP server.
package cli

import (
	"flag"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/filtersense/filtersense/internal/filter"
	"github.com/filtersense/filtersense/internal/ruleset"
)

// sampleInputs are checked when no text is given on the command line.
var sampleInputs = []string{
	"Hello world!",
	"Contact me at test@example.com",
	"Call me at 123-456-7890",
	"My card is 4111 1111 1111 1111",
	"You are a bad shit",
	"Order id: 123456789012345",
}

// RunCheck runs every operation of the filter over one or more texts
// and prints the results to out.
//
// Usage: filtersense check [-rules file] [text ...]
//
// The arguments are joined with spaces and split on "|", so several
// texts can be checked in one call.
func RunCheck(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(out)
	rulesPath := fs.String("rules", "", "rule pack file (YAML or TOML)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := loadFilter(*rulesPath)
	if err != nil {
		return err
	}

	input := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(input) == "" {
		input = strings.Join(sampleInputs, " | ")
	}
	fmt.Fprintf(out, "Input: %s\n", input)

	n := 0
	for _, part := range strings.Split(input, "|") {
		text := strings.TrimSpace(part)
		if text == "" {
			continue
		}
		n++
		printResult(out, fmt.Sprintf("check [%d]", n), f.Check(text))
		printClassification(out, f.Classify(text))

		if err := f.EnsureSafe(text); err != nil {
			fmt.Fprintln(out, "ensure: BLOCKED")
			fmt.Fprintln(out, err.Error())
		} else {
			fmt.Fprintln(out, "ensure: OK")
		}
	}

	// A rule added at runtime, on a filter of its own.
	custom := filter.New(nil)
	custom.AddRule("no_groot", regexp.MustCompile(`(?i)\bgroot\b`), filter.SeverityLow)
	printResult(out, "custom rule", custom.Check("I am Groot"))
	return nil
}

func printResult(out io.Writer, title string, res filter.Result) {
	fmt.Fprintf(out, "\n=== %s ===\n", title)
	fmt.Fprintf(out, "safe: %t\n", res.Safe)
	fmt.Fprintf(out, "sanitized: %s\n", res.Sanitized)

	matched := make([]string, len(res.Matched))
	for i, r := range res.Matched {
		matched[i] = fmt.Sprintf("%s(%s)", r.Name, r.Severity)
	}
	fmt.Fprintf(out, "matched: [%s]\n", strings.Join(matched, ", "))
}

func printClassification(out io.Writer, c filter.Classification) {
	fmt.Fprintf(out, "classify: label=%s severity=%s triggers=[%s]\n",
		c.Label, c.Severity, strings.Join(c.Triggers, ", "))
}

// loadFilter builds a filter from a rule pack, or the built-in rules
// when path is empty.
func loadFilter(path string) (*filter.Filter, error) {
	if path == "" {
		return filter.New(nil), nil
	}
	pack, err := ruleset.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return pack.Filter(), nil
}
