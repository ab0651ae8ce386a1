package cli

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
)

// RunRules prints the rule set in evaluation order.
//
// Usage: filtersense rules [-rules file]
func RunRules(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rules", flag.ContinueOnError)
	fs.SetOutput(out)
	rulesPath := fs.String("rules", "", "rule pack file (YAML or TOML)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := loadFilter(*rulesPath)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSEVERITY\tPATTERN")
	for _, r := range f.Rules() {
		sev := r.Severity.String()
		if sev == "" {
			sev = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, sev, r.PatternString())
	}
	return tw.Flush()
}
