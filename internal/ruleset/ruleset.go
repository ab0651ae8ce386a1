// Package ruleset loads rule packs from YAML or TOML files and compiles
// them into filter rules.
package ruleset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/filtersense/filtersense/internal/filter"
)

// RuleSpec is one rule as written in a pack file.
type RuleSpec struct {
	Name       string `yaml:"name" toml:"name"`
	Pattern    string `yaml:"pattern" toml:"pattern"`
	Severity   string `yaml:"severity" toml:"severity"`
	IgnoreCase bool   `yaml:"ignore_case" toml:"ignore_case"`

	compiled *regexp.Regexp
	severity filter.Severity
}

// Pack is the top-level rule pack structure.
type Pack struct {
	Version         string     `yaml:"version" toml:"version"`
	IncludeDefaults bool       `yaml:"include_defaults" toml:"include_defaults"`
	Rules           []RuleSpec `yaml:"rules" toml:"rules"`

	// Path is the file the pack was loaded from, if any.
	Path string `yaml:"-" toml:"-"`
}

// Load reads, decodes and compiles a rule pack. The format is picked
// from the file extension: .toml for TOML, anything else for YAML.
func Load(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule pack: %w", err)
	}

	pack, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, err
	}
	pack.Path = path
	return pack, nil
}

// Format names a pack encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes and compiles a rule pack from raw bytes.
func Parse(data []byte, format Format) (*Pack, error) {
	var pack Pack
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &pack); err != nil {
			return nil, fmt.Errorf("parse rule pack: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &pack); err != nil {
			return nil, fmt.Errorf("parse rule pack: %w", err)
		}
	}

	if err := pack.Compile(); err != nil {
		return nil, err
	}
	return &pack, nil
}

// Compile validates every rule and pre-compiles its pattern.
func (p *Pack) Compile() error {
	for i := range p.Rules {
		r := &p.Rules[i]
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("rule #%d: missing name", i+1)
		}
		if err := r.Compile(); err != nil {
			return err
		}
	}
	return nil
}

// Compile validates a single rule and pre-compiles its pattern.
func (r *RuleSpec) Compile() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule: missing name")
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule %q: missing pattern", r.Name)
	}

	sev, err := filter.ParseSeverity(r.Severity)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}

	expr := r.Pattern
	if r.IgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("rule %q pattern %q: %w", r.Name, r.Pattern, err)
	}

	r.compiled = re
	r.severity = sev
	return nil
}

// AddTo adds the compiled rule to f with AddRule semantics. The rule
// must have been compiled.
func (r *RuleSpec) AddTo(f *filter.Filter) {
	f.AddRule(r.Name, r.compiled, r.severity)
}

// Apply adds the pack's rules to f in file order, with AddRule
// semantics: a rule whose name already exists replaces it and moves to
// the end, and an unset severity becomes medium.
func (p *Pack) Apply(f *filter.Filter) {
	for i := range p.Rules {
		p.Rules[i].AddTo(f)
	}
}

// Filter builds a new filter from the pack. The built-in rules come
// first when the pack sets include_defaults.
func (p *Pack) Filter() *filter.Filter {
	var f *filter.Filter
	if p.IncludeDefaults {
		f = filter.New(nil)
	} else {
		f = filter.New([]filter.Rule{})
	}
	p.Apply(f)
	return f
}

// Compiled returns the rule set the pack describes, in evaluation order.
func (p *Pack) Compiled() []filter.Rule {
	return p.Filter().Rules()
}
