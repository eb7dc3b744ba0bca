// Package rules implements the YAML-driven field-condition rule engine
// with time-windowed threshold correlation (spec.md §4.4).
package rules

import (
	"fmt"
	"regexp"

	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

const (
	// MaxFieldNameLen caps FieldCondition.Field length (spec.md §4.4).
	MaxFieldNameLen = 256
	// MaxRegexLen caps a Regex condition's pattern length (spec.md §4.4, §8).
	MaxRegexLen = 1000
)

// Modifier is the comparison a FieldCondition applies.
type Modifier uint8

const (
	Exact Modifier = iota
	Contains
	Regex
)

func (m Modifier) String() string {
	switch m {
	case Exact:
		return "exact"
	case Contains:
		return "contains"
	case Regex:
		return "regex"
	default:
		return "unknown"
	}
}

// ParseModifier parses the YAML modifier string, case-sensitively matching
// the rule file vocabulary.
func ParseModifier(s string) (Modifier, error) {
	switch s {
	case "exact":
		return Exact, nil
	case "contains":
		return Contains, nil
	case "regex":
		return Regex, nil
	default:
		return 0, fmt.Errorf("rules: unknown modifier %q", s)
	}
}

// FieldCondition matches one structured field of a LogEntry.
type FieldCondition struct {
	Field    string
	Modifier Modifier
	Value    string

	// compiled is non-nil only for Modifier == Regex.
	compiled *regexp.Regexp
}

// Threshold correlates repeated matches of the same rule over a time
// window, keyed by the value of Field in the matching entry.
type Threshold struct {
	Field      string
	Count      int
	WindowSecs int
}

// Rule is immutable after Load (spec.md §3).
type Rule struct {
	ID         string
	Title      string
	Severity   events.Severity
	Enabled    bool
	Conditions []FieldCondition
	Threshold  *Threshold

	// SourceFile records the originating YAML file, for load-error
	// diagnostics and the CLI's `rules list` command.
	SourceFile string
}

// Matches evaluates every FieldCondition against entry's fields, ANDed
// together with short-circuit on the first false (spec.md §4.4 step 3).
func (r *Rule) Matches(entry events.LogEntry) bool {
	for _, c := range r.Conditions {
		if !c.matches(entry) {
			return false
		}
	}
	return true
}

func (c *FieldCondition) matches(entry events.LogEntry) bool {
	v, ok := entry.Fields.Get(c.Field)
	if !ok {
		return false
	}
	switch c.Modifier {
	case Exact:
		return v == c.Value
	case Contains:
		return containsSubstring(v, c.Value)
	case Regex:
		return c.compiled != nil && c.compiled.MatchString(v)
	default:
		return false
	}
}

func containsSubstring(haystack, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

// validate checks field-level constraints (spec.md §4.4 load-time
// validation) and precompiles Regex conditions.
func (r *Rule) validate() error {
	if r.ID == "" {
		return ironerr.New(ironerr.KindPolicy, "rule id must not be empty").WithPath(r.SourceFile)
	}
	if len(r.Conditions) == 0 {
		return ironerr.New(ironerr.KindPolicy, "rule must have at least one field condition").WithPath(r.SourceFile)
	}
	for i := range r.Conditions {
		c := &r.Conditions[i]
		if c.Field == "" {
			return ironerr.New(ironerr.KindPolicy, "field condition name must not be empty").WithPath(r.SourceFile)
		}
		if len(c.Field) > MaxFieldNameLen {
			return ironerr.New(ironerr.KindPolicy,
				fmt.Sprintf("field condition name exceeds %d bytes", MaxFieldNameLen)).
				WithField(c.Field).WithPath(r.SourceFile)
		}
		if c.Modifier == Regex {
			if len(c.Value) > MaxRegexLen {
				return ironerr.New(ironerr.KindInput,
					fmt.Sprintf("regex pattern exceeds %d bytes", MaxRegexLen)).
					WithField(c.Field).WithPath(r.SourceFile)
			}
			if err := screenRegexComplexity(c.Value); err != nil {
				return ironerr.Wrap(ironerr.KindInput, "regex complexity rejected", err).
					WithField(c.Field).WithPath(r.SourceFile)
			}
			compiled, err := regexp.Compile(c.Value)
			if err != nil {
				return ironerr.Wrap(ironerr.KindPolicy, "regex did not compile", err).
					WithField(c.Field).WithPath(r.SourceFile)
			}
			c.compiled = compiled
		}
	}
	if r.Threshold != nil {
		if r.Threshold.Count < 1 {
			return ironerr.New(ironerr.KindPolicy, "threshold.count must be >= 1").WithPath(r.SourceFile)
		}
		if r.Threshold.WindowSecs < 1 {
			return ironerr.New(ironerr.KindPolicy, "threshold.window_secs must be >= 1").WithPath(r.SourceFile)
		}
	}
	return nil
}

// catastrophicShapes is a denylist of regex substrings known to cause
// catastrophic backtracking in a backtracking engine (nested unbounded
// quantifiers). Go's RE2-based regexp doesn't backtrack, but the screen is
// kept so a malformed rule file is rejected the same way regardless of
// which regex engine eventually backs this package (spec.md §3).
var catastrophicShapes = []string{
	"(.*)*", "(.+)+", "(a+)+", "(a*)*", "([a-zA-Z]+)*",
}

func screenRegexComplexity(pattern string) error {
	for _, shape := range catastrophicShapes {
		if indexOf(pattern, shape) >= 0 {
			return fmt.Errorf("rules: pattern contains catastrophic-backtracking shape %q", shape)
		}
	}
	return nil
}
