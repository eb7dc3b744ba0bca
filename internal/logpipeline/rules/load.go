package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

// yamlRule mirrors the on-disk rule file shape; Load converts it into the
// validated, precompiled Rule.
type yamlRule struct {
	ID         string           `yaml:"id"`
	Title      string           `yaml:"title"`
	Severity   string           `yaml:"severity"`
	Enabled    *bool            `yaml:"enabled"`
	Conditions []yamlCondition  `yaml:"conditions"`
	Threshold  *yamlThreshold   `yaml:"threshold"`
}

type yamlCondition struct {
	Field    string `yaml:"field"`
	Modifier string `yaml:"modifier"`
	Value    string `yaml:"value"`
}

type yamlThreshold struct {
	Field      string `yaml:"field"`
	Count      int    `yaml:"count"`
	WindowSecs int    `yaml:"window_secs"`
}

// LoadDir loads one rule per .yaml/.yml file in dir. A single file's
// compilation failure does not abort the whole load; all per-file errors
// are collected and returned alongside whatever rules did load
// successfully, so `ironpost rules validate` can report every problem at
// once (spec.md §4.4: "produce a structured load error identifying the
// file").
func LoadDir(dir string) ([]*Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindPolicy, "read rules directory", err).WithPath(dir)
	}

	var rules []*Rule
	var loadErrs []string
	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		r, err := LoadFile(path)
		if err != nil {
			loadErrs = append(loadErrs, err.Error())
			continue
		}
		if prior, dup := seen[r.ID]; dup {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: duplicate rule id %q (already defined in %s)", path, r.ID, prior))
			continue
		}
		seen[r.ID] = path
		rules = append(rules, r)
	}

	if len(loadErrs) > 0 {
		return rules, ironerr.New(ironerr.KindPolicy,
			fmt.Sprintf("%d rule file(s) failed to load:\n  - %s", len(loadErrs), strings.Join(loadErrs, "\n  - "))).
			WithPath(dir)
	}
	return rules, nil
}

// LoadFile loads and validates a single rule file.
func LoadFile(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindPolicy, "read rule file", err).WithPath(path)
	}

	var yr yamlRule
	if err := yaml.Unmarshal(data, &yr); err != nil {
		return nil, ironerr.Wrap(ironerr.KindPolicy, "parse rule file", err).WithPath(path)
	}

	sev, err := events.ParseSeverity(yr.Severity)
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindPolicy, "invalid severity", err).WithPath(path)
	}

	enabled := true
	if yr.Enabled != nil {
		enabled = *yr.Enabled
	}

	conditions := make([]FieldCondition, 0, len(yr.Conditions))
	for _, c := range yr.Conditions {
		mod, err := ParseModifier(c.Modifier)
		if err != nil {
			return nil, ironerr.Wrap(ironerr.KindPolicy, "invalid condition modifier", err).WithPath(path)
		}
		conditions = append(conditions, FieldCondition{Field: c.Field, Modifier: mod, Value: c.Value})
	}

	var threshold *Threshold
	if yr.Threshold != nil {
		threshold = &Threshold{
			Field:      yr.Threshold.Field,
			Count:      yr.Threshold.Count,
			WindowSecs: yr.Threshold.WindowSecs,
		}
	}

	r := &Rule{
		ID:         yr.ID,
		Title:      yr.Title,
		Severity:   sev,
		Enabled:    enabled,
		Conditions: conditions,
		Threshold:  threshold,
		SourceFile: path,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}
