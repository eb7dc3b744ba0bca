// Package policy implements the container-guard policy engine: TOML
// policy loading, validation, and severity/glob/priority evaluation
// (spec.md §4.5).
package policy

import (
	"fmt"
	"sort"

	"github.com/gobwas/glob"

	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

// MaxGlobPatternLen bounds TargetFilter glob pattern length, capping
// backtracking risk on operator- (or attacker-) authored policy files
// (spec.md §4.5), mirroring MaxRegexLen in rules.Rule.
const MaxGlobPatternLen = 256

// ActionKind is the isolation action discriminant (spec.md §3).
type ActionKind uint8

const (
	ActionPause ActionKind = iota
	ActionStop
	ActionNetworkDisconnect
)

// Action is the isolation action a matching policy prescribes.
type Action struct {
	Kind     ActionKind
	Networks []string // only meaningful for ActionNetworkDisconnect
}

// TargetFilter selects candidate containers by name/image glob.
// An empty list on either dimension matches all (spec.md §4.5).
type TargetFilter struct {
	ContainerNames []string
	ImagePatterns  []string

	compiledNames  []glob.Glob
	compiledImages []glob.Glob
}

// Policy is one loaded, validated policy (spec.md §3).
type Policy struct {
	ID                string
	Name              string
	Enabled           bool
	SeverityThreshold events.Severity
	Priority          int
	Filter            TargetFilter
	Action            Action

	SourceFile string
}

// Candidate is a container considered for a policy's action.
type Candidate struct {
	ID    string
	Name  string
	Image string
}

// Select iterates enabled policies in ascending priority order. For the
// first policy whose filter matches at least one candidate at or above its
// severity threshold, it returns that policy and the selected candidate —
// the lexicographically-first-by-id match, for determinism (spec.md
// §4.5). Returns ok=false if no policy matches.
func Select(policies []*Policy, severity events.Severity, candidates []Candidate) (*Policy, Candidate, bool) {
	sorted := make([]*Policy, len(policies))
	copy(sorted, policies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	for _, p := range sorted {
		if !p.Enabled {
			continue
		}
		if severity < p.SeverityThreshold {
			continue
		}
		matched := matchingCandidates(p.Filter, candidates)
		if len(matched) == 0 {
			continue
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
		return p, matched[0], true
	}
	return nil, Candidate{}, false
}

func matchingCandidates(f TargetFilter, candidates []Candidate) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if matchesFilter(f, c) {
			out = append(out, c)
		}
	}
	return out
}

func matchesFilter(f TargetFilter, c Candidate) bool {
	if len(f.compiledNames) > 0 {
		if !anyMatch(f.compiledNames, c.Name) {
			return false
		}
	}
	if len(f.compiledImages) > 0 {
		if !anyMatch(f.compiledImages, c.Image) {
			return false
		}
	}
	return true
}

func anyMatch(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// compile precompiles the filter's glob patterns. Called once at load
// time, not per evaluation.
func (f *TargetFilter) compile() error {
	for _, pattern := range f.ContainerNames {
		if len(pattern) > MaxGlobPatternLen {
			return fmt.Errorf("container_names glob %q exceeds MaxGlobPatternLen (%d)", pattern, MaxGlobPatternLen)
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid container_names glob %q: %w", pattern, err)
		}
		f.compiledNames = append(f.compiledNames, g)
	}
	for _, pattern := range f.ImagePatterns {
		if len(pattern) > MaxGlobPatternLen {
			return fmt.Errorf("image_patterns glob %q exceeds MaxGlobPatternLen (%d)", pattern, MaxGlobPatternLen)
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid image_patterns glob %q: %w", pattern, err)
		}
		f.compiledImages = append(f.compiledImages, g)
	}
	return nil
}

func validateAction(a Action) error {
	switch a.Kind {
	case ActionPause, ActionStop:
		return nil
	case ActionNetworkDisconnect:
		if len(a.Networks) == 0 {
			return fmt.Errorf("network_disconnect action requires at least one network")
		}
		return nil
	default:
		return fmt.Errorf("unknown action discriminant %d", a.Kind)
	}
}

func (p *Policy) validate() error {
	if p.ID == "" {
		return ironerr.New(ironerr.KindPolicy, "policy id must not be empty").WithPath(p.SourceFile)
	}
	if p.Name == "" {
		return ironerr.New(ironerr.KindPolicy, "policy name must not be empty").WithPath(p.SourceFile)
	}
	if err := validateAction(p.Action); err != nil {
		return ironerr.Wrap(ironerr.KindPolicy, "invalid action", err).WithPath(p.SourceFile)
	}
	if err := p.Filter.compile(); err != nil {
		return ironerr.Wrap(ironerr.KindPolicy, "invalid target filter", err).WithPath(p.SourceFile)
	}
	return nil
}
