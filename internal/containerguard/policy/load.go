package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

// tomlPolicy mirrors the on-disk policy file shape.
type tomlPolicy struct {
	ID                string            `toml:"id"`
	Name              string            `toml:"name"`
	Enabled           *bool             `toml:"enabled"`
	SeverityThreshold string            `toml:"severity_threshold"`
	Priority          int               `toml:"priority"`
	Labels            map[string]string `toml:"labels"`
	TargetFilter      tomlTargetFilter  `toml:"target_filter"`
	Action            tomlAction        `toml:"action"`
}

type tomlTargetFilter struct {
	ContainerNames []string `toml:"container_names"`
	ImagePatterns  []string `toml:"image_patterns"`
}

type tomlAction struct {
	Kind     string   `toml:"kind"`
	Networks []string `toml:"networks"`
}

// MaxFileBytes is the per-policy-file size cap (spec.md §4.5, §8).
const MaxFileBytes = 10 * 1024 * 1024

// MaxPolicies is the total loaded policy count cap (spec.md §4.5).
const MaxPolicies = 1000

// LoadDir canonicalizes dir once before iteration (spec.md §4.5's
// TOCTOU-narrow invariant), rejects anything a symlinked policy file
// resolves to outside that canonical base, and parses every .toml file
// as one policy.
func LoadDir(dir string) ([]*Policy, error) {
	base, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindPolicy, "canonicalize policy directory", err).WithPath(dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindPolicy, "read policy directory", err).WithPath(dir)
	}

	var policies []*Policy
	var loadErrs []string
	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: resolve symlink: %v", path, err))
			continue
		}
		if !isWithinBase(base, resolved) {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: resolves outside policy directory (rejected)", path))
			continue
		}

		if len(policies) >= MaxPolicies {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: skipped, policy count cap (%d) reached", path, MaxPolicies))
			continue
		}

		p, err := LoadFile(path)
		if err != nil {
			loadErrs = append(loadErrs, err.Error())
			continue
		}
		if prior, dup := seen[p.ID]; dup {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: duplicate policy id %q (already defined in %s)", path, p.ID, prior))
			continue
		}
		seen[p.ID] = path
		policies = append(policies, p)
	}

	if len(loadErrs) > 0 {
		return policies, ironerr.New(ironerr.KindPolicy,
			fmt.Sprintf("%d policy file(s) failed to load:\n  - %s", len(loadErrs), strings.Join(loadErrs, "\n  - "))).
			WithPath(dir)
	}
	return policies, nil
}

func isWithinBase(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// LoadFile loads and validates a single policy file.
func LoadFile(path string) (*Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindPolicy, "stat policy file", err).WithPath(path)
	}
	if info.Size() > MaxFileBytes {
		return nil, ironerr.New(ironerr.KindInput,
			fmt.Sprintf("policy file exceeds %d bytes", MaxFileBytes)).WithPath(path)
	}

	var tp tomlPolicy
	if _, err := toml.DecodeFile(path, &tp); err != nil {
		return nil, ironerr.Wrap(ironerr.KindPolicy, "parse policy file", err).WithPath(path)
	}

	if len(tp.Labels) > 0 {
		return nil, ironerr.New(ironerr.KindPolicy,
			"label filters are not supported and are rejected at load to avoid silent pass-through").
			WithPath(path)
	}

	sev, err := events.ParseSeverity(tp.SeverityThreshold)
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindPolicy, "invalid severity_threshold", err).WithPath(path)
	}

	action, err := toAction(tp.Action)
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindPolicy, "invalid action", err).WithPath(path)
	}

	enabled := true
	if tp.Enabled != nil {
		enabled = *tp.Enabled
	}

	p := &Policy{
		ID:                tp.ID,
		Name:              tp.Name,
		Enabled:           enabled,
		SeverityThreshold: sev,
		Priority:          tp.Priority,
		Filter: TargetFilter{
			ContainerNames: tp.TargetFilter.ContainerNames,
			ImagePatterns:  tp.TargetFilter.ImagePatterns,
		},
		Action:     action,
		SourceFile: path,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func toAction(a tomlAction) (Action, error) {
	switch strings.ToLower(a.Kind) {
	case "pause":
		return Action{Kind: ActionPause}, nil
	case "stop":
		return Action{Kind: ActionStop}, nil
	case "networkdisconnect", "network_disconnect":
		return Action{Kind: ActionNetworkDisconnect, Networks: a.Networks}, nil
	default:
		return Action{}, fmt.Errorf("unknown action kind %q", a.Kind)
	}
}
