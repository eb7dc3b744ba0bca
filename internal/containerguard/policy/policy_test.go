package policy

import (
	"strings"
	"testing"

	"github.com/dongwonkwak/ironpost/internal/events"
)

func mustPolicy(t *testing.T, p *Policy) *Policy {
	t.Helper()
	if err := p.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return p
}

func TestSelect_PicksLowestPriorityMatch(t *testing.T) {
	low := mustPolicy(t, &Policy{
		ID: "p-low", Name: "low priority wins", Enabled: true, Priority: 1,
		SeverityThreshold: events.SeverityLow,
		Action:            Action{Kind: ActionPause},
	})
	high := mustPolicy(t, &Policy{
		ID: "p-high", Name: "higher priority number", Enabled: true, Priority: 5,
		SeverityThreshold: events.SeverityLow,
		Action:            Action{Kind: ActionStop},
	})

	candidates := []Candidate{{ID: "c1", Name: "web", Image: "nginx"}}

	picked, cand, ok := Select([]*Policy{high, low}, events.SeverityHigh, candidates)
	if !ok {
		t.Fatal("expected a match")
	}
	if picked.ID != "p-low" {
		t.Errorf("picked = %q, want p-low (lower Priority value wins)", picked.ID)
	}
	if cand.ID != "c1" {
		t.Errorf("candidate = %q, want c1", cand.ID)
	}
}

func TestSelect_SkipsDisabledPolicies(t *testing.T) {
	disabled := mustPolicy(t, &Policy{
		ID: "p1", Name: "disabled", Enabled: false, Priority: 1,
		Action: Action{Kind: ActionPause},
	})
	candidates := []Candidate{{ID: "c1", Name: "web"}}

	_, _, ok := Select([]*Policy{disabled}, events.SeverityCritical, candidates)
	if ok {
		t.Error("expected disabled policy to never match")
	}
}

func TestSelect_SkipsBelowSeverityThreshold(t *testing.T) {
	p := mustPolicy(t, &Policy{
		ID: "p1", Name: "high only", Enabled: true, Priority: 1,
		SeverityThreshold: events.SeverityHigh,
		Action:            Action{Kind: ActionPause},
	})
	candidates := []Candidate{{ID: "c1", Name: "web"}}

	_, _, ok := Select([]*Policy{p}, events.SeverityLow, candidates)
	if ok {
		t.Error("expected a below-threshold severity to be skipped")
	}
}

func TestSelect_FilterByContainerNameGlob(t *testing.T) {
	p := mustPolicy(t, &Policy{
		ID: "p1", Name: "web only", Enabled: true, Priority: 1,
		Filter: TargetFilter{ContainerNames: []string{"web-*"}},
		Action: Action{Kind: ActionPause},
	})
	candidates := []Candidate{
		{ID: "c1", Name: "db-primary"},
		{ID: "c2", Name: "web-frontend"},
	}

	_, cand, ok := Select([]*Policy{p}, events.SeverityInfo, candidates)
	if !ok {
		t.Fatal("expected a match against the web-* glob")
	}
	if cand.ID != "c2" {
		t.Errorf("matched candidate = %q, want c2", cand.ID)
	}
}

func TestSelect_TieBreaksByLexicographicID(t *testing.T) {
	p := mustPolicy(t, &Policy{
		ID: "p1", Name: "any", Enabled: true, Priority: 1,
		Action: Action{Kind: ActionPause},
	})
	candidates := []Candidate{
		{ID: "zeta", Name: "z"},
		{ID: "alpha", Name: "a"},
	}

	_, cand, ok := Select([]*Policy{p}, events.SeverityInfo, candidates)
	if !ok {
		t.Fatal("expected a match")
	}
	if cand.ID != "alpha" {
		t.Errorf("tie-broken candidate = %q, want alpha", cand.ID)
	}
}

func TestSelect_NoMatchReturnsFalse(t *testing.T) {
	_, _, ok := Select(nil, events.SeverityCritical, []Candidate{{ID: "c1"}})
	if ok {
		t.Error("expected no policies to yield ok=false")
	}
}

func TestPolicy_Validate_RejectsEmptyID(t *testing.T) {
	p := &Policy{Name: "x", Action: Action{Kind: ActionPause}}
	if err := p.validate(); err == nil {
		t.Error("expected empty id to be rejected")
	}
}

func TestPolicy_Validate_NetworkDisconnectRequiresNetworks(t *testing.T) {
	p := &Policy{ID: "p1", Name: "x", Action: Action{Kind: ActionNetworkDisconnect}}
	if err := p.validate(); err == nil {
		t.Error("expected network_disconnect with no networks to be rejected")
	}

	p.Action.Networks = []string{"bridge"}
	if err := p.validate(); err != nil {
		t.Errorf("expected validation to succeed once a network is set: %v", err)
	}
}

func TestPolicy_Validate_RejectsInvalidGlob(t *testing.T) {
	p := &Policy{
		ID: "p1", Name: "x",
		Filter: TargetFilter{ContainerNames: []string{"["}},
		Action: Action{Kind: ActionPause},
	}
	if err := p.validate(); err == nil {
		t.Error("expected an invalid glob pattern to be rejected")
	}
}

func TestPolicy_Validate_GlobPatternLengthBoundary(t *testing.T) {
	atLimit := &Policy{
		ID: "p-at-limit", Name: "x",
		Filter: TargetFilter{ContainerNames: []string{strings.Repeat("a", MaxGlobPatternLen)}},
		Action: Action{Kind: ActionPause},
	}
	if err := atLimit.validate(); err != nil {
		t.Errorf("expected a %d-byte glob to be accepted, got: %v", MaxGlobPatternLen, err)
	}

	overLimit := &Policy{
		ID: "p-over-limit", Name: "x",
		Filter: TargetFilter{ContainerNames: []string{strings.Repeat("a", MaxGlobPatternLen+1)}},
		Action: Action{Kind: ActionPause},
	}
	if err := overLimit.validate(); err == nil {
		t.Errorf("expected a %d-byte glob to be rejected", MaxGlobPatternLen+1)
	}
}
