package policy

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewHolder_LoadsInitialPolicies(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "p1.toml", validPolicyTOML)

	h, err := NewHolder(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	if len(h.Policies()) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(h.Policies()))
	}
}

func TestHolder_WatchReload_PicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "p1.toml", validPolicyTOML)

	h, err := NewHolder(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	if err := h.WatchReload(); err != nil {
		t.Fatalf("WatchReload: %v", err)
	}
	defer h.Close()

	second := `
id = "p2"
name = "stop on critical"
severity_threshold = "critical"
priority = 2

[action]
kind = "stop"
`
	writePolicyFile(t, dir, filepath.Base("p2.toml"), second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.Policies()) == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected the policy set to grow to 2 after a new file appeared, got %d", len(h.Policies()))
}

func TestHolder_Close_WithoutWatchIsNoop(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "p1.toml", validPolicyTOML)

	h, err := NewHolder(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
