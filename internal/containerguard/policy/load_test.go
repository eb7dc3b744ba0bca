package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func writePolicyFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
}

const validPolicyTOML = `
id = "p1"
name = "pause on high severity"
severity_threshold = "high"
priority = 1

[action]
kind = "pause"
`

func TestLoadFile_ValidPolicy(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "p1.toml", validPolicyTOML)

	p, err := LoadFile(filepath.Join(dir, "p1.toml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if p.ID != "p1" || !p.Enabled {
		t.Errorf("unexpected policy: %+v", p)
	}
}

func TestLoadFile_DefaultsEnabledTrue(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "p1.toml", validPolicyTOML)

	p, err := LoadFile(filepath.Join(dir, "p1.toml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !p.Enabled {
		t.Error("expected enabled to default to true when omitted")
	}
}

func TestLoadFile_RejectsLabelFilters(t *testing.T) {
	dir := t.TempDir()
	content := validPolicyTOML + "\n[labels]\nteam = \"security\"\n"
	writePolicyFile(t, dir, "p1.toml", content)

	if _, err := LoadFile(filepath.Join(dir, "p1.toml")); err == nil {
		t.Error("expected label filters to be rejected")
	}
}

func TestLoadFile_RejectsBadSeverity(t *testing.T) {
	dir := t.TempDir()
	content := `
id = "p1"
name = "x"
severity_threshold = "catastrophic"
[action]
kind = "pause"
`
	writePolicyFile(t, dir, "p1.toml", content)
	if _, err := LoadFile(filepath.Join(dir, "p1.toml")); err == nil {
		t.Error("expected an invalid severity_threshold to be rejected")
	}
}

func TestLoadFile_NetworkDisconnectAction(t *testing.T) {
	dir := t.TempDir()
	content := `
id = "p1"
name = "x"
severity_threshold = "low"
[action]
kind = "network_disconnect"
networks = ["bridge"]
`
	writePolicyFile(t, dir, "p1.toml", content)
	p, err := LoadFile(filepath.Join(dir, "p1.toml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if p.Action.Kind != ActionNetworkDisconnect || len(p.Action.Networks) != 1 {
		t.Errorf("unexpected action: %+v", p.Action)
	}
}

func TestLoadDir_LoadsAllValidFilesAndSkipsNonToml(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "p1.toml", validPolicyTOML)
	writePolicyFile(t, dir, "notes.txt", "not a policy")

	policies, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}
}

func TestLoadDir_DuplicateIDIsRejected(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "p1.toml", validPolicyTOML)
	writePolicyFile(t, dir, "p2.toml", validPolicyTOML) // same id = "p1"

	policies, err := LoadDir(dir)
	if err == nil {
		t.Fatal("expected a duplicate policy id to produce an error")
	}
	if len(policies) != 1 {
		t.Errorf("expected the first-loaded policy to still be returned, got %d", len(policies))
	}
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nonexistent")); err == nil {
		t.Error("expected a missing directory to be an error")
	}
}
