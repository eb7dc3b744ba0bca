package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/channelfabric"
	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/sbom/vulnindex"
)

func openTestVulnIndex(t *testing.T) *vulnindex.Index {
	t.Helper()
	idx, err := vulnindex.Open(filepath.Join(t.TempDir(), "vulnindex.db"))
	if err != nil {
		t.Fatalf("vulnindex.Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestDiscoverLockfiles_MatchesGlobRecursively(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "svc-a")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	target := filepath.Join(sub, "package-lock.json")
	if err := os.WriteFile(target, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	found, err := discoverLockfiles([]string{filepath.Join(dir, "**", "package-lock.json")})
	if err != nil {
		t.Fatalf("discoverLockfiles: %v", err)
	}
	if len(found) != 1 || found[0] != target {
		t.Errorf("discoverLockfiles = %+v, want [%s]", found, target)
	}
}

func TestDiscoverLockfiles_DedupsAcrossOverlappingPatterns(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "package-lock.json")
	if err := os.WriteFile(target, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	found, err := discoverLockfiles([]string{
		filepath.Join(dir, "package-lock.json"),
		filepath.Join(dir, "*.json"),
	})
	if err != nil {
		t.Fatalf("discoverLockfiles: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("expected the same file found via two patterns to be deduped, got %d", len(found))
	}
}

func TestGlobRoot(t *testing.T) {
	cases := map[string]string{
		"/a/b/c.json":        "/a/b/c.json",
		"/a/b/**/*.json":     "/a/b",
		"*.json":             ".",
		"relative/dir/*.txt": "relative/dir",
	}
	for pattern, want := range cases {
		if got := globRoot(pattern); got != want {
			t.Errorf("globRoot(%q) = %q, want %q", pattern, got, want)
		}
	}
}

func TestScanner_ScanOnce_RaisesAlertForVulnerablePackage(t *testing.T) {
	dir := t.TempDir()
	lockfilePath := filepath.Join(dir, "package-lock.json")
	content := `{"packages":{"":{"version":""},"node_modules/left-pad":{"version":"1.0.0"}}}`
	if err := os.WriteFile(lockfilePath, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	idx := openTestVulnIndex(t)
	if err := idx.Put("npm", "left-pad", []vulnindex.Record{
		{VulnID: "CVE-2024-0001", AffectedRange: "<2.0.0", Severity: events.SeverityHigh, Summary: "prototype pollution"},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	fab := channelfabric.New()
	s := New(zap.NewNop(), Config{
		LockfileGlobs:      []string{lockfilePath},
		AlertSeverityFloor: events.SeverityMedium,
	}, nil, idx, fab.AlertSender(channelfabric.DropCounters{}))

	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}

	select {
	case alert := <-fab.AlertReceiver().C():
		if alert.RuleName != "CVE-2024-0001" {
			t.Errorf("unexpected alert: %+v", alert)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an alert to be raised for the vulnerable package")
	}

	scans := s.LastScans()
	if len(scans) != 1 || scans[0].FindingCount != 1 {
		t.Errorf("unexpected scan summary: %+v", scans)
	}
}

func TestScanner_ScanOnce_NoAlertBelowSeverityFloor(t *testing.T) {
	dir := t.TempDir()
	lockfilePath := filepath.Join(dir, "package-lock.json")
	content := `{"packages":{"node_modules/left-pad":{"version":"1.0.0"}}}`
	if err := os.WriteFile(lockfilePath, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	idx := openTestVulnIndex(t)
	if err := idx.Put("npm", "left-pad", []vulnindex.Record{
		{VulnID: "CVE-2024-0002", AffectedRange: "<2.0.0", Severity: events.SeverityLow},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	fab := channelfabric.New()
	s := New(zap.NewNop(), Config{
		LockfileGlobs:      []string{lockfilePath},
		AlertSeverityFloor: events.SeverityHigh,
	}, nil, idx, fab.AlertSender(channelfabric.DropCounters{}))

	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}

	select {
	case alert := <-fab.AlertReceiver().C():
		t.Fatalf("expected no alert below the severity floor, got %+v", alert)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScanner_ScanOnce_MissingLockfileIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	idx := openTestVulnIndex(t)
	fab := channelfabric.New()
	s := New(zap.NewNop(), Config{
		LockfileGlobs:      []string{filepath.Join(dir, "package-lock.json")},
		AlertSeverityFloor: events.SeverityMedium,
	}, nil, idx, fab.AlertSender(channelfabric.DropCounters{}))

	if err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("expected a missing lockfile glob match to not be fatal: %v", err)
	}
	if len(s.LastScans()) != 0 {
		t.Errorf("expected no scans when no lockfile exists, got %+v", s.LastScans())
	}
}
