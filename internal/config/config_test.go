package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults_PassValidation(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Errorf("Defaults() should validate cleanly, got: %v", err)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	cfg.General.PIDFile = "relative/path.pid"
	cfg.Metrics.ListenAddr = ""

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected validation to fail")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "pid_file", "listen_addr"} {
		if !contains(msg, want) {
			t.Errorf("expected error message to mention %q, got: %s", want, msg)
		}
	}
}

func TestValidate_EBPFRingBufferMustBePowerOfTwo(t *testing.T) {
	cfg := Defaults()
	cfg.EBPF.RingBufferSizeBytes = 1000
	if err := Validate(&cfg); err == nil {
		t.Error("expected non-power-of-two ring buffer size to be rejected")
	}

	cfg.EBPF.RingBufferSizeBytes = 1 << 16
	if err := Validate(&cfg); err != nil {
		t.Errorf("expected power-of-two ring buffer size to validate, got: %v", err)
	}
}

func TestValidate_DisabledSectionsSkipChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Container.Enabled = false
	cfg.Container.PolicyDir = "relative"
	cfg.Container.DockerHost = ""

	if err := Validate(&cfg); err != nil {
		t.Errorf("expected disabled container section to skip its checks, got: %v", err)
	}
}

func TestValidate_NetworkDisconnectLikeBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Container.Executor.MaxAttempts = 50
	if err := Validate(&cfg); err == nil {
		t.Error("expected max_attempts out of [1,10] to be rejected")
	}
}

func TestLoad_AppliesFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[general]
log_level = "debug"

[ebpf]
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("IRONPOST_GENERAL_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.LogLevel != "warn" {
		t.Errorf("expected env override to win over file, got %q", cfg.General.LogLevel)
	}
	if cfg.EBPF.Enabled {
		t.Error("expected file value ebpf.enabled=false to be applied")
	}
	if cfg.General.ShutdownGracePeriod != 20*time.Second {
		t.Errorf("expected unset fields to retain their default, got %v", cfg.General.ShutdownGracePeriod)
	}
}

func TestLoad_RejectsInvalidResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[general]
log_level = "not-a-level"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected Load to fail validation for an invalid log_level")
	}
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	if _, err := Load("/nonexistent/ironpost/config.toml"); err == nil {
		t.Error("expected Load to fail for a missing config file")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
