package events

import "testing"

func TestFields_Set_RejectsDuplicateKey(t *testing.T) {
	f := make(Fields)
	if err := f.Set("user", "root"); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := f.Set("user", "admin"); err == nil {
		t.Error("expected duplicate key to be rejected")
	}
	if v, _ := f.Get("user"); v != "root" {
		t.Errorf("expected the original value to survive a rejected duplicate Set, got %q", v)
	}
}

func TestFields_Get_MissingKey(t *testing.T) {
	f := make(Fields)
	if _, ok := f.Get("absent"); ok {
		t.Error("expected ok=false for a missing key")
	}
}

func TestSDField(t *testing.T) {
	if got, want := SDField("origin", "ip"), "sd_origin_ip"; got != want {
		t.Errorf("SDField = %q, want %q", got, want)
	}
}

func TestNewLogEntry_InitializesFields(t *testing.T) {
	e := NewLogEntry("syslog")
	if e.Fields == nil {
		t.Fatal("expected Fields to be non-nil")
	}
	if err := e.Fields.Set("k", "v"); err != nil {
		t.Fatalf("Set on fresh entry: %v", err)
	}
}
