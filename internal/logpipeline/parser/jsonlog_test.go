package parser

import "testing"

func TestJSONParser_ParsesFlatFields(t *testing.T) {
	line := []byte(`{"hostname":"h1","program":"sshd","pid":99,"severity":"high","message":"bad login","fields":{"user":"root"}}`)
	entry, err := NewJSONParser(0).Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if entry.Hostname != "h1" || entry.Program != "sshd" || entry.PID != 99 {
		t.Errorf("unexpected header fields: %+v", entry)
	}
	if entry.Severity.String() != "high" {
		t.Errorf("Severity = %v, want high", entry.Severity)
	}
	if v, _ := entry.Fields.Get("user"); v != "root" {
		t.Errorf("fields.user = %q, want root", v)
	}
}

func TestJSONParser_FlattensNestedObjects(t *testing.T) {
	line := []byte(`{"message":"x","fields":{"request":{"method":"GET","path":"/healthz"}}}`)
	entry, err := NewJSONParser(0).Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v, ok := entry.Fields.Get("request.method"); !ok || v != "GET" {
		t.Errorf("request.method = %q, ok=%v", v, ok)
	}
	if v, ok := entry.Fields.Get("request.path"); !ok || v != "/healthz" {
		t.Errorf("request.path = %q, ok=%v", v, ok)
	}
}

func TestJSONParser_RejectsExcessiveDepth(t *testing.T) {
	line := []byte(`{"message":"x","fields":{"a":{"b":{"c":"d"}}}}`)
	if _, err := NewJSONParser(1).Parse(line); err == nil {
		t.Error("expected nesting past maxDepth to be rejected")
	}
}

func TestJSONParser_RejectsInvalidJSON(t *testing.T) {
	if _, err := NewJSONParser(0).Parse([]byte("{not json")); err == nil {
		t.Error("expected malformed JSON to be rejected")
	}
}

func TestJSONParser_RejectsEmptyObject(t *testing.T) {
	if _, err := NewJSONParser(0).Parse([]byte(`{}`)); err == nil {
		t.Error("expected an object with no hostname/program/message to be rejected")
	}
}

func TestJSONParser_UnknownSeverityFallsBackToInfo(t *testing.T) {
	line := []byte(`{"message":"x","severity":"not-a-level"}`)
	entry, err := NewJSONParser(0).Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if entry.Severity.String() != "info" {
		t.Errorf("Severity = %v, want info fallback", entry.Severity)
	}
}
