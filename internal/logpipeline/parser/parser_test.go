package parser

import (
	"fmt"
	"testing"

	"github.com/dongwonkwak/ironpost/internal/events"
)

type stubParser struct {
	name   string
	accept bool
}

func (s stubParser) Name() string { return s.name }

func (s stubParser) Parse(line []byte) (events.LogEntry, error) {
	if !s.accept {
		return events.LogEntry{}, fmt.Errorf("stub %s rejects", s.name)
	}
	e := events.NewLogEntry(s.name)
	e.Message = string(line)
	return e, nil
}

func TestRouter_Parse_FirstSuccessWins(t *testing.T) {
	r := NewRouter(0, stubParser{name: "a", accept: false}, stubParser{name: "b", accept: true}, stubParser{name: "c", accept: true})

	entry, err := r.Parse([]byte("hello"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if entry.Meta.Producer != "b" {
		t.Errorf("expected parser b (first accepting) to win, got producer %q", entry.Meta.Producer)
	}
}

func TestRouter_Parse_AggregatesFailureReasons(t *testing.T) {
	r := NewRouter(0, stubParser{name: "a", accept: false}, stubParser{name: "b", accept: false})

	_, err := r.Parse([]byte("hello"))
	if err == nil {
		t.Fatal("expected an error when no parser accepts")
	}
	msg := err.Error()
	if !contains(msg, "a:") || !contains(msg, "b:") {
		t.Errorf("expected both parser names in the aggregate error, got: %s", msg)
	}
}

func TestRouter_Parse_RejectsOversizedLine(t *testing.T) {
	r := NewRouter(4, stubParser{name: "a", accept: true})
	if _, err := r.Parse([]byte("too long")); err == nil {
		t.Error("expected a line exceeding maxLineBytes to be rejected")
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
