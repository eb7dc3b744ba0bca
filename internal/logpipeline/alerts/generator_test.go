package alerts

import (
	"testing"
	"time"

	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/rules"
)

func candidate(fields map[string]string) rules.Candidate {
	entry := events.NewLogEntry("test")
	for k, v := range fields {
		entry.Fields[k] = v
	}
	return rules.Candidate{
		Rule: &rules.Rule{ID: "r1", Title: "ssh brute force", Severity: events.SeverityHigh},
		Entry: entry,
	}
}

func TestGenerator_Process_EmitsFirstOccurrence(t *testing.T) {
	g := New(Config{DedupWindow: time.Minute, RateLimitPerMinute: 10}, nil, nil)

	alert := g.Process(candidate(map[string]string{"source_ip": "10.0.0.5"}), time.Now())
	if alert == nil {
		t.Fatal("expected an alert for the first occurrence")
	}
	if alert.SourceIP == nil || alert.SourceIP.String() != "10.0.0.5" {
		t.Errorf("SourceIP = %v, want 10.0.0.5", alert.SourceIP)
	}
}

func TestGenerator_Process_DedupsWithinWindow(t *testing.T) {
	var deduped int
	g := New(Config{DedupWindow: time.Minute, RateLimitPerMinute: 10}, func() { deduped++ }, nil)

	now := time.Now()
	c := candidate(nil)
	if a := g.Process(c, now); a == nil {
		t.Fatal("expected first call to emit")
	}
	if a := g.Process(c, now.Add(time.Second)); a != nil {
		t.Error("expected second call within the dedup window to be suppressed")
	}
	if deduped != 1 {
		t.Errorf("onDeduped called %d times, want 1", deduped)
	}
}

func TestGenerator_Process_ReEmitsAfterDedupWindowExpires(t *testing.T) {
	g := New(Config{DedupWindow: time.Minute, RateLimitPerMinute: 10}, nil, nil)
	now := time.Now()
	c := candidate(nil)

	g.Process(c, now)
	if a := g.Process(c, now.Add(2*time.Minute)); a == nil {
		t.Error("expected a new alert once the dedup window has passed")
	}
}

func TestGenerator_Process_RateLimitSuppressesExcess(t *testing.T) {
	var limited int
	g := New(Config{DedupWindow: 0, RateLimitPerMinute: 2}, nil, func() { limited++ })

	now := time.Now()
	g.Process(candidate(nil), now)
	g.Process(candidate(nil), now.Add(time.Millisecond))
	a := g.Process(candidate(nil), now.Add(2*time.Millisecond))

	if a != nil {
		t.Error("expected the third call within the same minute to be rate-limited")
	}
	if limited != 1 {
		t.Errorf("onRateLimited called %d times, want 1", limited)
	}
}

func TestGenerator_Process_GroupsDedupByThresholdFieldValue(t *testing.T) {
	g := New(Config{DedupWindow: time.Minute, RateLimitPerMinute: 10}, nil, nil)
	r := &rules.Rule{ID: "r1", Title: "t", Severity: events.SeverityHigh, Threshold: &rules.Threshold{Field: "source_ip"}}

	e1 := events.NewLogEntry("t")
	e1.Fields["source_ip"] = "10.0.0.1"
	e2 := events.NewLogEntry("t")
	e2.Fields["source_ip"] = "10.0.0.2"

	now := time.Now()
	if a := g.Process(rules.Candidate{Rule: r, Entry: e1}, now); a == nil {
		t.Fatal("expected the first group key to emit")
	}
	if a := g.Process(rules.Candidate{Rule: r, Entry: e2}, now); a == nil {
		t.Error("expected a distinct group key to emit independently, not be deduped against the first")
	}
}

func TestGenerator_Evict_RemovesExpiredEntries(t *testing.T) {
	g := New(Config{DedupWindow: time.Minute, RateLimitPerMinute: 10}, nil, nil)
	now := time.Now()
	g.Process(candidate(nil), now)

	if len(g.lastEmit) != 1 {
		t.Fatalf("expected 1 dedup entry before eviction, got %d", len(g.lastEmit))
	}

	g.Evict(now.Add(2 * time.Minute))
	if len(g.lastEmit) != 0 {
		t.Errorf("expected dedup entry to be evicted after the window passed, got %d remaining", len(g.lastEmit))
	}
}

func TestExtractTargetIP_PrefersCanonicalFieldNames(t *testing.T) {
	f := events.Fields{"dst_ip": "192.168.1.1"}
	addr, ok := extractTargetIP(f)
	if !ok || addr.String() != "192.168.1.1" {
		t.Errorf("extractTargetIP = %v, %v", addr, ok)
	}
}

func TestExtractSourceIP_MalformedValueIgnored(t *testing.T) {
	f := events.Fields{"source_ip": "not-an-ip"}
	if _, ok := extractSourceIP(f); ok {
		t.Error("expected a malformed IP value to be ignored, not matched")
	}
}
