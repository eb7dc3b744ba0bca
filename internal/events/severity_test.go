package events

import "testing"

func TestSeverity_String(t *testing.T) {
	cases := map[Severity]string{
		SeverityInfo:     "info",
		SeverityLow:      "low",
		SeverityMedium:   "medium",
		SeverityHigh:     "high",
		SeverityCritical: "critical",
		Severity(99):     "unknown(99)",
	}
	for sev, want := range cases {
		if got := sev.String(); got != want {
			t.Errorf("Severity(%d).String() = %q, want %q", sev, got, want)
		}
	}
}

func TestParseSeverity_CanonicalAndAliases(t *testing.T) {
	cases := map[string]Severity{
		"info":     SeverityInfo,
		"LOW":      SeverityLow,
		" medium ": SeverityMedium,
		"med":      SeverityMedium,
		"warn":     SeverityMedium,
		"Warning":  SeverityMedium,
		"high":     SeverityHigh,
		"critical": SeverityCritical,
		"CRIT":     SeverityCritical,
	}
	for in, want := range cases {
		got, err := ParseSeverity(in)
		if err != nil {
			t.Fatalf("ParseSeverity(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseSeverity(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseSeverity_RejectsUnknown(t *testing.T) {
	if _, err := ParseSeverity("catastrophic"); err == nil {
		t.Error("expected an error for an unrecognized severity name")
	}
}

func TestSeverity_AtLeast(t *testing.T) {
	if !SeverityHigh.AtLeast(SeverityMedium) {
		t.Error("expected high to be at least medium")
	}
	if SeverityLow.AtLeast(SeverityHigh) {
		t.Error("expected low to not be at least high")
	}
	if !SeverityMedium.AtLeast(SeverityMedium) {
		t.Error("expected equal severities to satisfy AtLeast")
	}
}
