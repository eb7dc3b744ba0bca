package ironerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error_WithoutWrapped(t *testing.T) {
	e := New(KindConfig, "missing field")
	want := "config: missing field"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestError_Error_WithWrapped(t *testing.T) {
	cause := errors.New("disk full")
	e := Wrap(KindStorage, "write failed", cause)
	want := "storage: write failed: disk full"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(KindInternal, "op failed", cause)
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestError_WithField_DoesNotMutateOriginal(t *testing.T) {
	orig := New(KindPolicy, "bad rule")
	withField := orig.WithField("severity")

	if orig.Field != "" {
		t.Errorf("original Field mutated: %q", orig.Field)
	}
	if withField.Field != "severity" {
		t.Errorf("WithField Field = %q, want severity", withField.Field)
	}
}

func TestError_WithPath_DoesNotMutateOriginal(t *testing.T) {
	orig := New(KindConfig, "bad yaml")
	withPath := orig.WithPath("/etc/ironpost/rules.d/a.yaml")

	if orig.Path != "" {
		t.Errorf("original Path mutated: %q", orig.Path)
	}
	if withPath.Path != "/etc/ironpost/rules.d/a.yaml" {
		t.Errorf("WithPath Path = %q, want the rule file path", withPath.Path)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, 0},
		{"config kind", New(KindConfig, "x"), 2},
		{"policy kind", New(KindPolicy, "x"), 2},
		{"input kind", New(KindInput, "x"), 2},
		{"unreachable kind", New(KindUnreachable, "x"), 3},
		{"internal kind", New(KindInternal, "x"), 1},
		{"lifecycle kind", New(KindLifecycle, "x"), 1},
		{"wrapped via fmt", fmt.Errorf("context: %w", New(KindUnreachable, "no daemon")), 3},
		{"plain stdlib error", errors.New("unrelated"), 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
