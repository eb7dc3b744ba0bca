package cli

import "testing"

func TestParseOutputFormat(t *testing.T) {
	cases := map[string]OutputFormat{
		"":     OutputFormatText,
		"text": OutputFormatText,
		"json": OutputFormatJSON,
	}
	for in, want := range cases {
		got, err := ParseOutputFormat(in)
		if err != nil {
			t.Fatalf("ParseOutputFormat(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseOutputFormat(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseOutputFormat_RejectsUnknown(t *testing.T) {
	if _, err := ParseOutputFormat("xml"); err == nil {
		t.Error("expected an unknown output format to be rejected")
	}
}

func TestTableRow_StringifiesHeterogeneousValues(t *testing.T) {
	row := tableRow("name", 42, true)
	if len(row) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(row))
	}
	if row[0] != "name" || row[1] != "42" || row[2] != "true" {
		t.Errorf("row = %+v", row)
	}
}
