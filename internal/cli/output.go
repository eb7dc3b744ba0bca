package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

// OutputFormat selects how a command renders its result.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates the --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatText, "":
		return OutputFormatText, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// printJSON marshals v as indented JSON to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// newTable returns a go-pretty table writer bound to stdout with the
// rounded style used across every text-mode command.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	return t
}

// tableRow builds a table.Row from heterogeneous values, stringifying
// each with fmt.Sprint so callers can mix strings, bools, and durations
// in one row without per-field conversion.
func tableRow(vals ...any) table.Row {
	row := make(table.Row, len(vals))
	for i, v := range vals {
		row[i] = fmt.Sprint(v)
	}
	return row
}
