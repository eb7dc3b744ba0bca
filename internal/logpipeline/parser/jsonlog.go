package parser

import (
	"encoding/json"
	"fmt"

	"github.com/dongwonkwak/ironpost/internal/events"
)

// JSONParser parses newline-delimited JSON log objects:
//
//	{"hostname":"...", "program":"...", "pid":123, "severity":"high",
//	 "message":"...", "fields": {"k": "v", ...}}
//
// Nested objects inside "fields" are flattened to dotted keys up to
// maxDepth levels (spec.md §4.4: "JSON nesting depth ≤ 32 levels").
type JSONParser struct {
	maxDepth int
}

// NewJSONParser builds a JSONParser. maxDepth<=0 uses MaxJSONDepth.
func NewJSONParser(maxDepth int) JSONParser {
	if maxDepth <= 0 {
		maxDepth = MaxJSONDepth
	}
	return JSONParser{maxDepth: maxDepth}
}

func (JSONParser) Name() string { return "json" }

type jsonLogLine struct {
	Hostname string                 `json:"hostname"`
	Program  string                 `json:"program"`
	PID      int                    `json:"pid"`
	Severity string                 `json:"severity"`
	Message  string                 `json:"message"`
	Fields   map[string]interface{} `json:"fields"`
}

func (p JSONParser) Parse(line []byte) (events.LogEntry, error) {
	var raw jsonLogLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return events.LogEntry{}, fmt.Errorf("invalid json: %w", err)
	}
	if raw.Message == "" && raw.Hostname == "" && raw.Program == "" {
		return events.LogEntry{}, fmt.Errorf("empty log object")
	}

	sev, err := events.ParseSeverity(raw.Severity)
	if err != nil {
		sev = events.SeverityInfo
	}

	entry := events.NewLogEntry("log_pipeline.parser.json")
	entry.Hostname = raw.Hostname
	entry.Program = raw.Program
	entry.PID = raw.PID
	entry.Severity = sev
	entry.Message = raw.Message

	if err := flatten("", raw.Fields, entry.Fields, p.maxDepth, 0); err != nil {
		return events.LogEntry{}, err
	}
	return entry, nil
}

// flatten materializes nested JSON objects as dotted-key string fields,
// rejecting input past maxDepth (spec.md §4.4 size cap).
func flatten(prefix string, obj map[string]interface{}, out events.Fields, maxDepth, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("json nesting exceeds %d levels", maxDepth)
	}
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]interface{}:
			if err := flatten(key, t, out, maxDepth, depth+1); err != nil {
				return err
			}
		case string:
			_ = out.Set(key, t)
		default:
			_ = out.Set(key, fmt.Sprintf("%v", t))
		}
	}
	return nil
}
