package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dongwonkwak/ironpost/internal/events"
)

// SyslogParser parses RFC 5424-shaped syslog lines:
//
//	<PRI>VERSION TIMESTAMP HOSTNAME APP-NAME PROCID MSGID [SD-ID ...] MSG
//
// PRI encodes facility*8+severity and must be in [0, 191] (spec.md §8
// boundary: 191 accepted, 192 rejected).
type SyslogParser struct{}

func (SyslogParser) Name() string { return "syslog" }

func (SyslogParser) Parse(line []byte) (events.LogEntry, error) {
	s := string(line)
	if len(s) == 0 || s[0] != '<' {
		return events.LogEntry{}, fmt.Errorf("no leading PRI")
	}
	end := strings.IndexByte(s, '>')
	if end < 1 {
		return events.LogEntry{}, fmt.Errorf("unterminated PRI")
	}
	pri, err := strconv.Atoi(s[1:end])
	if err != nil {
		return events.LogEntry{}, fmt.Errorf("non-numeric PRI: %w", err)
	}
	if pri < 0 || pri > 191 {
		return events.LogEntry{}, fmt.Errorf("PRI %d out of range [0,191]", pri)
	}
	severity := priToSeverity(pri % 8)

	rest := s[end+1:]
	fields := strings.SplitN(rest, " ", 7)
	if len(fields) < 7 {
		return events.LogEntry{}, fmt.Errorf("expected 7 space-separated header fields, got %d", len(fields))
	}
	// fields: VERSION TIMESTAMP HOSTNAME APP-NAME PROCID MSGID MSG...
	hostname := fields[2]
	appName := fields[3]
	pid := 0
	if fields[4] != "-" {
		pid, _ = strconv.Atoi(fields[4])
	}
	msg := fields[6]

	entry := events.NewLogEntry("log_pipeline.parser.syslog")
	entry.Hostname = hostname
	entry.Program = appName
	entry.PID = pid
	entry.Severity = severity
	entry.Message, entry.Fields = extractStructuredData(msg)
	return entry, nil
}

func priToSeverity(syslogSev int) events.Severity {
	switch {
	case syslogSev <= 2: // emerg, alert, crit
		return events.SeverityCritical
	case syslogSev == 3: // err
		return events.SeverityHigh
	case syslogSev == 4: // warning
		return events.SeverityMedium
	case syslogSev == 5: // notice
		return events.SeverityLow
	default: // info, debug
		return events.SeverityInfo
	}
}

// extractStructuredData pulls out a leading SD element `[sdid k="v" ...]`
// if present, materializing params under sd_<sdid>_<param> (spec.md §3).
// Anything after the SD block (or the whole string, if there is no SD
// block) is returned as the message.
func extractStructuredData(msg string) (string, events.Fields) {
	fields := make(events.Fields)
	msg = strings.TrimPrefix(msg, "- ")

	if !strings.HasPrefix(msg, "[") {
		return msg, fields
	}
	closeIdx := strings.IndexByte(msg, ']')
	if closeIdx < 0 {
		return msg, fields
	}
	sdBlock := msg[1:closeIdx]
	remainder := strings.TrimSpace(msg[closeIdx+1:])

	parts := strings.Fields(sdBlock)
	if len(parts) == 0 {
		return remainder, fields
	}
	sdID := parts[0]
	for _, kv := range parts[1:] {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		key := kv[:eq]
		val := strings.Trim(kv[eq+1:], `"`)
		_ = fields.Set(events.SDField(sdID, key), val)
	}
	return remainder, fields
}
