// Package parser routes raw log lines through registered format parsers,
// first-success-wins, with an aggregate error on full failure (spec.md
// §4.4).
package parser

import (
	"fmt"
	"strings"

	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

// MaxLineBytes and MaxJSONDepth are the default size caps (spec.md §4.4);
// callers (the pipeline plugin) read the configured values instead.
const (
	MaxLineBytes = 65536
	MaxJSONDepth = 32
)

// Parser converts one raw log line into a LogEntry, or reports why it
// could not.
type Parser interface {
	Name() string
	Parse(line []byte) (events.LogEntry, error)
}

// Router attempts each registered Parser in declared order and returns the
// first success (spec.md §4.4).
type Router struct {
	parsers      []Parser
	maxLineBytes int
}

// NewRouter builds a Router over parsers, attempted in slice order.
func NewRouter(maxLineBytes int, parsers ...Parser) *Router {
	if maxLineBytes <= 0 {
		maxLineBytes = MaxLineBytes
	}
	return &Router{parsers: parsers, maxLineBytes: maxLineBytes}
}

// Parse tries every registered parser in order. On full failure, the
// returned error enumerates each parser's failure reason.
func (r *Router) Parse(line []byte) (events.LogEntry, error) {
	if len(line) > r.maxLineBytes {
		return events.LogEntry{}, ironerr.New(ironerr.KindInput,
			fmt.Sprintf("log line exceeds %d bytes", r.maxLineBytes))
	}

	var reasons []string
	for _, p := range r.parsers {
		entry, err := p.Parse(line)
		if err == nil {
			return entry, nil
		}
		reasons = append(reasons, fmt.Sprintf("%s: %v", p.Name(), err))
	}
	return events.LogEntry{}, ironerr.New(ironerr.KindInput,
		fmt.Sprintf("no registered parser accepted the line: %s", strings.Join(reasons, "; ")))
}
