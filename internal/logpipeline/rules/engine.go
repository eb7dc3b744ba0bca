package rules

import (
	"sync"
	"time"

	"github.com/dongwonkwak/ironpost/internal/events"
)

// thresholdKey identifies one ThresholdCounter (spec.md §3).
type thresholdKey struct {
	ruleID   string
	groupKey string
}

// thresholdState tracks one (rule-id, group-key) window.
type thresholdState struct {
	windowStart time.Time
	count       int
	alerted     bool
}

// Engine evaluates LogEntry values against a loaded rule set and maintains
// the ThresholdCounter map. Evaluation is side-effect-free except for the
// per-(rule,group) counter update, which is serialized behind a single
// lock shared by all callers — Evaluate takes the engine by shared
// receiver but is safe for concurrent callers (spec.md §4.4 "Determinism").
type Engine struct {
	rules []*Rule

	mu        sync.Mutex
	counters  map[thresholdKey]*thresholdState
	cap       int
	evictList []thresholdKey // ordered oldest-window_start-first; re-spliced to the back on every reset
}

// DefaultThresholdCap is the ThresholdCounter set size bound (spec.md §3).
const DefaultThresholdCap = 100000

// NewEngine builds an Engine over the given rule set.
func NewEngine(rules []*Rule, thresholdCap int) *Engine {
	if thresholdCap <= 0 {
		thresholdCap = DefaultThresholdCap
	}
	return &Engine{
		rules:    rules,
		counters: make(map[thresholdKey]*thresholdState),
		cap:      thresholdCap,
	}
}

// Candidate is a rule match pending dedup/rate-limit in the alert generator.
type Candidate struct {
	Rule  *Rule
	Entry events.LogEntry
}

// Evaluate runs entry against every enabled rule and returns the candidate
// alerts produced (spec.md §4.4 steps 1-6).
func (e *Engine) Evaluate(entry events.LogEntry, now time.Time) []Candidate {
	var out []Candidate
	for _, r := range e.rules {
		if !r.Enabled {
			continue
		}
		if !r.Matches(entry) {
			continue
		}
		if r.Threshold == nil {
			out = append(out, Candidate{Rule: r, Entry: entry})
			continue
		}
		if e.evaluateThreshold(r, entry, now) {
			out = append(out, Candidate{Rule: r, Entry: entry})
		}
	}
	return out
}

// evaluateThreshold applies the ThresholdCounter state machine for one
// rule match (spec.md §4.4 step 5) and returns true iff a candidate alert
// should be emitted.
func (e *Engine) evaluateThreshold(r *Rule, entry events.LogEntry, now time.Time) bool {
	groupKey, _ := entry.Fields.Get(r.Threshold.Field)

	key := thresholdKey{ruleID: r.ID, groupKey: groupKey}
	window := time.Duration(r.Threshold.WindowSecs) * time.Second

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.counters[key]
	if !ok {
		e.evictIfFull(key)
		st = &thresholdState{windowStart: now}
		e.counters[key] = st
		e.evictList = append(e.evictList, key)
	}

	if now.Sub(st.windowStart) >= window {
		st.windowStart = now
		st.count = 1
		st.alerted = false
		e.touch(key)
	} else {
		st.count++
	}

	if st.count >= r.Threshold.Count && !st.alerted {
		st.alerted = true
		return true
	}
	return false
}

// evictIfFull evicts the counter at the front of evictList (oldest
// window_start, see touch) when the set is at capacity (spec.md §3: "eviction of oldest on overflow"). Caller holds
// e.mu.
func (e *Engine) evictIfFull(incoming thresholdKey) {
	if len(e.counters) < e.cap {
		return
	}
	for len(e.evictList) > 0 {
		oldest := e.evictList[0]
		e.evictList = e.evictList[1:]
		if oldest == incoming {
			continue
		}
		if _, ok := e.counters[oldest]; ok {
			delete(e.counters, oldest)
			return
		}
	}
}

// touch re-splices key to the back of evictList, reflecting its refreshed
// window_start so evictIfFull's oldest-first scan stays accurate across
// window resets (spec.md §3: "eviction of oldest on overflow" means oldest
// window_start, not oldest insertion). Caller holds e.mu.
func (e *Engine) touch(key thresholdKey) {
	for i, k := range e.evictList {
		if k == key {
			e.evictList = append(e.evictList[:i], e.evictList[i+1:]...)
			break
		}
	}
	e.evictList = append(e.evictList, key)
}

// ActiveCounters reports the current live ThresholdCounter count, for the
// metrics gauge.
func (e *Engine) ActiveCounters() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.counters)
}

// Rules returns the loaded rule set.
func (e *Engine) Rules() []*Rule {
	return e.rules
}
