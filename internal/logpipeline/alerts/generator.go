// Package alerts turns rule-engine candidate matches into deduplicated,
// rate-limited AlertEvents with source/target IP extraction (spec.md §4.4).
package alerts

import (
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/rules"
)

// dedupKey is (rule-id, group-key, severity) per spec.md §4.4.
type dedupKey struct {
	ruleID   string
	groupKey string
	severity events.Severity
}

type rateLimitState struct {
	windowStart time.Time
	count       int
}

// Config holds the generator's dedup/rate-limit parameters.
type Config struct {
	DedupWindow        time.Duration
	RateLimitPerMinute int
	EvictionInterval   time.Duration
}

// Generator maintains dedup and rate-limit tables, both time-evicted
// (spec.md §4.4: "time-based cleanup, not tick-count-based").
type Generator struct {
	cfg Config

	mu         sync.Mutex
	lastEmit   map[dedupKey]time.Time
	rateLimits map[dedupKey]*rateLimitState

	onDeduped     func()
	onRateLimited func()
}

// New creates a Generator. onDeduped/onRateLimited are optional metrics
// hooks (nil is fine).
func New(cfg Config, onDeduped, onRateLimited func()) *Generator {
	return &Generator{
		cfg:           cfg,
		lastEmit:      make(map[dedupKey]time.Time),
		rateLimits:    make(map[dedupKey]*rateLimitState),
		onDeduped:     onDeduped,
		onRateLimited: onRateLimited,
	}
}

// Process converts a rule-engine Candidate into an AlertEvent, or nil if
// the candidate is suppressed by dedup or rate-limiting.
func (g *Generator) Process(c rules.Candidate, now time.Time) *events.AlertEvent {
	groupKey := ""
	if c.Rule.Threshold != nil {
		groupKey, _ = c.Entry.Fields.Get(c.Rule.Threshold.Field)
	}
	key := dedupKey{ruleID: c.Rule.ID, groupKey: groupKey, severity: c.Rule.Severity}

	g.mu.Lock()
	if last, ok := g.lastEmit[key]; ok && now.Sub(last) < g.cfg.DedupWindow {
		g.mu.Unlock()
		if g.onDeduped != nil {
			g.onDeduped()
		}
		return nil
	}

	rl, ok := g.rateLimits[key]
	if !ok || now.Sub(rl.windowStart) >= time.Minute {
		rl = &rateLimitState{windowStart: now, count: 0}
		g.rateLimits[key] = rl
	}
	if rl.count >= g.cfg.RateLimitPerMinute {
		g.mu.Unlock()
		if g.onRateLimited != nil {
			g.onRateLimited()
		}
		return nil
	}
	rl.count++
	g.lastEmit[key] = now
	g.mu.Unlock()

	alert := events.NewAlertEvent(
		"log_pipeline",
		c.Rule.Title,
		c.Rule.ID,
		c.Rule.Severity,
		c.Entry.Meta.TraceID,
	)
	alert.Description = c.Entry.Message
	if src, ok := extractSourceIP(c.Entry.Fields); ok {
		alert.SourceIP = &src
	}
	if dst, ok := extractTargetIP(c.Entry.Fields); ok {
		alert.TargetIP = &dst
	}
	return &alert
}

// Evict drops dedup/rate-limit entries older than their respective
// windows, run on cfg.EvictionInterval by the pipeline plugin (spec.md
// §4.4: "automatic eviction of expired entries every minute").
func (g *Generator) Evict(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, last := range g.lastEmit {
		if now.Sub(last) >= g.cfg.DedupWindow {
			delete(g.lastEmit, k)
		}
	}
	for k, rl := range g.rateLimits {
		if now.Sub(rl.windowStart) >= time.Minute {
			delete(g.rateLimits, k)
		}
	}
}

var sourceIPFields = []string{"src_ip", "source_ip", "client_ip"}
var targetIPFields = []string{"dst_ip", "dest_ip", "target_ip", "remote_ip"}

// extractSourceIP scans Fields for canonical source-IP keys, including any
// "_ip"-suffixed variant, per spec.md §4.4. Malformed values are ignored
// silently — a best-effort enrichment, not a validation gate.
func extractSourceIP(f events.Fields) (netip.Addr, bool) {
	for _, name := range sourceIPFields {
		if v, ok := f.Get(name); ok {
			if addr, err := netip.ParseAddr(v); err == nil {
				return addr, true
			}
		}
	}
	for k, v := range f {
		if strings.HasSuffix(k, "_ip") && !isTargetField(k) {
			if addr, err := netip.ParseAddr(v); err == nil {
				return addr, true
			}
		}
	}
	return netip.Addr{}, false
}

func extractTargetIP(f events.Fields) (netip.Addr, bool) {
	for _, name := range targetIPFields {
		if v, ok := f.Get(name); ok {
			if addr, err := netip.ParseAddr(v); err == nil {
				return addr, true
			}
		}
	}
	return netip.Addr{}, false
}

func isTargetField(name string) bool {
	for _, t := range targetIPFields {
		if name == t {
			return true
		}
	}
	return false
}
