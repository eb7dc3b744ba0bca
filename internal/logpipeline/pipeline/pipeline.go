// Package pipeline wires the parser router, rule engine, and alert
// generator into a single Plugin (spec.md §4.4).
package pipeline

import (
	"bufio"
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/channelfabric"
	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/alerts"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/ledger"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/parser"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/rules"
	"github.com/dongwonkwak/ironpost/internal/metrics"
	"github.com/dongwonkwak/ironpost/internal/plugin"
)

// Config holds the pipeline's wiring parameters.
type Config struct {
	RulesDir            string
	MaxLineBytes        int
	MaxJSONDepth        int
	ThresholdCounterCap int
	Alerts              alerts.Config
}

// Pipeline is the log-pipeline detection engine plugin.
type Pipeline struct {
	state *plugin.StateTracker
	log   *zap.Logger
	cfg   Config
	m     *metrics.Metrics

	source io.Reader
	sender channelfabric.AlertSender
	ledger *ledger.Ledger

	router *parser.Router
	engine *rules.Engine
	gen    *alerts.Generator

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Pipeline. source is the raw log byte stream (e.g. a
// journald/syslog reader collaborator); sender is where AlertEvents are
// published. led may be nil, disabling alert audit persistence
// (`[log_pipeline.storage].enabled = false`).
func New(log *zap.Logger, cfg Config, m *metrics.Metrics, source io.Reader, sender channelfabric.AlertSender, led *ledger.Ledger) (*Pipeline, error) {
	loaded, err := rules.LoadDir(cfg.RulesDir)
	if err != nil {
		return nil, err
	}

	router := parser.NewRouter(cfg.MaxLineBytes, parser.SyslogParser{}, parser.NewJSONParser(cfg.MaxJSONDepth))
	engine := rules.NewEngine(loaded, cfg.ThresholdCounterCap)

	var onDeduped, onRateLimited func()
	if m != nil {
		onDeduped = m.AlertsDedupedTotal.Inc
		onRateLimited = m.AlertsRateLimitedTotal.Inc
	}
	gen := alerts.New(cfg.Alerts, onDeduped, onRateLimited)

	return &Pipeline{
		state:  plugin.NewStateTracker("log_pipeline"),
		log:    log.Named("log_pipeline"),
		cfg:    cfg,
		m:      m,
		source: source,
		sender: sender,
		ledger: led,
		router: router,
		engine: engine,
		gen:    gen,
	}, nil
}

func (p *Pipeline) Name() string          { return "log_pipeline" }
func (p *Pipeline) Version() string       { return "1.0.0" }
func (p *Pipeline) Description() string   { return "parses log sources and emits alerts from field/threshold rules" }
func (p *Pipeline) Dependencies() []string { return nil }

// Start begins the pipeline's background scan/evaluate/emit loop and the
// periodic dedup/rate-limit eviction task. Legal only from Created or
// Stopped (spec.md §4.4 "Re-start semantics"). A restart recreates the
// state tracker and the loops' cancel/done handles; there is no internal
// raw-log channel, and the scan loop reads the same source reader it was
// constructed with, continuing from wherever that reader stands.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.state.BeginInit(); err != nil {
		// Already initialized once before (restart path): reset to allow
		// re-init, since re-start semantics require Start to be legal from
		// Stopped, not just Created.
		if p.state.Current() != plugin.StateStopped {
			return err
		}
		p.state = plugin.NewStateTracker("log_pipeline")
		if err := p.state.BeginInit(); err != nil {
			return err
		}
	}
	if err := p.state.BeginStart(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(runCtx)
	go p.evictLoop(runCtx)
	if p.ledger != nil {
		go p.pruneLoop(runCtx)
	}

	return nil
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	scanner := bufio.NewScanner(p.source)
	scanner.Buffer(make([]byte, 0, 64*1024), p.cfg.MaxLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		entry, err := p.router.Parse(line)
		if err != nil {
			if p.m != nil {
				p.m.LogParseErrorsTotal.Inc()
			}
			p.log.Warn("failed to parse log line", zap.Error(err))
			continue
		}
		if p.m != nil {
			p.m.LogEntriesParsedTotal.WithLabelValues(detectParserName(entry)).Inc()
			p.m.RuleEvaluationsTotal.Inc()
		}

		now := time.Now()
		for _, cand := range p.engine.Evaluate(entry, now) {
			if p.m != nil {
				p.m.RuleMatchesTotal.WithLabelValues(cand.Rule.ID).Inc()
			}
			alert := p.gen.Process(cand, now)
			if alert == nil {
				continue
			}
			if p.m != nil {
				p.m.AlertsEmittedTotal.WithLabelValues(alert.Severity.String()).Inc()
			}
			if p.ledger != nil {
				if err := p.ledger.Append(*alert); err != nil {
					p.log.Warn("failed to persist alert to ledger", zap.Error(err))
				}
			}
			p.sender.TrySend(*alert)
		}
	}
	if err := scanner.Err(); err != nil {
		p.log.Error("log source scan ended with error", zap.Error(err))
		p.state.MarkFailed()
	}
}

func (p *Pipeline) evictLoop(ctx context.Context) {
	interval := p.cfg.Alerts.EvictionInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.gen.Evict(time.Now())
			if p.m != nil {
				p.m.ThresholdCountersActive.Set(float64(p.engine.ActiveCounters()))
			}
		case <-ctx.Done():
			return
		}
	}
}

// pruneLoop periodically removes ledger entries past the retention window,
// mirroring the teacher's storage-layer retention goroutine cadence.
func (p *Pipeline) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := p.ledger.PruneOld()
			if err != nil {
				p.log.Warn("ledger prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.log.Info("pruned ledger entries", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the background loops and waits until the scan loop exits
// or ctx expires, whichever comes first. A scan loop blocked on a read
// of the source only exits once a line arrives or the source is closed
// (the orchestrator closes it after StopAll), so Stop can run until ctx's
// deadline.
func (p *Pipeline) Stop(ctx context.Context) error {
	if err := p.state.BeginStop(); err != nil {
		return err
	}
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		p.log.Warn("log pipeline did not stop before deadline")
	}
	return nil
}

func (p *Pipeline) HealthCheck(ctx context.Context) events.HealthStatus {
	switch p.state.Current() {
	case plugin.StateRunning:
		return events.Healthy
	case plugin.StateFailed:
		return events.Unhealthy("log source scan loop terminated")
	default:
		return events.Degraded("not running")
	}
}

func detectParserName(e events.LogEntry) string {
	if e.Meta.Producer == "log_pipeline.parser.json" {
		return "json"
	}
	return "syslog"
}
