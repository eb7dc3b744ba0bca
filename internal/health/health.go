// Package health periodically aggregates per-plugin HealthStatus into a
// single daemon-wide status, with worst-case precedence (spec.md §4.8).
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/metrics"
)

// Source reports the current aggregated health across all enabled plugins,
// and a per-plugin breakdown. internal/plugin.Registry satisfies this.
type Source interface {
	HealthCheckAll(ctx context.Context) events.HealthStatus
	PerPlugin(ctx context.Context) map[string]events.HealthStatus
}

// Aggregator polls a Source on a fixed interval and exposes the latest
// snapshot in-process and through the metrics gauge; the CLI's `status`
// command does not read it.
type Aggregator struct {
	log      *zap.Logger
	source   Source
	metrics  *metrics.Metrics
	interval time.Duration

	mu       sync.RWMutex
	latest   events.HealthStatus
	perPlug  map[string]events.HealthStatus
}

// DefaultInterval is the default health-aggregation period (spec.md §4.8).
const DefaultInterval = 10 * time.Second

// New creates an Aggregator. If interval is zero, DefaultInterval is used.
func New(log *zap.Logger, source Source, m *metrics.Metrics, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Aggregator{
		log:      log.Named("health"),
		source:   source,
		metrics:  m,
		interval: interval,
		latest:   events.Healthy,
	}
}

// Run blocks, polling on a.interval until ctx is cancelled (spec.md §4.3
// step 7: "spawn a periodic health-aggregation task").
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.poll(ctx)
	for {
		select {
		case <-ticker.C:
			a.poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Aggregator) poll(ctx context.Context) {
	status := a.source.HealthCheckAll(ctx)
	perPlugin := a.source.PerPlugin(ctx)

	a.mu.Lock()
	prev := a.latest
	a.latest = status
	a.perPlug = perPlugin
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.DaemonHealthState.Set(float64(healthStateValue(status.State)))
	}
	if status.State != prev.State {
		a.log.Warn("daemon health state changed",
			zap.String("from", prev.State.String()),
			zap.String("to", status.State.String()),
			zap.String("reason", status.Reason))
	}
}

// Latest returns the most recently computed aggregated status and the
// per-plugin breakdown as of the last poll.
func (a *Aggregator) Latest() (events.HealthStatus, map[string]events.HealthStatus) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	perPlug := make(map[string]events.HealthStatus, len(a.perPlug))
	for k, v := range a.perPlug {
		perPlug[k] = v
	}
	return a.latest, perPlug
}

func healthStateValue(s events.HealthState) int {
	switch s {
	case events.HealthHealthy:
		return 0
	case events.HealthDegraded:
		return 1
	default:
		return 2
	}
}
