package plugin

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/events"
)

const (
	// DefaultStartTimeout is the per-plugin Start() timeout (spec.md §4.1).
	DefaultStartTimeout = 30 * time.Second
	// DefaultStopTimeout is the per-plugin Stop() timeout (spec.md §4.1).
	DefaultStopTimeout = 15 * time.Second
)

// handle is a registered plugin plus its enabled flag. The registry never
// reorders handles — registration order is the user-declared order, never
// hash order (spec.md §4.1's "flat ordered list, not a topological sort").
type handle struct {
	p       Plugin
	enabled bool
}

// Registry holds an ordered sequence of plugin handles and drives their
// lifecycle in registration order (spec.md §4.1).
type Registry struct {
	log           *zap.Logger
	handles       []handle
	startTimeout  time.Duration
	stopTimeout   time.Duration
}

// New creates an empty Registry. log is the parent logger; each plugin's
// lifecycle events are logged with the plugin's name as a field, matching
// the teacher's "one zap field per identifying dimension" convention.
func New(log *zap.Logger) *Registry {
	return &Registry{
		log:          log,
		startTimeout: DefaultStartTimeout,
		stopTimeout:  DefaultStopTimeout,
	}
}

// WithTimeouts overrides the default start/stop timeouts (used by tests and
// by config-driven overrides of the daemon's startup behaviour).
func (r *Registry) WithTimeouts(start, stop time.Duration) *Registry {
	r.startTimeout = start
	r.stopTimeout = stop
	return r
}

// Register appends a plugin to the registry in the given enabled state.
// Order of Register calls is the canonical wiring order: eBPF → log-pipeline
// → SBOM-scanner → container-guard (spec.md §4.3 step 3).
func (r *Registry) Register(p Plugin, enabled bool) {
	r.handles = append(r.handles, handle{p: p, enabled: enabled})
}

// Plugins returns the registered plugins in registration order (for CLI
// inspection and tests). The slice is a defensive copy.
func (r *Registry) Plugins() []Plugin {
	out := make([]Plugin, len(r.handles))
	for i, h := range r.handles {
		out[i] = h.p
	}
	return out
}

// StartAll iterates registered plugins in order; for each enabled plugin it
// calls Start wrapped in startTimeout. On the first error it stops
// immediately and returns — the caller (orchestrator) is responsible for
// rolling back via StopAll (spec.md §4.1).
func (r *Registry) StartAll(ctx context.Context) error {
	for _, h := range r.handles {
		if !h.enabled {
			r.log.Debug("skipping disabled plugin", zap.String("plugin", h.p.Name()))
			continue
		}
		r.log.Info("starting plugin", zap.String("plugin", h.p.Name()), zap.String("version", h.p.Version()))
		startCtx, cancel := context.WithTimeout(ctx, r.startTimeout)
		err := h.p.Start(startCtx)
		cancel()
		if err != nil {
			r.log.Error("plugin start failed", zap.String("plugin", h.p.Name()), zap.Error(err))
			return err
		}
	}
	return nil
}

// StopAll iterates registered plugins in the SAME order (producer-first) so
// downstream consumers observe channel close and drain before they are
// themselves stopped (spec.md §4.1, §4.3). Every plugin is visited exactly
// once; per-plugin errors (including timeouts) are collected via multierr
// rather than propagated, and the loop always continues.
func (r *Registry) StopAll(ctx context.Context) error {
	var errs error
	for _, h := range r.handles {
		r.log.Info("stopping plugin", zap.String("plugin", h.p.Name()))
		stopCtx, cancel := context.WithTimeout(ctx, r.stopTimeout)
		err := h.p.Stop(stopCtx)
		cancel()
		if stopCtx.Err() != nil {
			r.log.Warn("plugin stop timed out — continuing shutdown",
				zap.String("plugin", h.p.Name()))
		}
		if err != nil {
			r.log.Warn("plugin stop returned error", zap.String("plugin", h.p.Name()), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// HealthCheckAll aggregates HealthCheck results from all enabled plugins
// with the worst-case rule. Disabled plugins are excluded (spec.md §4.1).
func (r *Registry) HealthCheckAll(ctx context.Context) events.HealthStatus {
	var statuses []events.HealthStatus
	for _, h := range r.handles {
		if !h.enabled {
			continue
		}
		statuses = append(statuses, h.p.HealthCheck(ctx))
	}
	return events.AggregateHealth(statuses)
}

// PerPlugin returns the latest HealthStatus for every enabled plugin, keyed
// by plugin name, for the health aggregator.
func (r *Registry) PerPlugin(ctx context.Context) map[string]events.HealthStatus {
	out := make(map[string]events.HealthStatus)
	for _, h := range r.handles {
		if !h.enabled {
			continue
		}
		out[h.p.Name()] = h.p.HealthCheck(ctx)
	}
	return out
}
