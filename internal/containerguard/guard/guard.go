// Package guard is the container-guard loop: alert -> policy -> executor
// -> ActionEvent (spec.md §4.7).
package guard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/channelfabric"
	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerapi"
	"github.com/dongwonkwak/ironpost/internal/containerguard/executor"
	"github.com/dongwonkwak/ironpost/internal/containerguard/policy"
	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/metrics"
	"github.com/dongwonkwak/ironpost/internal/plugin"
)

// Config holds the guard loop's cache and wiring parameters.
type Config struct {
	ContainerCacheTTL   time.Duration
	MaxCachedContainers int
}

// Guard is the container-guard plugin. Per spec.md §4.7, a Guard instance
// is not reusable after Stop — a fresh Build is required for restart.
type Guard struct {
	state *plugin.StateTracker
	log   *zap.Logger
	cfg   Config
	m     *metrics.Metrics

	holder   *policy.Holder
	api      dockerapi.API
	exec     *executor.Executor
	cache    *containerCache
	alertRx  channelfabric.AlertReceiver
	actionTx channelfabric.ActionSender

	alertsProcessed     atomic.Uint64
	isolationsExecuted  atomic.Uint64
	isolationFailures   atomic.Uint64

	exemptMu sync.RWMutex
	exempt   map[string]bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Build constructs a fresh Guard. Each restart must call Build again
// (spec.md §4.7: "the instance is not reusable").
func Build(
	log *zap.Logger,
	cfg Config,
	m *metrics.Metrics,
	holder *policy.Holder,
	api dockerapi.API,
	exec *executor.Executor,
	alertRx channelfabric.AlertReceiver,
	actionTx channelfabric.ActionSender,
) *Guard {
	return &Guard{
		state:    plugin.NewStateTracker("container_guard"),
		log:      log.Named("container_guard"),
		cfg:      cfg,
		m:        m,
		holder:   holder,
		api:      api,
		exec:     exec,
		cache:    newContainerCache(cfg.ContainerCacheTTL, cfg.MaxCachedContainers),
		alertRx:  alertRx,
		actionTx: actionTx,
		exempt:   make(map[string]bool),
	}
}

func (g *Guard) Name() string          { return "container_guard" }
func (g *Guard) Version() string       { return "1.0.0" }
func (g *Guard) Description() string   { return "evaluates alerts against container policies and executes isolation actions" }
func (g *Guard) Dependencies() []string { return []string{"log_pipeline"} }

func (g *Guard) Start(ctx context.Context) error {
	if err := g.state.BeginInit(); err != nil {
		return err
	}
	if err := g.state.BeginStart(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	if err := g.refreshCache(runCtx); err != nil {
		g.log.Warn("initial container inventory refresh failed", zap.Error(err))
	}

	go g.run(runCtx)
	return nil
}

func (g *Guard) run(ctx context.Context) {
	defer close(g.done)
	refreshTicker := time.NewTicker(g.cfg.ContainerCacheTTL)
	defer refreshTicker.Stop()

	for {
		select {
		case alert, ok := <-g.alertRx.C():
			if !ok {
				return
			}
			g.handleAlert(ctx, alert)
		case <-refreshTicker.C:
			if err := g.refreshCache(ctx); err != nil {
				g.log.Warn("container inventory refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Guard) refreshCache(ctx context.Context) error {
	infos, err := g.api.ListContainers(ctx)
	if err != nil {
		return err
	}
	g.cache.Refresh(infos, time.Now())
	if g.m != nil {
		g.m.ContainerCacheSize.Set(float64(g.cache.Size()))
	}
	return nil
}

func (g *Guard) handleAlert(ctx context.Context, alert events.AlertEvent) {
	g.alertsProcessed.Add(1)
	if g.m != nil {
		g.m.PolicyEvaluationsTotal.Inc()
	}

	candidates := make([]policy.Candidate, 0)
	for _, info := range g.cache.All() {
		candidates = append(candidates, policy.Candidate{ID: info.ID, Name: info.Name, Image: info.Image})
	}

	p, selected, ok := policy.Select(g.holder.Policies(), alert.Severity, candidates)
	if !ok {
		return
	}

	if g.IsExempt(selected.ID) {
		g.log.Info("skipping isolation — container exempted via operator override",
			zap.String("container_id", selected.ID))
		return
	}

	actionEvent := g.exec.Execute(ctx, selected.ID, p.Action, alert.Meta.TraceID)
	if actionEvent.Success {
		g.isolationsExecuted.Add(1)
	} else {
		g.isolationFailures.Add(1)
	}
	if g.m != nil {
		successLabel := "false"
		if actionEvent.Success {
			successLabel = "true"
		}
		g.m.IsolationActionsTotal.WithLabelValues(actionEvent.Kind.String(), successLabel).Inc()
	}
	g.actionTx.TrySend(actionEvent)
}

// Stop aborts the run loop. The Guard instance must not be restarted;
// callers must Build a fresh instance (spec.md §4.7).
func (g *Guard) Stop(ctx context.Context) error {
	if err := g.state.BeginStop(); err != nil {
		return err
	}
	if g.cancel != nil {
		g.cancel()
	}
	select {
	case <-g.done:
	case <-ctx.Done():
		g.log.Warn("container guard did not stop before deadline")
	}
	return nil
}

func (g *Guard) HealthCheck(ctx context.Context) events.HealthStatus {
	switch g.state.Current() {
	case plugin.StateRunning:
		return events.Healthy
	case plugin.StateFailed:
		return events.Unhealthy("container guard loop terminated")
	default:
		return events.Degraded("not running")
	}
}

// Counters exposes the atomic monotonic counters spec.md §4.7 names:
// alerts_processed, isolations_executed, isolation_failures.
func (g *Guard) Counters() (alertsProcessed, isolationsExecuted, isolationFailures uint64) {
	return g.alertsProcessed.Load(), g.isolationsExecuted.Load(), g.isolationFailures.Load()
}

// ─── Operator override surface (internal/containerguard/operator) ──────────

// Exempt marks a container (resolved by full or unique partial id) as
// excluded from automatic isolation until Unexempt is called. Used by the
// operator Unix-socket server for manual overrides on false positives.
func (g *Guard) Exempt(containerID string) (dockerapi.ContainerInfo, error) {
	info, ok := g.cache.ResolveID(containerID)
	if !ok {
		return dockerapi.ContainerInfo{}, fmt.Errorf("container %q not found or ambiguous", containerID)
	}
	g.exemptMu.Lock()
	g.exempt[info.ID] = true
	g.exemptMu.Unlock()
	return info, nil
}

// Unexempt removes a previously set exemption.
func (g *Guard) Unexempt(containerID string) {
	g.exemptMu.Lock()
	delete(g.exempt, containerID)
	g.exemptMu.Unlock()
}

// IsExempt reports whether the given (resolved) container id is currently
// exempted from automatic isolation.
func (g *Guard) IsExempt(containerID string) bool {
	g.exemptMu.RLock()
	defer g.exemptMu.RUnlock()
	return g.exempt[containerID]
}

// Status resolves a container id and reports its cached info plus
// exemption state, for the operator `status` command.
func (g *Guard) Status(containerID string) (info dockerapi.ContainerInfo, exempt bool, found bool) {
	info, ok := g.cache.ResolveID(containerID)
	if !ok {
		return dockerapi.ContainerInfo{}, false, false
	}
	return info, g.IsExempt(info.ID), true
}

// ListCached returns every container currently in the guard's inventory
// cache, for the operator `list` command.
func (g *Guard) ListCached() []dockerapi.ContainerInfo {
	return g.cache.All()
}

// ManualIsolate executes an isolation action against containerID
// immediately, bypassing policy evaluation — the operator `isolate`
// override command. The resulting ActionEvent is published on the same
// action channel as policy-triggered isolations.
func (g *Guard) ManualIsolate(ctx context.Context, containerID string, kind policy.ActionKind) (events.ActionEvent, error) {
	info, ok := g.cache.ResolveID(containerID)
	if !ok {
		return events.ActionEvent{}, fmt.Errorf("container %q not found or ambiguous", containerID)
	}

	actionEvent := g.exec.Execute(ctx, info.ID, policy.Action{Kind: kind}, uuid.New())
	if actionEvent.Success {
		g.isolationsExecuted.Add(1)
	} else {
		g.isolationFailures.Add(1)
	}
	if g.m != nil {
		successLabel := "false"
		if actionEvent.Success {
			successLabel = "true"
		}
		g.m.IsolationActionsTotal.WithLabelValues(actionEvent.Kind.String(), successLabel).Inc()
	}
	g.actionTx.TrySend(actionEvent)
	return actionEvent, nil
}
