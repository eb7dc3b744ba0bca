// Package orchestrator wires the channel fabric, the four subsystem
// plugins, and the daemon-wide health/alert/action plumbing into a single
// runnable unit (spec.md §4.3), directly generalizing the teacher's
// cmd/octoreflex/main.go startup/shutdown sequence: numbered steps, a root
// context cancelled on signal, and a bounded drain wait before exit —
// regrouped here into a reusable type so cmd/ironpostd/main.go stays a
// thin flag-parsing/logger-construction shell.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/channelfabric"
	"github.com/dongwonkwak/ironpost/internal/config"
	"github.com/dongwonkwak/ironpost/internal/containerguard/dockerapi"
	"github.com/dongwonkwak/ironpost/internal/containerguard/executor"
	"github.com/dongwonkwak/ironpost/internal/containerguard/guard"
	"github.com/dongwonkwak/ironpost/internal/containerguard/policy"
	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/health"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
	"github.com/dongwonkwak/ironpost/internal/containerguard/operator"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/alerts"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/ledger"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/pipeline"
	"github.com/dongwonkwak/ironpost/internal/metrics"
	"github.com/dongwonkwak/ironpost/internal/packetcapture"
	"github.com/dongwonkwak/ironpost/internal/plugin"
	"github.com/dongwonkwak/ironpost/internal/sbom/scanner"
	"github.com/dongwonkwak/ironpost/internal/sbom/vulnindex"
)

// Orchestrator owns the full daemon lifetime: one call to Run blocks until
// a shutdown signal arrives (or ctx is cancelled by the caller, e.g. a
// test harness) and returns only after every subsystem has stopped.
type Orchestrator struct {
	log *zap.Logger
	cfg *config.Config
}

// New constructs an Orchestrator. cfg is assumed already validated
// (config.Load/config.Validate).
func New(log *zap.Logger, cfg *config.Config) *Orchestrator {
	return &Orchestrator{log: log, cfg: cfg}
}

// Run executes the full startup → serve → shutdown lifecycle (spec.md
// §4.3). It returns a non-nil error only for fatal startup conditions;
// a clean signal-triggered shutdown returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	// Step 1: PID file, create-exclusive.
	pidFile, err := AcquirePIDFile(o.cfg.General.PIDFile)
	if err != nil {
		return ironerr.Wrap(ironerr.KindLifecycle, "acquire pid file", err).WithPath(o.cfg.General.PIDFile)
	}
	o.log.Info("pid file acquired", zap.String("path", o.cfg.General.PIDFile))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Step 2: channel fabric.
	m := metrics.New()
	fabric := channelfabric.New()
	drops := channelfabric.DropCounters{
		OnPacketDrop: func() { m.EventsDroppedTotal.WithLabelValues("packet").Inc() },
		OnAlertDrop:  func() { m.EventsDroppedTotal.WithLabelValues("alert").Inc() },
		OnActionDrop: func() { m.EventsDroppedTotal.WithLabelValues("action").Inc() },
	}

	if o.cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(runCtx, o.cfg.Metrics.ListenAddr); err != nil {
				o.log.Error("metrics server error", zap.Error(err))
			}
		}()
		o.log.Info("metrics server started", zap.String("addr", o.cfg.Metrics.ListenAddr))
	}

	// Step 3: construct and register plugins in canonical order
	// (eBPF -> log-pipeline -> SBOM-scanner -> container-guard), each
	// gated on its own Enabled flag.
	registry := plugin.New(o.log).WithTimeouts(plugin.DefaultStartTimeout, o.cfg.General.ShutdownGracePeriod)

	var closers []func() error
	rollback := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				o.log.Warn("cleanup error during rollback", zap.Error(err))
			}
		}
	}

	if o.cfg.EBPF.Enabled {
		capSender := fabric.PacketSender(drops)
		capturePlugin := packetcapture.New(o.log, packetcapture.Config{
			Interface:           o.cfg.EBPF.Interface,
			RingBufferSizeBytes: o.cfg.EBPF.RingBufferSizeBytes,
		}, m, capSender)
		registry.Register(capturePlugin, true)
	}

	var logSource io.Reader
	var logLedger *ledger.Ledger
	if o.cfg.LogPipeline.Enabled {
		logSource, err = openLogSource(o.cfg.LogPipeline.SourcePath)
		if err != nil {
			rollback()
			pidFile.Release() //nolint:errcheck
			return ironerr.Wrap(ironerr.KindLifecycle, "open log source", err)
		}
		if c, ok := logSource.(io.Closer); ok {
			closers = append(closers, c.Close)
		}

		if o.cfg.LogPipeline.Storage.Enabled {
			logLedger, err = ledger.Open(o.cfg.LogPipeline.Storage.DBPath, o.cfg.LogPipeline.Storage.RetentionDays)
			if err != nil {
				rollback()
				pidFile.Release() //nolint:errcheck
				return ironerr.Wrap(ironerr.KindStorage, "open alert ledger", err)
			}
			closers = append(closers, logLedger.Close)
		}

		alertSender := fabric.AlertSender(drops)
		pipe, err := pipeline.New(o.log, pipeline.Config{
			RulesDir:            o.cfg.LogPipeline.RulesDir,
			MaxLineBytes:        o.cfg.LogPipeline.MaxLineBytes,
			MaxJSONDepth:        o.cfg.LogPipeline.MaxJSONDepth,
			ThresholdCounterCap: o.cfg.LogPipeline.ThresholdCounterCap,
			Alerts: alerts.Config{
				DedupWindow:        o.cfg.LogPipeline.Alerts.DedupWindow,
				RateLimitPerMinute: o.cfg.LogPipeline.Alerts.RateLimitPerMinute,
				EvictionInterval:   o.cfg.LogPipeline.Alerts.EvictionInterval,
			},
		}, m, logSource, alertSender, logLedger)
		if err != nil {
			rollback()
			pidFile.Release() //nolint:errcheck
			return ironerr.Wrap(ironerr.KindConfig, "construct log pipeline", err)
		}
		registry.Register(pipe, true)
	}

	if o.cfg.SBOM.Enabled {
		idx, err := vulnindex.Open(o.cfg.SBOM.VulnIndexPath)
		if err != nil {
			rollback()
			pidFile.Release() //nolint:errcheck
			return ironerr.Wrap(ironerr.KindStorage, "open vulnerability index", err)
		}
		closers = append(closers, idx.Close)

		floor, err := events.ParseSeverity(o.cfg.SBOM.AlertSeverityFloor)
		if err != nil {
			rollback()
			pidFile.Release() //nolint:errcheck
			return ironerr.Wrap(ironerr.KindConfig, "parse sbom.alert_severity_floor", err).WithField("sbom.alert_severity_floor")
		}

		scanAlertSender := fabric.AlertSender(drops)
		sc := scanner.New(o.log, scanner.Config{
			LockfileGlobs:      o.cfg.SBOM.LockfileGlobs,
			ScanInterval:       o.cfg.SBOM.ScanInterval,
			AlertSeverityFloor: floor,
		}, m, idx, scanAlertSender)
		registry.Register(sc, true)
	}

	var alertDrainNeeded bool
	var opSrv *operator.Server
	opServerDone := make(chan struct{})
	if o.cfg.Container.Enabled {
		api, err := dockerapi.New(runCtx, o.cfg.Container.DockerHost)
		if err != nil {
			rollback()
			pidFile.Release() //nolint:errcheck
			return ironerr.Wrap(ironerr.KindLifecycle, "connect to docker daemon", err)
		}

		holder, err := policy.NewHolder(o.log, o.cfg.Container.PolicyDir)
		if err != nil {
			rollback()
			pidFile.Release() //nolint:errcheck
			return ironerr.Wrap(ironerr.KindPolicy, "load container policies", err).WithPath(o.cfg.Container.PolicyDir)
		}
		closers = append(closers, holder.Close)
		if err := holder.WatchReload(); err != nil {
			o.log.Warn("policy hot-reload watch failed to start", zap.Error(err))
		}

		exec := executor.New(o.log, api, executor.Config{
			MaxAttempts:    o.cfg.Container.Executor.MaxAttempts,
			RetryBackoff:   o.cfg.Container.Executor.RetryBackoff,
			AttemptTimeout: o.cfg.Container.Executor.AttemptTimeout,
		})

		g := guard.Build(o.log, guard.Config{
			ContainerCacheTTL:   o.cfg.Container.ContainerCacheTTL,
			MaxCachedContainers: o.cfg.Container.MaxCachedContainers,
		}, m, holder, api, exec, fabric.AlertReceiver(), fabric.ActionSender(drops))
		registry.Register(g, true)

		if o.cfg.General.OperatorSocketPath != "" {
			opSrv = operator.NewServer(o.cfg.General.OperatorSocketPath, g, o.log)
			go func() {
				defer close(opServerDone)
				if err := opSrv.ListenAndServe(runCtx); err != nil {
					o.log.Error("operator socket server error", zap.Error(err))
				}
			}()
			o.log.Info("operator socket listening", zap.String("path", o.cfg.General.OperatorSocketPath))
		} else {
			close(opServerDone)
		}
	} else {
		alertDrainNeeded = true
		close(opServerDone)
	}

	// Step 4: if container-guard is disabled, nobody owns the alert
	// channel's consumer side — drain it ourselves so producers never see
	// a full (never-drained) queue or, after CloseProducers, a closed
	// receiver error.
	drainDone := make(chan struct{})
	if alertDrainNeeded {
		alertRx := fabric.AlertReceiver()
		go func() {
			defer close(drainDone)
			for alert := range alertRx.C() {
				o.log.Warn("alert dropped — container guard disabled",
					zap.String("alert_id", alert.AlertID.String()),
					zap.String("title", alert.Title),
					zap.String("severity", alert.Severity.String()))
			}
		}()
	} else {
		close(drainDone)
	}

	// Step 5: start_all, with rollback via stop_all + pid file removal on
	// any single plugin start failure.
	if err := registry.StartAll(runCtx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), o.cfg.General.ShutdownGracePeriod)
		_ = registry.StopAll(stopCtx)
		stopCancel()
		fabric.CloseProducers()
		rollback()
		_ = pidFile.Release()
		return ironerr.Wrap(ironerr.KindLifecycle, "start_all failed, rolled back", err)
	}
	o.log.Info("all enabled subsystems started")

	// Step 6: action-logger task, reading action_rx until closed.
	actionRx := fabric.ActionReceiver()
	actionDone := make(chan struct{})
	go func() {
		defer close(actionDone)
		for action := range actionRx.C() {
			level := o.log.Info
			if !action.Success {
				level = o.log.Warn
			}
			level("isolation action executed",
				zap.String("kind", action.Kind.String()),
				zap.String("container_id", action.ContainerID),
				zap.Bool("success", action.Success),
				zap.String("error", action.Error))
		}
	}()

	// Step 7: periodic health-aggregation task.
	aggregator := health.New(o.log, registry, m, health.DefaultInterval)
	go aggregator.Run(runCtx)

	// Step 8: await SIGTERM/SIGINT. Signal install never panics — a
	// failure here is logged and falls back to waiting on ctx alone,
	// so an operator can still stop the daemon by cancelling ctx or
	// sending SIGKILL as a last resort.
	sigCh, stopNotify := installSignalHandler()
	defer stopNotify()

	select {
	case sig := <-sigCh:
		o.log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		o.log.Info("parent context cancelled")
	}

	// Step 9: stop_all in producer-first (registration) order.
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), o.cfg.General.ShutdownGracePeriod)
	stopErr := registry.StopAll(stopCtx)
	stopCancel()
	if stopErr != nil {
		o.log.Warn("one or more plugins reported errors during shutdown", zap.Error(stopErr))
	}

	fabric.CloseProducers()

	drainTimer := time.NewTimer(o.cfg.General.ShutdownGracePeriod)
	defer drainTimer.Stop()
	waitDrain := func(ch <-chan struct{}, name string) {
		select {
		case <-ch:
		case <-drainTimer.C:
			o.log.Warn("task did not drain before deadline", zap.String("task", name))
		}
	}
	waitDrain(actionDone, "action_logger")
	waitDrain(drainDone, "alert_drain")
	waitDrain(opServerDone, "operator_socket")

	closeErr := closeAll(closers)

	// Step 10: remove PID file and exit.
	if err := pidFile.Release(); err != nil {
		o.log.Warn("failed to remove pid file", zap.Error(err))
	}

	o.log.Info("ironpostd shutdown complete")
	return multierr.Append(stopErr, closeErr)
}

func closeAll(closers []func() error) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i]())
	}
	return err
}

// installSignalHandler registers SIGINT/SIGTERM on a buffered channel.
// signal.Notify itself cannot fail in the Go runtime, but the call is
// still wrapped so a future platform-specific failure mode has somewhere
// to report through without the caller needing to change its call site.
func installSignalHandler() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

// openLogSource opens the configured log ingestion source. "-" means
// stdin (local/foreground runs); any other value is treated as a path to
// a FIFO or regular file fed by an external log forwarder.
func openLogSource(path string) (io.Reader, error) {
	if path == "-" || path == "" {
		return os.Stdin, nil
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open log source %s: %w", path, err)
	}
	return f, nil
}
