// Package metrics is the Prometheus exposition facade for Ironpost.
//
// Endpoint: GET /metrics, bound to 127.0.0.1 by default — never exposed
// without an explicit operator opt-in (config.MetricsConfig.ListenAddr).
// Format: Prometheus text exposition format.
//
// Metric naming convention: ironpost_<subsystem>_<name>_<total|seconds|...>
//
// All metrics are registered on a dedicated prometheus.Registry, never the
// default global one, to avoid collisions with other instrumented
// libraries sharing the process.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus descriptor Ironpost registers.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Channel fabric ──────────────────────────────────────────────────

	// EventsDroppedTotal counts try_send drops on a full channel.
	// Labels: channel (packet, alert, action).
	EventsDroppedTotal *prometheus.CounterVec

	// ─── Packet capture ──────────────────────────────────────────────────

	PacketsCapturedTotal *prometheus.CounterVec // labels: protocol
	PacketCaptureErrorsTotal prometheus.Counter

	// ─── Log pipeline ────────────────────────────────────────────────────

	LogEntriesParsedTotal *prometheus.CounterVec // labels: parser
	LogParseErrorsTotal   prometheus.Counter
	RuleEvaluationsTotal  prometheus.Counter
	RuleMatchesTotal      *prometheus.CounterVec // labels: rule
	ThresholdCountersActive prometheus.Gauge

	// ─── Alert generator ─────────────────────────────────────────────────

	AlertsEmittedTotal      *prometheus.CounterVec // labels: severity
	AlertsDedupedTotal      prometheus.Counter
	AlertsRateLimitedTotal  prometheus.Counter

	// ─── Container guard ─────────────────────────────────────────────────

	PolicyEvaluationsTotal prometheus.Counter
	IsolationActionsTotal  *prometheus.CounterVec // labels: kind, success
	IsolationRetriesTotal  prometheus.Counter
	ContainerCacheSize     prometheus.Gauge

	// ─── SBOM scanner ────────────────────────────────────────────────────

	ScansCompletedTotal   prometheus.Counter
	ScanFindingsTotal     *prometheus.CounterVec // labels: severity
	ScanDurationSeconds   prometheus.Histogram

	// ─── Storage ──────────────────────────────────────────────────────────

	VulnIndexLookupSeconds prometheus.Histogram
	VulnIndexEntries       prometheus.Gauge

	// ─── Daemon ──────────────────────────────────────────────────────────

	DaemonHealthState prometheus.Gauge // 0=healthy, 1=degraded, 2=unhealthy
	UptimeSeconds     prometheus.Gauge

	startTime time.Time
}

// New creates and registers every Ironpost Prometheus metric on a fresh,
// dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		EventsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "channel",
			Name:      "events_dropped_total",
			Help:      "Total events dropped by a full bounded channel, by channel name.",
		}, []string{"channel"}),

		PacketsCapturedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "packetcapture",
			Name:      "packets_captured_total",
			Help:      "Total packets captured from the XDP ring buffer, by protocol.",
		}, []string{"protocol"}),

		PacketCaptureErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "packetcapture",
			Name:      "errors_total",
			Help:      "Total errors encountered while reading the ring buffer or decoding events.",
		}),

		LogEntriesParsedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "logpipeline",
			Name:      "entries_parsed_total",
			Help:      "Total log lines successfully parsed, by parser name.",
		}, []string{"parser"}),

		LogParseErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "logpipeline",
			Name:      "parse_errors_total",
			Help:      "Total log lines that every registered parser failed to parse.",
		}),

		RuleEvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "rules",
			Name:      "evaluations_total",
			Help:      "Total rule evaluations performed against parsed log entries.",
		}),

		RuleMatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "rules",
			Name:      "matches_total",
			Help:      "Total rule matches producing a candidate alert, by rule name.",
		}, []string{"rule"}),

		ThresholdCountersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironpost",
			Subsystem: "rules",
			Name:      "threshold_counters_active",
			Help:      "Current number of live ThresholdCounter entries.",
		}),

		AlertsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "alerts",
			Name:      "emitted_total",
			Help:      "Total alerts emitted onto the alert channel, by severity.",
		}, []string{"severity"}),

		AlertsDedupedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "alerts",
			Name:      "deduped_total",
			Help:      "Total candidate alerts dropped by the dedup window.",
		}),

		AlertsRateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "alerts",
			Name:      "rate_limited_total",
			Help:      "Total candidate alerts dropped by the per-key rate limiter.",
		}),

		PolicyEvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "containerguard",
			Name:      "policy_evaluations_total",
			Help:      "Total alert-against-policy-set evaluations performed.",
		}),

		IsolationActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "containerguard",
			Name:      "isolation_actions_total",
			Help:      "Total isolation actions executed, by kind and success.",
		}, []string{"kind", "success"}),

		IsolationRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "containerguard",
			Name:      "isolation_retries_total",
			Help:      "Total isolation action retry attempts.",
		}),

		ContainerCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironpost",
			Subsystem: "containerguard",
			Name:      "container_cache_size",
			Help:      "Current number of entries in the container info cache.",
		}),

		ScansCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "sbom",
			Name:      "scans_completed_total",
			Help:      "Total lockfile scans completed, one per lockfile per scan pass.",
		}),

		ScanFindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironpost",
			Subsystem: "sbom",
			Name:      "findings_total",
			Help:      "Total vulnerability findings, by severity.",
		}, []string{"severity"}),

		ScanDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ironpost",
			Subsystem: "sbom",
			Name:      "scan_duration_seconds",
			Help:      "Duration of a full SBOM scan pass, in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		VulnIndexLookupSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ironpost",
			Subsystem: "vulnindex",
			Name:      "lookup_seconds",
			Help:      "bbolt vulnerability index lookup latency, in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		VulnIndexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironpost",
			Subsystem: "vulnindex",
			Name:      "entries",
			Help:      "Current number of vulnerability records in the index.",
		}),

		DaemonHealthState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironpost",
			Subsystem: "daemon",
			Name:      "health_state",
			Help:      "Aggregated daemon health: 0=healthy, 1=degraded, 2=unhealthy.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironpost",
			Subsystem: "daemon",
			Name:      "uptime_seconds",
			Help:      "Seconds since the daemon started.",
		}),
	}

	reg.MustRegister(
		m.EventsDroppedTotal,
		m.PacketsCapturedTotal,
		m.PacketCaptureErrorsTotal,
		m.LogEntriesParsedTotal,
		m.LogParseErrorsTotal,
		m.RuleEvaluationsTotal,
		m.RuleMatchesTotal,
		m.ThresholdCountersActive,
		m.AlertsEmittedTotal,
		m.AlertsDedupedTotal,
		m.AlertsRateLimitedTotal,
		m.PolicyEvaluationsTotal,
		m.IsolationActionsTotal,
		m.IsolationRetriesTotal,
		m.ContainerCacheSize,
		m.ScansCompletedTotal,
		m.ScanFindingsTotal,
		m.ScanDurationSeconds,
		m.VulnIndexLookupSeconds,
		m.VulnIndexEntries,
		m.DaemonHealthState,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Serve starts the Prometheus HTTP metrics server on addr. Blocks until ctx
// is cancelled or the server fails to start.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
