// Package scanner is the SBOM scanner plugin: periodically discovers
// lockfiles, resolves their packages against the local vulnerability
// index, and raises AlertEvents for high/critical findings (spec.md §4,
// §3's ScanEvent summary).
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/channelfabric"
	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
	"github.com/dongwonkwak/ironpost/internal/metrics"
	"github.com/dongwonkwak/ironpost/internal/plugin"
	"github.com/dongwonkwak/ironpost/internal/sbom/lockfile"
	"github.com/dongwonkwak/ironpost/internal/sbom/vulnindex"
)

// Config holds the scanner's discovery and alerting parameters.
type Config struct {
	LockfileGlobs      []string
	ScanInterval       time.Duration
	AlertSeverityFloor events.Severity
}

// Scanner is the SBOM/CVE scanner plugin.
type Scanner struct {
	state *plugin.StateTracker
	log   *zap.Logger
	cfg   Config
	m     *metrics.Metrics

	router *lockfile.Router
	idx    *vulnindex.Index

	alertTx channelfabric.AlertSender

	lastScans []events.ScanEvent

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Scanner.
func New(log *zap.Logger, cfg Config, m *metrics.Metrics, idx *vulnindex.Index, alertTx channelfabric.AlertSender) *Scanner {
	return &Scanner{
		state: plugin.NewStateTracker("sbom_scanner"),
		log:   log.Named("sbom_scanner"),
		cfg:   cfg,
		m:     m,
		router: lockfile.NewRouter(
			lockfile.NPMParser{},
			lockfile.GoSumParser{},
		),
		idx:     idx,
		alertTx: alertTx,
	}
}

func (s *Scanner) Name() string          { return "sbom_scanner" }
func (s *Scanner) Version() string       { return "1.0.0" }
func (s *Scanner) Description() string   { return "scans lockfiles against the local vulnerability index and raises alerts" }
func (s *Scanner) Dependencies() []string { return nil }

func (s *Scanner) Start(ctx context.Context) error {
	if err := s.state.BeginInit(); err != nil {
		return err
	}
	if err := s.state.BeginStart(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)
	return nil
}

func (s *Scanner) run(ctx context.Context) {
	defer close(s.done)

	if err := s.ScanOnce(ctx); err != nil {
		s.log.Warn("initial sbom scan failed", zap.Error(err))
	}

	interval := s.cfg.ScanInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.ScanOnce(ctx); err != nil {
				s.log.Warn("sbom scan failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// ScanOnce runs one full discover-parse-lookup-alert pass. Exported for the
// CLI's `ironpost scan` subcommand to drive synchronously.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	start := time.Now()
	paths, err := discoverLockfiles(s.cfg.LockfileGlobs)
	if err != nil {
		return err
	}

	var scans []events.ScanEvent
	for _, path := range paths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		scan, err := s.scanFile(path)
		if err != nil {
			s.log.Warn("lockfile scan failed", zap.String("path", path), zap.Error(err))
			continue
		}
		scans = append(scans, scan)
	}

	s.lastScans = scans
	if s.m != nil {
		s.m.ScansCompletedTotal.Add(float64(len(scans)))
		s.m.ScanDurationSeconds.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (s *Scanner) scanFile(path string) (events.ScanEvent, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return events.ScanEvent{}, ironerr.Wrap(ironerr.KindInput, "read lockfile", err).WithPath(path)
	}

	graph, err := s.router.Parse(path, content)
	if err != nil {
		return events.ScanEvent{}, err
	}

	scan := events.NewScanEvent("sbom_scanner", path, graph.Ecosystem)
	for _, pkg := range graph.Packages {
		lookupStart := time.Now()
		matches, err := s.idx.Lookup(graph.Ecosystem, pkg.Name, pkg.Version)
		if s.m != nil {
			s.m.VulnIndexLookupSeconds.Observe(time.Since(lookupStart).Seconds())
		}
		if err != nil {
			s.log.Warn("vulnindex lookup failed",
				zap.String("ecosystem", graph.Ecosystem), zap.String("package", pkg.Name), zap.Error(err))
			continue
		}
		for _, match := range matches {
			scan.FindingCount++
			scan.SeverityHisto[match.Severity]++
			if s.m != nil {
				s.m.ScanFindingsTotal.WithLabelValues(match.Severity.String()).Inc()
			}
			if match.Severity >= s.cfg.AlertSeverityFloor {
				s.raiseAlert(path, pkg, match)
			}
		}
	}
	return scan, nil
}

func (s *Scanner) raiseAlert(lockfilePath string, pkg lockfile.Package, match vulnindex.Match) {
	alert := events.NewAlertEvent(
		"sbom_scanner",
		"vulnerable dependency: "+pkg.Name+"@"+pkg.Version,
		match.VulnID,
		match.Severity,
		uuid.New(),
	)
	alert.Description = match.Summary
	if alert.Description == "" {
		alert.Description = match.VulnID + " affects " + match.Ecosystem + "/" + pkg.Name + " " + pkg.Version + " (lockfile " + lockfilePath + ")"
	}
	s.alertTx.TrySend(alert)
}

// LastScans returns the ScanEvent summaries from the most recent completed
// pass, for the CLI `scan` subcommand.
func (s *Scanner) LastScans() []events.ScanEvent {
	return s.lastScans
}

func (s *Scanner) Stop(ctx context.Context) error {
	if err := s.state.BeginStop(); err != nil {
		return err
	}
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		s.log.Warn("sbom scanner did not stop before deadline")
	}
	return nil
}

func (s *Scanner) HealthCheck(ctx context.Context) events.HealthStatus {
	switch s.state.Current() {
	case plugin.StateRunning:
		return events.Healthy
	case plugin.StateFailed:
		return events.Unhealthy("sbom scanner loop terminated")
	default:
		return events.Degraded("not running")
	}
}

// discoverLockfiles expands every glob pattern against the filesystem.
// Patterns are resolved by walking from the longest literal prefix before
// the first wildcard segment, since "**" needs a recursive walk that
// filepath.Glob alone cannot express.
func discoverLockfiles(patterns []string) ([]string, error) {
	var found []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, ironerr.Wrap(ironerr.KindConfig, "compile lockfile glob "+pattern, err)
		}
		root := globRoot(pattern)

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // Unreadable entries are skipped, not fatal to the pass.
			}
			if d.IsDir() {
				return nil
			}
			if g.Match(path) && !seen[path] {
				seen[path] = true
				found = append(found, path)
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, ironerr.Wrap(ironerr.KindInput, "walk lockfile root "+root, err)
		}
	}
	return found, nil
}

// globRoot returns the directory to start walking from: everything in
// pattern before the first path component containing a glob metacharacter.
func globRoot(pattern string) string {
	parts := strings.Split(filepath.ToSlash(pattern), "/")
	var prefix []string
	for _, part := range parts {
		if strings.ContainsAny(part, "*?[{") {
			break
		}
		prefix = append(prefix, part)
	}
	root := strings.Join(prefix, "/")
	if root == "" {
		return "."
	}
	return root
}
