package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/channelfabric"
	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
	"github.com/dongwonkwak/ironpost/internal/sbom/scanner"
	"github.com/dongwonkwak/ironpost/internal/sbom/vulnindex"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single on-demand SBOM/lockfile vulnerability scan and print findings",
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	idx, err := vulnindex.Open(cfg.SBOM.VulnIndexPath)
	if err != nil {
		return ironerr.Wrap(ironerr.KindStorage, "open vulnerability index", err).WithPath(cfg.SBOM.VulnIndexPath)
	}
	defer idx.Close() //nolint:errcheck

	floor, err := events.ParseSeverity(cfg.SBOM.AlertSeverityFloor)
	if err != nil {
		return ironerr.Wrap(ironerr.KindConfig, "parse sbom.alert_severity_floor", err).WithField("sbom.alert_severity_floor")
	}

	// A CLI-local logger and a discard alert channel: the scanner still
	// raises alerts above the severity floor internally, but a one-shot
	// CLI invocation has nowhere to route them — TrySend onto an
	// unconsumed bounded channel just drops them, same as any other
	// disabled consumer in the daemon.
	log := zap.NewNop()
	fabric := channelfabric.New()
	alertTx := fabric.AlertSender(channelfabric.DropCounters{})

	sc := scanner.New(log, scanner.Config{
		LockfileGlobs:      cfg.SBOM.LockfileGlobs,
		ScanInterval:       cfg.SBOM.ScanInterval,
		AlertSeverityFloor: floor,
	}, nil, idx, alertTx)

	if err := sc.ScanOnce(context.Background()); err != nil {
		return ironerr.Wrap(ironerr.KindInternal, "scan failed", err)
	}

	scans := sc.LastScans()
	format, err := ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}

	if format == OutputFormatJSON {
		return printJSON(scans)
	}

	t := newTable()
	t.AppendHeader(tableRow("LOCKFILE", "ECOSYSTEM", "FINDINGS"))
	var total int
	for _, s := range scans {
		t.AppendRow(tableRow(s.LockfilePath, s.Ecosystem, s.FindingCount))
		total += s.FindingCount
	}
	t.Render()
	fmt.Printf("%d lockfile(s) scanned, %d finding(s)\n", len(scans), total)
	return nil
}
