package cli

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dongwonkwak/ironpost/internal/ironerr"
	"github.com/dongwonkwak/ironpost/internal/orchestrator"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start ironpostd in the foreground (equivalent to running ironpostd directly)",
	Long: `start runs the full daemon lifecycle in the current process and
terminal: acquire the pid file, bring up every enabled subsystem, and
block until SIGINT/SIGTERM. It exists so a single ironpost binary can
both administer and run the daemon — systemd units and debugging
sessions alike can invoke "ironpost start" instead of a separate
ironpostd binary.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	if !runningAsRoot() {
		return ironerr.New(ironerr.KindLifecycle, "ironpost start must run as root (required for XDP attach and container isolation)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := buildLogger(cfg.General.LogLevel, cfg.General.LogFormat)
	if err != nil {
		return ironerr.Wrap(ironerr.KindInternal, "logger init failed", err)
	}
	defer log.Sync() //nolint:errcheck

	fmt.Println("starting ironpostd — press Ctrl-C to stop")
	orch := orchestrator.New(log, cfg)
	return orch.Run(context.Background())
}

func runningAsRoot() bool {
	u, err := user.Current()
	if err != nil {
		return os.Getuid() == 0
	}
	return u.Uid == "0"
}

func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return zcfg.Build()
}
