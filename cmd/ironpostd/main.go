// Package main — cmd/ironpostd/main.go
//
// ironpostd entrypoint.
//
// Startup sequence (full detail in internal/orchestrator.Run):
//  1. Load and validate config from /etc/ironpost/config.toml.
//  2. Initialise structured logger (zap, JSON or console format).
//  3. Acquire the PID file (create-exclusive; refuses a second instance).
//  4. Build the channel fabric and start the metrics server.
//  5. Construct and register enabled plugins in canonical order:
//     eBPF capture -> log pipeline -> SBOM scanner -> container guard.
//  6. start_all(); roll back on any single plugin failure.
//  7. Spawn the action-logger and health-aggregation tasks.
//  8. Block on SIGINT/SIGTERM.
//  9. stop_all() in producer-first order, close the fabric, drain tasks.
// 10. Remove the PID file and exit.
//
// On config validation failure or PID-file conflict: exit 1 immediately.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/user"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dongwonkwak/ironpost/internal/config"
	"github.com/dongwonkwak/ironpost/internal/orchestrator"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildTime    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/ironpost/config.toml", "Path to config.toml")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ironpostd %s (commit=%s built=%s)\n", buildVersion, buildCommit, buildTime)
		os.Exit(0)
	}

	if !runningAsRoot() {
		fmt.Fprintln(os.Stderr, "FATAL: ironpostd must run as root (required for XDP attach and container isolation)")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.General.LogLevel, cfg.General.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("ironpostd starting",
		zap.String("version", buildVersion),
		zap.String("commit", buildCommit),
		zap.String("built", buildTime),
		zap.String("node_id", cfg.General.NodeID),
		zap.String("config", *configPath),
	)

	orch := orchestrator.New(log, cfg)
	if err := orch.Run(context.Background()); err != nil {
		log.Error("ironpostd exited with error", zap.Error(err))
		os.Exit(1)
	}
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

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
