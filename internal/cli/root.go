// Package cli implements the ironpost command-line surface: a thin cobra
// front end over the same internal/config, internal/logpipeline/rules, and
// internal/sbom/scanner packages the daemon uses directly, so the CLI and
// the daemon can never drift in how they parse a config file, load rules,
// or run a scan pass. Container policies have no CLI command.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

var (
	configPath   string
	outputFormat string
)

// rootCmd is the ironpost CLI entry point.
var rootCmd = &cobra.Command{
	Use:   "ironpost",
	Short: "Ironpost host security monitoring — operator CLI",
	Long: `ironpost inspects and controls a running ironpostd daemon: check
config validity, list and validate detection rules, run an on-demand
SBOM scan, and query daemon status.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/ironpost/config.toml", "Path to config.toml")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json)")
}

// SetVersion injects the build version into the root command, following
// the same pattern as the daemon's own ldflags-injected build vars.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI, mapping the returned error to an Ironpost exit
// code (spec.md §6: 0 success, 1 generic error, 2 config/validation
// failure, 3 daemon unreachable).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		os.Exit(ironerr.ExitCode(err))
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(startCmd)
}
