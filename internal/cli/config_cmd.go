package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dongwonkwak/ironpost/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate the ironpost config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config (file + env overrides + defaults)",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file and exit 0 on success, 2 on failure",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, err := ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}

	if format == OutputFormatJSON {
		return printJSON(cfg)
	}
	return renderConfigTable(cfg)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	_, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Println("config OK:", configPath)
	return nil
}

func renderConfigTable(cfg *config.Config) error {
	t := newTable()
	t.AppendHeader(tableRow("SECTION", "FIELD", "VALUE"))

	t.AppendRow(tableRow("general", "node_id", cfg.General.NodeID))
	t.AppendRow(tableRow("general", "log_level", cfg.General.LogLevel))
	t.AppendRow(tableRow("general", "pid_file", cfg.General.PIDFile))
	t.AppendRow(tableRow("general", "operator_socket_path", cfg.General.OperatorSocketPath))

	t.AppendRow(tableRow("ebpf", "enabled", cfg.EBPF.Enabled))
	t.AppendRow(tableRow("ebpf", "interface", cfg.EBPF.Interface))

	t.AppendRow(tableRow("log_pipeline", "enabled", cfg.LogPipeline.Enabled))
	t.AppendRow(tableRow("log_pipeline", "rules_dir", cfg.LogPipeline.RulesDir))
	t.AppendRow(tableRow("log_pipeline", "source_path", cfg.LogPipeline.SourcePath))
	t.AppendRow(tableRow("log_pipeline", "storage.enabled", cfg.LogPipeline.Storage.Enabled))
	t.AppendRow(tableRow("log_pipeline", "storage.db_path", cfg.LogPipeline.Storage.DBPath))

	t.AppendRow(tableRow("container", "enabled", cfg.Container.Enabled))
	t.AppendRow(tableRow("container", "policy_dir", cfg.Container.PolicyDir))
	t.AppendRow(tableRow("container", "docker_host", cfg.Container.DockerHost))

	t.AppendRow(tableRow("sbom", "enabled", cfg.SBOM.Enabled))
	t.AppendRow(tableRow("sbom", "vuln_index_path", cfg.SBOM.VulnIndexPath))
	t.AppendRow(tableRow("sbom", "scan_interval", cfg.SBOM.ScanInterval))

	t.AppendRow(tableRow("metrics", "enabled", cfg.Metrics.Enabled))
	t.AppendRow(tableRow("metrics", "listen_addr", cfg.Metrics.ListenAddr))

	t.Render()
	return nil
}
