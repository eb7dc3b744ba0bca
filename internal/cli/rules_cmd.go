package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dongwonkwak/ironpost/internal/ironerr"
	"github.com/dongwonkwak/ironpost/internal/logpipeline/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List and validate log-pipeline detection rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every rule loaded from log_pipeline.rules_dir",
	RunE:  runRulesList,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate every rule file, reporting every error found",
	RunE:  runRulesValidate,
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loaded, err := rules.LoadDir(cfg.LogPipeline.RulesDir)
	if err != nil {
		return ironerr.Wrap(ironerr.KindInput, "load rules", err).WithPath(cfg.LogPipeline.RulesDir)
	}

	format, err := ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}

	if format == OutputFormatJSON {
		type ruleInfo struct {
			ID         string `json:"id"`
			Title      string `json:"title"`
			Severity   string `json:"severity"`
			Enabled    bool   `json:"enabled"`
			SourceFile string `json:"source_file"`
		}
		out := make([]ruleInfo, 0, len(loaded))
		for _, r := range loaded {
			out = append(out, ruleInfo{ID: r.ID, Title: r.Title, Severity: r.Severity.String(), Enabled: r.Enabled, SourceFile: r.SourceFile})
		}
		return printJSON(out)
	}

	t := newTable()
	t.AppendHeader(tableRow("ID", "TITLE", "SEVERITY", "ENABLED", "SOURCE"))
	for _, r := range loaded {
		t.AppendRow(tableRow(r.ID, r.Title, r.Severity.String(), r.Enabled, r.SourceFile))
	}
	t.Render()
	fmt.Printf("%d rule(s) loaded from %s\n", len(loaded), cfg.LogPipeline.RulesDir)
	return nil
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loaded, err := rules.LoadDir(cfg.LogPipeline.RulesDir)
	if err != nil {
		return ironerr.Wrap(ironerr.KindInput, "rule validation failed", err).WithPath(cfg.LogPipeline.RulesDir)
	}

	fmt.Printf("rules OK: %d rule(s) valid in %s\n", len(loaded), cfg.LogPipeline.RulesDir)
	return nil
}
