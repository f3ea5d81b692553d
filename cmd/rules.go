package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules [id]",
	Short: "List the known crash signatures",
	Long: `List the crash signatures in the knowledge base, or show one in full.

Examples:
  crashdoc rules
  crashdoc rules --format table
  crashdoc rules PHYSICAL_OOM
  crashdoc rules --rules ./team-rules.yaml --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	store, err := loadStore(cfg, logger)
	if err != nil {
		return err
	}

	w := newWriter(cmd, cfg)
	if len(args) == 0 {
		return w.WriteRules(store.Rules())
	}

	r, ok := store.Get(args[0])
	if !ok {
		return fmt.Errorf("no rule with id %q", args[0])
	}
	return w.WriteRule(r)
}
