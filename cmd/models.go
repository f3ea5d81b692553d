package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/crashdoc/internal/llm"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models installed in the local Ollama runtime",
	Long: `List the models installed in the local Ollama runtime. The configured
model is marked with an asterisk.

Examples:
  crashdoc models
  crashdoc models --host http://gpu-box:11434 --format json`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	provider, err := llm.NewProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}

	ctx := cmdContext(cmd)
	if err := provider.Heartbeat(ctx); err != nil {
		return explainLLMError(err, cfg)
	}

	models, err := provider.ListModels(ctx)
	if err != nil {
		return explainLLMError(err, cfg)
	}
	return newWriter(cmd, cfg).WriteModels(models, cfg.LLM.Model)
}
