package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/crashdoc/internal/analyzer"
	"github.com/bimmerbailey/crashdoc/internal/config"
	"github.com/bimmerbailey/crashdoc/internal/llm"
	"github.com/bimmerbailey/crashdoc/internal/output"
	"github.com/bimmerbailey/crashdoc/internal/parser"
)

var batchCmd = &cobra.Command{
	Use:   "batch [flags] <file|dir|glob>...",
	Short: "Diagnose many crash logs",
	Long: `Diagnose many crash logs independently. Arguments may be files, glob
patterns or directories; a directory contributes the crash logs directly
inside it (hs_err_pid*.log, java_error_in_*.log, jbr_err_pid*.log,
*.crash.log). Answers are not streamed. One failed log does not stop the
others.

Examples:
  crashdoc batch ~/crashes/
  crashdoc batch --concurrency 2 --format json 'logs/hs_err_pid*.log' > results.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	addAnalysisFlags(batchCmd)
	batchCmd.Flags().IntP("concurrency", "j", 1, "number of logs analysed at once")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAnalysisFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	platform, _ := cmd.Flags().GetString("platform")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	logger := newLogger(cmd.ErrOrStderr(), cfg)

	files, err := config.ExpandInputs(args)
	if err != nil {
		return err
	}

	reqs := make([]analyzer.Request, 0, len(files))
	for _, file := range files {
		text, err := parser.ReadFile(file)
		if err != nil {
			return err
		}
		reqs = append(reqs, analyzer.Request{Source: file, Log: text, Platform: platform})
	}

	store, err := loadStore(cfg, logger)
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}

	anlz, err := newAnalyzer(cfg, store, provider, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Analysis.Hybrid {
		if err := checkModel(ctx, provider, cfg); err != nil {
			return err
		}
	}

	progress := output.StartProgress(cmd.ErrOrStderr(), fmt.Sprintf("Analyzing %d crash logs...", len(reqs)))
	items, err := anlz.Batch(ctx, reqs, concurrency)
	progress.Stop()

	if werr := newWriter(cmd, cfg).WriteBatch(items); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}

	failed := 0
	for _, it := range items {
		if it.Err() != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d crash logs failed", failed, len(items))
	}
	return nil
}
