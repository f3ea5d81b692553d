package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/crashdoc/internal/analyzer"
	"github.com/bimmerbailey/crashdoc/internal/llm"
	"github.com/bimmerbailey/crashdoc/internal/output"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] [file]",
	Short: "Diagnose a crash log with the local model",
	Long: `Diagnose a crash log. The log is matched against the knowledge base, the
matching rules are compiled into the system prompt and the local Ollama
model is asked for the root cause and a fix.

On a terminal the answer is streamed as it is generated. With --format json
or yaml, or when output is piped, the complete result is written at the end.

Examples:
  crashdoc analyze hs_err_pid12345.log
  crashdoc analyze --file java_error_in_idea_4242.log --mode filtered
  crashdoc analyze --json --schema hs_err_pid12345.log
  cat idea.log | crashdoc analyze --platform mac`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	addInputFlags(analyzeCmd)
	addAnalysisFlags(analyzeCmd)
	analyzeCmd.Flags().Bool("no-stream", false, "wait for the complete answer instead of streaming it")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAnalysisFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	platform, _ := cmd.Flags().GetString("platform")
	noStream, _ := cmd.Flags().GetBool("no-stream")

	logger := newLogger(cmd.ErrOrStderr(), cfg)

	source, text, err := readLogInput(cmd, args)
	if err != nil {
		return err
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

	req := analyzer.Request{Source: source, Log: text, Platform: platform}
	if !cfg.Analysis.Hybrid {
		if err := checkModel(ctx, provider, cfg); err != nil {
			return err
		}
	}

	w := newWriter(cmd, cfg)
	stream := !noStream && !w.Structured() && w.Format() != output.FormatMarkdown && !cfg.Analysis.JSONMode &&
		output.IsTerminal(cmd.OutOrStdout())

	if stream {
		res, err := anlz.AnalyzeStream(ctx, req, func(c llm.Chunk) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), c.Content)
			return err
		})
		if err != nil {
			return explainLLMError(err, cfg)
		}
		fmt.Fprint(cmd.OutOrStdout(), "\n\n")
		return w.WriteSummary(res)
	}

	progress := output.StartProgress(cmd.ErrOrStderr(), "Analyzing crash log with "+cfg.LLM.Model+"...")
	res, err := anlz.Analyze(ctx, req)
	progress.Stop()
	if err != nil {
		return explainLLMError(err, cfg)
	}
	return w.WriteResult(res)
}

// cmdContext returns the command's context, or Background when it was run
// without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
