package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/crashdoc/internal/analyzer"
	"github.com/bimmerbailey/crashdoc/internal/config"
	"github.com/bimmerbailey/crashdoc/internal/llm"
	"github.com/bimmerbailey/crashdoc/internal/parser"
	"github.com/bimmerbailey/crashdoc/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <dir>",
	Short: "Diagnose crash logs as they appear in a directory",
	Long: `Watch a directory and diagnose every new crash log written to it
(hs_err_pid*.log, java_error_in_*.log, jbr_err_pid*.log, *.crash.log).
A file is analysed once it has stopped changing for the settle period.
Press Ctrl+C to stop.

Examples:
  crashdoc watch ~/Library/Logs/JetBrains/IntelliJIdea2025.2
  crashdoc watch --existing --rules-only .
  crashdoc watch --settle 5s --format json /tmp`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	addAnalysisFlags(watchCmd)
	watchCmd.Flags().Bool("existing", false, "also analyse crash logs already in the directory")
	watchCmd.Flags().String("settle", "2s", "how long a file must stay unchanged before it is analysed")
	watchCmd.Flags().Bool("rules-only", false, "match against the knowledge base without a model")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAnalysisFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	platform, _ := cmd.Flags().GetString("platform")
	existing, _ := cmd.Flags().GetBool("existing")
	rulesOnly, _ := cmd.Flags().GetBool("rules-only")
	settleStr, _ := cmd.Flags().GetString("settle")

	settle, err := config.ParseDuration(settleStr)
	if err != nil {
		return fmt.Errorf("invalid --settle value: %w", err)
	}
	if settle <= 0 {
		return fmt.Errorf("settle duration must be positive")
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)

	store, err := loadStore(cfg, logger)
	if err != nil {
		return err
	}

	var provider llm.Provider
	if !rulesOnly {
		provider, err = llm.NewProvider(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create LLM provider: %w", err)
		}
	}

	anlz, err := newAnalyzer(cfg, store, provider, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if provider != nil && !cfg.Analysis.Hybrid {
		if err := checkModel(ctx, provider, cfg); err != nil {
			return err
		}
	}

	w := newWriter(cmd, cfg)
	var mu sync.Mutex
	handler := func(ctx context.Context, path string) error {
		text, err := parser.ReadFile(path)
		if err != nil {
			return err
		}
		req := analyzer.Request{Source: path, Log: text, Platform: platform}

		var res *analyzer.Result
		if rulesOnly {
			res, err = anlz.Match(req)
		} else {
			res, err = anlz.Analyze(ctx, req)
		}
		if err != nil {
			return explainLLMError(err, cfg)
		}

		mu.Lock()
		defer mu.Unlock()
		if !w.Structured() {
			fmt.Fprintf(cmd.OutOrStdout(), "==> %s (%s) <==\n", path, time.Now().Format("15:04:05"))
		}
		return w.WriteResult(res)
	}

	watcher, err := watch.New(watch.Options{
		Dir:      args[0],
		Existing: existing,
		Settle:   settle,
		Handler:  handler,
	}, logger)
	if err != nil {
		return err
	}

	if !w.Structured() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for crash logs. Press Ctrl+C to stop.\n", args[0])
	}
	return watcher.Run(ctx)
}
