package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ollama/ollama/envconfig"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/bimmerbailey/crashdoc/internal/analyzer"
	"github.com/bimmerbailey/crashdoc/internal/config"
	"github.com/bimmerbailey/crashdoc/internal/knowledge"
	"github.com/bimmerbailey/crashdoc/internal/llm"
	"github.com/bimmerbailey/crashdoc/internal/output"
	"github.com/bimmerbailey/crashdoc/internal/parser"
	"github.com/bimmerbailey/crashdoc/internal/preprocess"
)

// loadConfig unmarshals and validates the viper configuration.
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = config.DefaultModel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs errors only by default, info with --verbose and debug
// with --debug.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelError
	switch {
	case cfg.Debug:
		level = slog.LevelDebug
	case cfg.Verbose:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newWriter(cmd *cobra.Command, cfg *config.Config) *output.Writer {
	return output.New(cmd.OutOrStdout(), output.ParseFormat(cfg.Format), output.ParseColorMode(cfg.Color))
}

// loadStore returns the user's knowledge file when configured and the
// built-in rules otherwise.
func loadStore(cfg *config.Config, logger *slog.Logger) (*knowledge.Store, error) {
	if cfg.Knowledge.File == "" {
		return knowledge.Default()
	}
	store, err := knowledge.LoadFile(cfg.Knowledge.File)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded knowledge file", "path", cfg.Knowledge.File, "rules", store.Len())
	return store, nil
}

// addAnalysisFlags registers the flags shared by analyze, batch and watch.
func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "prompt mode: auto, full or filtered")
	cmd.Flags().String("platform", "", "override platform detection (windows, mac, linux)")
	cmd.Flags().Bool("json", false, "ask the model for a structured JSON diagnosis")
	cmd.Flags().Bool("schema", false, "constrain the JSON diagnosis with a JSON schema (implies --json)")
	cmd.Flags().Bool("hybrid", false, "skip the model when a known rule matches with high confidence")
	cmd.Flags().Bool("think", false, "enable the model's thinking phase")
	cmd.Flags().Bool("no-redact", false, "send the log without redacting secrets and user names")
}

// applyAnalysisFlags overlays explicitly set analysis flags on cfg.
func applyAnalysisFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Analysis.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("json") {
		cfg.Analysis.JSONMode, _ = flags.GetBool("json")
	}
	if flags.Changed("schema") {
		cfg.Analysis.Schema, _ = flags.GetBool("schema")
	}
	if flags.Changed("hybrid") {
		cfg.Analysis.Hybrid, _ = flags.GetBool("hybrid")
	}
	if flags.Changed("think") {
		cfg.LLM.Think, _ = flags.GetBool("think")
	}
	if noRedact, _ := flags.GetBool("no-redact"); noRedact {
		cfg.Redaction.Enabled = false
	}
}

// newAnalyzer builds the analyzer for cfg. provider may be nil for rule-only
// use.
func newAnalyzer(cfg *config.Config, store *knowledge.Store, provider llm.Provider, logger *slog.Logger) (*analyzer.Analyzer, error) {
	redactor, err := preprocess.NewRedactor(cfg.Redaction.Enabled, cfg.Redaction.Patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid redaction.patterns: %w", err)
	}

	return analyzer.New(store, provider, analyzer.Options{
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		Mode:          cfg.Analysis.Mode,
		FullThreshold: cfg.Analysis.FullThreshold,
		JSONMode:      cfg.Analysis.JSONMode,
		Schema:        cfg.Analysis.Schema,
		Think:         cfg.LLM.Think,
		Hybrid:        cfg.Analysis.Hybrid,
		Redactor:      redactor,
	}, logger)
}

// ollamaHost returns the host the provider will dial.
func ollamaHost(cfg *config.Config) string {
	if cfg.LLM.Ollama.Host != "" {
		return cfg.LLM.Ollama.Host
	}
	return envconfig.Host().String()
}

// checkModel verifies the runtime is reachable and the model is pulled.
func checkModel(ctx context.Context, provider llm.Provider, cfg *config.Config) error {
	if err := provider.Heartbeat(ctx); err != nil {
		return explainLLMError(err, cfg)
	}
	ok, err := provider.ModelAvailable(ctx, cfg.LLM.Model)
	if err != nil {
		return explainLLMError(err, cfg)
	}
	if !ok {
		return fmt.Errorf("model %s is not available locally: %w\n\nPull it with: ollama pull %s",
			cfg.LLM.Model, llm.ErrModelNotFound, cfg.LLM.Model)
	}
	return nil
}

// explainLLMError adds remediation advice to model runtime failures.
func explainLLMError(err error, cfg *config.Config) error {
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		return fmt.Errorf("cannot connect to Ollama at %s: %w\n\nStart Ollama with: ollama serve", ollamaHost(cfg), err)
	case errors.Is(err, llm.ErrModelNotFound):
		return fmt.Errorf("%w\n\nPull the model with: ollama pull %s", err, cfg.LLM.Model)
	case errors.Is(err, llm.ErrTimeout):
		return fmt.Errorf("%w\n\nRaise llm.timeout (currently %s) or use a smaller model", err, cfg.LLM.Timeout)
	default:
		return err
	}
}

// readLogInput returns the crash log named by --file, given by --log, named
// by the first argument, or piped on stdin, in that order of preference.
func readLogInput(cmd *cobra.Command, args []string) (source, text string, err error) {
	file, _ := cmd.Flags().GetString("file")
	inline, _ := cmd.Flags().GetString("log")

	switch {
	case file != "":
		source = file
	case inline != "":
		return "inline", inline, nil
	case len(args) > 0:
		source = args[0]
	default:
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return "", "", errors.New("no crash log given: pass a file, --log text or pipe it on stdin")
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return "", "", fmt.Errorf("reading stdin: %w", err)
		}
		return "stdin", strings.ToValidUTF8(string(data), ""), nil
	}

	text, err = parser.ReadFile(source)
	if err != nil {
		return "", "", err
	}
	return source, text, nil
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "F", "", "crash log file to read")
	cmd.Flags().String("log", "", "crash log text given inline")
}
