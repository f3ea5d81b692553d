package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bimmerbailey/crashdoc/internal/analyzer"
)

var matchCmd = &cobra.Command{
	Use:   "match [flags] [file]",
	Short: "Match a crash log against the knowledge base without a model",
	Long: `Match a crash log against the knowledge base only. Every eligible rule is
listed with a confidence grade, and the strongest match is reported as the
diagnosis. No model is contacted, so this works offline.

Examples:
  crashdoc match hs_err_pid12345.log
  crashdoc match --platform windows --format json hs_err_pid12345.log`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMatch,
}

func init() {
	addInputFlags(matchCmd)
	matchCmd.Flags().String("platform", "", "override platform detection (windows, mac, linux)")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	platform, _ := cmd.Flags().GetString("platform")
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	source, text, err := readLogInput(cmd, args)
	if err != nil {
		return err
	}

	store, err := loadStore(cfg, logger)
	if err != nil {
		return err
	}

	anlz, err := newAnalyzer(cfg, store, nil, logger)
	if err != nil {
		return err
	}

	res, err := anlz.Match(analyzer.Request{Source: source, Log: text, Platform: platform})
	if err != nil {
		return err
	}
	return newWriter(cmd, cfg).WriteResult(res)
}
