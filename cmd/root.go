package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bimmerbailey/crashdoc/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "crashdoc",
	Short: "Diagnose IDE and JVM crash logs with a local model",
	Long: `crashdoc diagnoses JetBrains IDE and JVM crash logs (hs_err_pid*.log,
JBR/JCEF stack traces, idea.log excerpts). It matches the log against a
knowledge base of known crash signatures and asks a locally running Ollama
model for a diagnosis grounded in the matching rules.

Examples:
  crashdoc analyze hs_err_pid12345.log
  crashdoc analyze --json --schema --file java_error_in_idea_4242.log
  crashdoc match hs_err_pid12345.log
  crashdoc batch --concurrency 2 ~/crashes/
  crashdoc watch ~/Library/Logs/JetBrains/IntelliJIdea2025.2
  crashdoc models`,
	SilenceUsage: true,
}

// Execute is called by main.main(). It runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.crashdoc.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "output format (text, json, yaml, markdown, table)")
	rootCmd.PersistentFlags().String("color", "auto", "colour output (auto, always, never)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringP("model", "m", "", "Ollama model to use (default "+config.DefaultModel+")")
	rootCmd.PersistentFlags().String("host", "", "Ollama host (default $OLLAMA_HOST or "+config.DefaultHost+")")
	rootCmd.PersistentFlags().String("timeout", "", "per-call model timeout, e.g. 5m, 1h, 1d")
	rootCmd.PersistentFlags().String("rules", "", "knowledge file (YAML or JSON) replacing the built-in rules")

	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("llm.ollama.host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("llm.timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("knowledge.file", rootCmd.PersistentFlags().Lookup("rules"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error finding home directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".crashdoc")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CRASHDOC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// setDefaults registers every configuration key so that environment
// variables resolve even without a config file.
func setDefaults() {
	viper.SetDefault("format", "text")
	viper.SetDefault("color", "auto")
	viper.SetDefault("verbose", false)
	viper.SetDefault("debug", false)

	viper.SetDefault("llm.model", config.DefaultModel)
	viper.SetDefault("llm.temperature", config.DefaultTemperature)
	viper.SetDefault("llm.timeout", config.DefaultTimeout.String())
	viper.SetDefault("llm.think", false)
	viper.SetDefault("llm.ollama.host", "")
	viper.SetDefault("llm.ollama.keep_alive", "5m")
	viper.SetDefault("llm.ollama.num_ctx", 0)

	viper.SetDefault("analysis.mode", "auto")
	viper.SetDefault("analysis.full_threshold", config.DefaultFullThreshold)
	viper.SetDefault("analysis.json_mode", false)
	viper.SetDefault("analysis.schema", false)
	viper.SetDefault("analysis.hybrid", false)

	viper.SetDefault("knowledge.file", "")

	viper.SetDefault("redaction.enabled", true)
	viper.SetDefault("redaction.patterns", []string{})
}
