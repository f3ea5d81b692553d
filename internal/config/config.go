// Package config provides configuration types and helpers for crashdoc.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults mirrored into viper by cmd/root.go.
const (
	DefaultHost          = "http://localhost:11434"
	DefaultModel         = "qwen3:4b"
	DefaultTemperature   = 0.1
	DefaultTimeout       = 200 * time.Minute
	DefaultFullThreshold = 50
)

// Config holds the application-wide configuration.
type Config struct {
	Format    string          `mapstructure:"format"`
	Color     string          `mapstructure:"color"`
	Verbose   bool            `mapstructure:"verbose"`
	Debug     bool            `mapstructure:"debug"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Redaction RedactionConfig `mapstructure:"redaction"`
}

// LLMConfig holds configuration for the model runtime.
type LLMConfig struct {
	// Model is the Ollama model tag, e.g. "qwen3:4b".
	Model string `mapstructure:"model"`

	// Temperature is passed through verbatim. Diagnosis wants it low.
	Temperature float32 `mapstructure:"temperature"`

	// Timeout bounds connect + read for a single chat call, e.g. "5m", "1h".
	Timeout string `mapstructure:"timeout"`

	// Think enables reasoning output on models that support it.
	Think bool `mapstructure:"think"`

	Ollama OllamaConfig `mapstructure:"ollama"`
}

// OllamaConfig holds Ollama-specific settings.
type OllamaConfig struct {
	Host      string `mapstructure:"host"`       // API endpoint
	KeepAlive string `mapstructure:"keep_alive"` // e.g., "5m"
	NumCtx    int    `mapstructure:"num_ctx"`    // Context window size
}

// AnalysisConfig controls how the analyzer assembles prompts.
type AnalysisConfig struct {
	// Mode is "auto", "full" or "filtered".
	Mode string `mapstructure:"mode"`

	// FullThreshold is the largest knowledge store that "auto" renders in full.
	FullThreshold int `mapstructure:"full_threshold"`

	// JSONMode asks the model for a JSON crash fingerprint.
	JSONMode bool `mapstructure:"json_mode"`

	// Schema sends a JSON schema as the format instead of plain "json".
	Schema bool `mapstructure:"schema"`

	// Hybrid skips the model when the rule prefilter is highly confident.
	Hybrid bool `mapstructure:"hybrid"`
}

// KnowledgeConfig points at an optional user-supplied knowledge file.
type KnowledgeConfig struct {
	// File is a YAML or JSON rule file. Empty uses the embedded rules.
	File string `mapstructure:"file"`
}

// RedactionConfig holds configuration for secret redaction before a log
// is sent to the model.
type RedactionConfig struct {
	// Enabled controls whether redaction is active
	Enabled bool `mapstructure:"enabled"`

	// Patterns specifies which redaction patterns to use
	// Available: ipv4, ipv6, email, api_key, aws_key, jwt, private_key, mac_address, user_home, uuid
	Patterns []string `mapstructure:"patterns"`
}

// TimeoutDuration parses LLM.Timeout, falling back to DefaultTimeout when unset.
func (c LLMConfig) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return DefaultTimeout, nil
	}
	d, err := ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid llm.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid llm.timeout: must be positive")
	}
	return d, nil
}

// Validate reports configuration errors that must fail before any network call.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Analysis.Mode) {
	case "", "auto", "full", "filtered":
	default:
		return fmt.Errorf("invalid analysis.mode: %s (must be 'auto', 'full', or 'filtered')", c.Analysis.Mode)
	}

	if c.Analysis.FullThreshold < 0 {
		return fmt.Errorf("invalid analysis.full_threshold: %d", c.Analysis.FullThreshold)
	}

	if c.LLM.Temperature < 0 {
		return fmt.Errorf("invalid llm.temperature: %v", c.LLM.Temperature)
	}

	if _, err := c.LLM.TimeoutDuration(); err != nil {
		return err
	}

	return nil
}
