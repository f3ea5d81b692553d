// Package analyzer runs the crash diagnosis pipeline: it matches a crash log
// against the knowledge store, compiles the prompts, calls the model and
// interprets the answer.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bimmerbailey/crashdoc/internal/knowledge"
	"github.com/bimmerbailey/crashdoc/internal/llm"
	"github.com/bimmerbailey/crashdoc/internal/parser"
	"github.com/bimmerbailey/crashdoc/internal/preprocess"
	"github.com/bimmerbailey/crashdoc/internal/prompt"
)

// DefaultFullThreshold is the largest store that auto mode renders in full.
const DefaultFullThreshold = 50

// ModeAuto lets the analyzer pick full or filtered by store size.
const ModeAuto = "auto"

// ModeRules marks a result produced by the rule prefilter alone.
const ModeRules = "rules"

var (
	// ErrEmptyLog is returned when the crash log is blank.
	ErrEmptyLog = errors.New("crash log is empty")

	// ErrNoProvider is returned when a model call is needed but the analyzer
	// was built without a provider.
	ErrNoProvider = errors.New("no model provider configured")
)

// Options configures an Analyzer.
type Options struct {
	Model       string
	Temperature float32

	// Mode is "auto", "full" or "filtered". Empty means auto.
	Mode string

	// FullThreshold is the largest store auto mode renders in full. Zero
	// uses DefaultFullThreshold.
	FullThreshold int

	// JSONMode asks for a JSON fingerprint and parses it into a Diagnosis.
	JSONMode bool

	// Schema sends the Fingerprint JSON schema as the response format.
	// It implies JSONMode.
	Schema bool

	// Think enables the model's thinking phase.
	Think bool

	// Hybrid returns the rule prefilter's answer without calling the model
	// when its best match has high confidence.
	Hybrid bool

	// Redactor scrubs the log before it is sent. Nil sends it unchanged.
	Redactor *preprocess.Redactor
}

// Request is one crash log to analyse.
type Request struct {
	// ID correlates log lines; a UUID is generated when empty.
	ID string

	// Source names where the log came from, e.g. a file path.
	Source string

	Log string

	// Platform overrides platform detection ("windows", "mac", "linux").
	Platform string

	// Model overrides Options.Model.
	Model string
}

// Result is the outcome of one analysis.
type Result struct {
	ID           string            `json:"id" yaml:"id"`
	Source       string            `json:"source,omitempty" yaml:"source,omitempty"`
	Model        string            `json:"model,omitempty" yaml:"model,omitempty"`
	Mode         string            `json:"mode" yaml:"mode"`
	Platform     string            `json:"platform,omitempty" yaml:"platform,omitempty"`
	Crash        parser.Report     `json:"crash" yaml:"crash"`
	Rules        []string          `json:"matched_rules" yaml:"matched_rules"`
	Matches      []knowledge.Match `json:"matches,omitempty" yaml:"matches,omitempty"`
	Text         string            `json:"analysis" yaml:"analysis"`
	Thinking     string            `json:"thinking,omitempty" yaml:"thinking,omitempty"`
	Diagnosis    *Diagnosis        `json:"diagnosis,omitempty" yaml:"diagnosis,omitempty"`
	SystemPrompt string            `json:"-" yaml:"-"`
	Redactions   int               `json:"redactions,omitempty" yaml:"redactions,omitempty"`
	PromptTokens int               `json:"prompt_tokens,omitempty" yaml:"prompt_tokens,omitempty"`
	EvalTokens   int               `json:"eval_tokens,omitempty" yaml:"eval_tokens,omitempty"`
	Duration     time.Duration     `json:"duration_ns" yaml:"duration"`
}

// Analyzer diagnoses crash logs. It holds no per-request state and is safe
// for concurrent use.
type Analyzer struct {
	store    *knowledge.Store
	provider llm.Provider
	opts     Options
	logger   *slog.Logger
}

// New creates an Analyzer. The provider may be nil when only Match is used.
func New(store *knowledge.Store, provider llm.Provider, opts Options, logger *slog.Logger) (*Analyzer, error) {
	if store == nil {
		return nil, errors.New("knowledge store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts.FullThreshold <= 0 {
		opts.FullThreshold = DefaultFullThreshold
	}
	if opts.Schema {
		opts.JSONMode = true
	}

	a := &Analyzer{store: store, provider: provider, opts: opts, logger: logger}
	if _, err := a.Mode(); err != nil {
		return nil, err
	}
	return a, nil
}

// Mode resolves the prompt mode. Auto renders the whole store when it has at
// most FullThreshold rules and only the matched rules otherwise.
func (a *Analyzer) Mode() (prompt.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(a.opts.Mode)) {
	case "", ModeAuto:
		if a.store.Len() <= a.opts.FullThreshold {
			return prompt.ModeFull, nil
		}
		return prompt.ModeFiltered, nil
	default:
		return prompt.ParseMode(a.opts.Mode)
	}
}

// plan is everything derived from a request before the model is called.
type plan struct {
	result   *Result
	messages []llm.Message
	best     knowledge.Match
	hasBest  bool
	start    time.Time

	// log is the text sent to the model; raw is the caller's original.
	log string
	raw string
}

func (a *Analyzer) prepare(req Request) (*plan, error) {
	start := time.Now()
	if strings.TrimSpace(req.Log) == "" {
		return nil, ErrEmptyLog
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	report := parser.Inspect(req.Log)
	platform := knowledge.NormalizePlatform(req.Platform)
	if platform == "" {
		platform = report.Platform
	}

	matches := a.store.Prefilter(req.Log, platform)
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Rule.ID
	}
	best, hasBest := knowledge.Best(matches)

	model := req.Model
	if model == "" {
		model = a.opts.Model
	}

	res := &Result{
		ID:       id,
		Source:   req.Source,
		Model:    model,
		Platform: platform,
		Crash:    report,
		Rules:    ids,
		Matches:  matches,
	}

	logText := req.Log
	if a.opts.Redactor.Enabled() {
		logText, res.Redactions = a.opts.Redactor.Clone().RedactAndCount(logText)
	}

	return &plan{result: res, best: best, hasBest: hasBest, log: logText, raw: req.Log, start: start}, nil
}

// compile renders the prompts into the plan.
func (a *Analyzer) compile(p *plan) error {
	mode, err := a.Mode()
	if err != nil {
		return err
	}

	matched := make([]knowledge.Rule, len(p.result.Matches))
	for i, m := range p.result.Matches {
		matched[i] = m.Rule
	}

	system, err := prompt.BuildSystemPrompt(a.store, matched, mode, prompt.WithJSONContract(a.opts.JSONMode))
	if err != nil {
		return err
	}

	p.result.Mode = string(mode)
	p.result.SystemPrompt = system
	p.messages = []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: prompt.BuildUserPrompt(p.log, a.opts.JSONMode)},
	}

	a.logger.Info("analyzing crash log",
		"request_id", p.result.ID,
		"source", p.result.Source,
		"model", p.result.Model,
		"mode", mode,
		"platform", p.result.Platform,
		"format", p.result.Crash.Format,
		"rules", p.result.Rules,
		"redactions", p.result.Redactions,
		"system_prompt_chars", len(system))
	return nil
}

func (a *Analyzer) chatOptions(model string) *llm.ChatOptions {
	opts := &llm.ChatOptions{
		Model:       model,
		Temperature: a.opts.Temperature,
		JSONMode:    a.opts.JSONMode,
		Think:       a.opts.Think,
	}
	if a.opts.Schema {
		opts.Schema = Schema()
	}
	return opts
}

// Match runs the rule prefilter alone. No model is called.
func (a *Analyzer) Match(req Request) (*Result, error) {
	p, err := a.prepare(req)
	if err != nil {
		return nil, err
	}
	a.ruleOnly(p)
	return p.result, nil
}

// hybridShortcut reports whether hybrid mode can answer from the rules.
func (a *Analyzer) hybridShortcut(p *plan) bool {
	if !a.opts.Hybrid || !p.hasBest || p.best.Confidence != knowledge.ConfidenceHigh {
		return false
	}
	a.logger.Info("rule prefilter is confident, skipping model",
		"request_id", p.result.ID,
		"rule", p.best.Rule.ID)
	a.ruleOnly(p)
	return true
}

// ruleOnly fills the result from the best prefilter match.
func (a *Analyzer) ruleOnly(p *plan) {
	res := p.result
	res.Mode = ModeRules
	res.Model = ""
	res.Duration = time.Since(p.start)

	if !p.hasBest {
		res.Text = "No known crash rule matches this log."
		res.Diagnosis = &Diagnosis{Fingerprint: Fingerprint{
			RootCause:     UnknownRootCause,
			KeyInfo:       []string{},
			Confidence:    string(knowledge.ConfidenceLow),
			UnknownReason: "no known crash rule matches this log",
		}}
		return
	}

	r := p.best.Rule
	hits := append(append([]string{}, p.best.Keywords...), p.best.Exceptions...)
	res.Diagnosis = &Diagnosis{
		Fingerprint: Fingerprint{
			RootCause:  r.Name,
			KeyInfo:    keyLines(p.raw, hits, 5),
			Confidence: string(p.best.Confidence),
		},
		MatchedRules: res.Rules,
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n\n%s\n\nSolution:\n%s\n",
		r.Name, r.ID, strings.TrimSpace(r.Description), strings.TrimSpace(r.Solution))
	res.Text = sb.String()
}

// Analyze diagnoses one crash log with a single non-streaming model call.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	p, err := a.prepare(req)
	if err != nil {
		return nil, err
	}
	if a.hybridShortcut(p) {
		return p.result, nil
	}
	if a.provider == nil {
		return nil, ErrNoProvider
	}
	if err := a.compile(p); err != nil {
		return nil, err
	}

	resp, err := a.provider.Chat(ctx, p.messages, a.chatOptions(p.result.Model))
	if err != nil {
		a.logger.Error("analysis failed", "request_id", p.result.ID, "error", err)
		return nil, fmt.Errorf("analysis %s: %w", p.result.ID, err)
	}

	res := p.result
	res.Text = resp.Content
	res.Thinking = resp.Thinking
	if resp.Model != "" {
		res.Model = resp.Model
	}
	res.PromptTokens = resp.PromptTokens
	res.EvalTokens = resp.EvalTokens
	a.finish(p)
	return res, nil
}

// AnalyzeStream diagnoses one crash log, passing every chunk to fn as it
// arrives while accumulating the full answer. An error from fn abandons the
// stream and is returned.
func (a *Analyzer) AnalyzeStream(ctx context.Context, req Request, fn func(llm.Chunk) error) (*Result, error) {
	p, err := a.prepare(req)
	if err != nil {
		return nil, err
	}
	if a.hybridShortcut(p) {
		if fn != nil {
			if err := fn(llm.Chunk{Content: p.result.Text, Done: true}); err != nil {
				return nil, err
			}
		}
		return p.result, nil
	}
	if a.provider == nil {
		return nil, ErrNoProvider
	}
	if err := a.compile(p); err != nil {
		return nil, err
	}

	stream, err := a.provider.ChatStream(ctx, p.messages, a.chatOptions(p.result.Model))
	if err != nil {
		a.logger.Error("analysis failed", "request_id", p.result.ID, "error", err)
		return nil, fmt.Errorf("analysis %s: %w", p.result.ID, err)
	}
	defer stream.Close()

	res := p.result
	var text, thinking strings.Builder
	for stream.Next() {
		chunk := stream.Chunk()
		text.WriteString(chunk.Content)
		thinking.WriteString(chunk.Thinking)
		if chunk.Done {
			res.PromptTokens = chunk.PromptTokens
			res.EvalTokens = chunk.EvalTokens
			if chunk.Model != "" {
				res.Model = chunk.Model
			}
		}
		if fn != nil {
			if err := fn(chunk); err != nil {
				return nil, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		a.logger.Error("analysis stream failed", "request_id", res.ID, "error", err, "received_chars", text.Len())
		return nil, fmt.Errorf("analysis %s: %w", res.ID, err)
	}

	res.Text = text.String()
	res.Thinking = thinking.String()
	a.finish(p)
	return res, nil
}

// finish parses the diagnosis in JSON mode and records timing.
func (a *Analyzer) finish(p *plan) {
	res := p.result
	res.Duration = time.Since(p.start)

	if a.opts.JSONMode {
		d, err := ParseDiagnosis(res.Text)
		if err != nil {
			a.logger.Warn("could not parse diagnosis", "request_id", res.ID, "error", err)
		} else {
			d.MatchedRules = res.Rules
			res.Diagnosis = d
		}
	}

	a.logger.Info("analysis complete",
		"request_id", res.ID,
		"model", res.Model,
		"prompt_tokens", res.PromptTokens,
		"eval_tokens", res.EvalTokens,
		"duration", res.Duration)
}

// keyLines returns up to limit trimmed lines of log that contain any of
// needles, in log order.
func keyLines(log string, needles []string, limit int) []string {
	lowered := make([]string, 0, len(needles))
	for _, n := range needles {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			lowered = append(lowered, n)
		}
	}

	out := []string{}
	for line := range strings.Lines(log) {
		lower := strings.ToLower(line)
		for _, n := range lowered {
			if strings.Contains(lower, n) {
				out = append(out, strings.TrimSpace(line))
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out
}
