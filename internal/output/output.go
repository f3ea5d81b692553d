// Package output renders analysis results, rule listings and model listings
// in text, JSON, YAML, markdown and table formats.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/bimmerbailey/crashdoc/internal/analyzer"
	"github.com/bimmerbailey/crashdoc/internal/knowledge"
	"github.com/bimmerbailey/crashdoc/internal/llm"
)

// Format represents an output format type.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatTable    Format = "table"
)

// ParseFormat converts a string to a Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "markdown", "md":
		return FormatMarkdown
	case "table":
		return FormatTable
	default:
		return FormatText
	}
}

// Writer handles writing formatted output.
type Writer struct {
	w        io.Writer
	format   Format
	colorize bool
	width    int
}

// New creates a new output Writer. Colour and terminal markdown rendering
// follow mode; ColorAuto enables them only when w is a terminal.
func New(w io.Writer, format Format, mode ColorMode) *Writer {
	return &Writer{
		w:        w,
		format:   format,
		colorize: shouldColorize(mode, w),
		width:    terminalWidth(w),
	}
}

// Format returns the writer's format.
func (wr *Writer) Format() Format { return wr.format }

// Structured reports whether the format is machine-readable.
func (wr *Writer) Structured() bool {
	return wr.format == FormatJSON || wr.format == FormatYAML
}

// WriteJSON outputs any value as indented JSON.
func (wr *Writer) WriteJSON(v any) error {
	enc := json.NewEncoder(wr.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteYAML outputs any value as YAML.
func (wr *Writer) WriteYAML(v any) error {
	enc := yaml.NewEncoder(wr.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (wr *Writer) writeStructured(v any) (bool, error) {
	switch wr.format {
	case FormatJSON:
		return true, wr.WriteJSON(v)
	case FormatYAML:
		return true, wr.WriteYAML(v)
	}
	return false, nil
}

// WriteResult outputs one analysis result.
func (wr *Writer) WriteResult(res *analyzer.Result) error {
	if ok, err := wr.writeStructured(res); ok {
		return err
	}
	if wr.format == FormatMarkdown {
		_, err := io.WriteString(wr.w, MarkdownReport(res))
		return err
	}
	return wr.writeResultText(res, true)
}

// WriteSummary outputs the header and diagnosis of a result whose analysis
// text has already been streamed to the terminal.
func (wr *Writer) WriteSummary(res *analyzer.Result) error {
	if wr.Structured() {
		return wr.WriteResult(res)
	}
	return wr.writeResultText(res, false)
}

func (wr *Writer) writeResultText(res *analyzer.Result, withText bool) error {
	p := newPalette(wr.colorize)

	var sb strings.Builder
	crash := string(res.Crash.Format)
	if res.Platform != "" {
		crash += " on " + res.Platform
	}
	fmt.Fprintf(&sb, "%s %s\n", p.label.Sprint("Crash:"), crash)
	if len(res.Crash.Exceptions) > 0 {
		fmt.Fprintf(&sb, "%s %s\n", p.label.Sprint("Exceptions:"), strings.Join(res.Crash.Exceptions, ", "))
	}
	if res.Crash.ProblematicFrame != "" {
		fmt.Fprintf(&sb, "%s %s\n", p.label.Sprint("Frame:"), res.Crash.ProblematicFrame)
	}
	fmt.Fprintf(&sb, "%s %s\n", p.label.Sprint("Rules:"), wr.matchList(p, res))
	if res.Model != "" {
		fmt.Fprintf(&sb, "%s %s (%s mode)\n", p.label.Sprint("Model:"), res.Model, res.Mode)
	}

	if d := res.Diagnosis; d != nil {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%s %s\n", p.label.Sprint("Root cause:"), p.cause.Sprint(d.RootCause))
		fmt.Fprintf(&sb, "%s %s\n", p.label.Sprint("Confidence:"), confidenceColor(d.Confidence, wr.colorize).Sprint(d.Confidence))
		for _, line := range d.KeyInfo {
			fmt.Fprintf(&sb, "  %s %s\n", p.dim.Sprint(">"), line)
		}
		if d.UnknownReason != "" {
			fmt.Fprintf(&sb, "%s %s\n", p.label.Sprint("Unknown reason:"), d.UnknownReason)
		}
	}

	if withText && (res.Diagnosis == nil || res.Mode == analyzer.ModeRules) && res.Text != "" {
		sb.WriteString("\n")
		sb.WriteString(wr.renderText(res.Text))
		if !strings.HasSuffix(res.Text, "\n") {
			sb.WriteString("\n")
		}
	}

	if res.Redactions > 0 {
		fmt.Fprintf(&sb, "\n%s\n", p.dim.Sprintf("%d value(s) redacted before analysis", res.Redactions))
	}

	_, err := io.WriteString(wr.w, sb.String())
	return err
}

func (wr *Writer) matchList(p palette, res *analyzer.Result) string {
	if len(res.Matches) == 0 {
		return p.dim.Sprint("none")
	}
	parts := make([]string, len(res.Matches))
	for i, m := range res.Matches {
		parts[i] = fmt.Sprintf("%s (%s)", m.Rule.ID, confidenceColor(string(m.Confidence), wr.colorize).Sprint(m.Confidence))
	}
	return strings.Join(parts, ", ")
}

// renderText renders markdown for a terminal and returns text unchanged
// elsewhere.
func (wr *Writer) renderText(text string) string {
	if !wr.colorize {
		return text
	}
	out, err := renderMarkdown(text, wr.width)
	if err != nil {
		return text
	}
	return out
}

// WriteBatch outputs the items of a batch run.
func (wr *Writer) WriteBatch(items []analyzer.BatchItem) error {
	if ok, err := wr.writeStructured(items); ok {
		return err
	}

	p := newPalette(wr.colorize)
	for i, it := range items {
		if i > 0 {
			fmt.Fprintln(wr.w)
		}
		name := it.Source
		if name == "" {
			name = fmt.Sprintf("log %d", it.Index)
		}
		fmt.Fprintf(wr.w, "%s\n", p.header.Sprintf("[%d/%d] %s", it.Index, len(items), name))
		if it.Error != "" {
			fmt.Fprintf(wr.w, "%s %s\n", p.fail.Sprint("error:"), it.Error)
			continue
		}
		if wr.format == FormatMarkdown {
			io.WriteString(wr.w, MarkdownReport(it.Result))
			continue
		}
		if err := wr.writeResultText(it.Result, true); err != nil {
			return err
		}
	}
	return nil
}

// WriteRules outputs the knowledge base.
func (wr *Writer) WriteRules(rules []knowledge.Rule) error {
	if ok, err := wr.writeStructured(rules); ok {
		return err
	}
	if wr.format == FormatTable {
		return wr.writeRulesTable(rules)
	}

	p := newPalette(wr.colorize)
	for i, r := range rules {
		if i > 0 {
			fmt.Fprintln(wr.w)
		}
		fmt.Fprintf(wr.w, "%s  %s\n", p.header.Sprint(r.ID), r.Name)
		fmt.Fprintf(wr.w, "  %s %s\n", p.label.Sprint("Category:"), r.Category)
		if len(r.Platforms) > 0 {
			fmt.Fprintf(wr.w, "  %s %s\n", p.label.Sprint("Platforms:"), strings.Join(r.Platforms, ", "))
		}
		fmt.Fprintf(wr.w, "  %s %s\n", p.label.Sprint("Keywords:"), strings.Join(r.Keywords, "; "))
		if len(r.ExceptionTypes) > 0 {
			fmt.Fprintf(wr.w, "  %s %s\n", p.label.Sprint("Exceptions:"), strings.Join(r.ExceptionTypes, ", "))
		}
	}
	return nil
}

// WriteRule outputs one rule in full, including its description and
// solution.
func (wr *Writer) WriteRule(r knowledge.Rule) error {
	if ok, err := wr.writeStructured(r); ok {
		return err
	}
	if err := wr.WriteRules([]knowledge.Rule{r}); err != nil {
		return err
	}
	if wr.format == FormatTable {
		return nil
	}

	p := newPalette(wr.colorize)
	if len(r.NegativeKeywords) > 0 {
		fmt.Fprintf(wr.w, "  %s %s\n", p.label.Sprint("Excluded by:"), strings.Join(r.NegativeKeywords, "; "))
	}
	fmt.Fprintf(wr.w, "\n%s\n%s\n", p.label.Sprint("Description:"), strings.TrimSpace(r.Description))
	fmt.Fprintf(wr.w, "\n%s\n%s\n", p.label.Sprint("Solution:"), strings.TrimSpace(r.Solution))
	if d := strings.TrimSpace(r.Distinguish); d != "" {
		fmt.Fprintf(wr.w, "\n%s\n%s\n", p.label.Sprint("Distinguish:"), d)
	}
	return nil
}

func (wr *Writer) writeRulesTable(rules []knowledge.Rule) error {
	tw := tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tPLATFORMS\tNAME")
	fmt.Fprintln(tw, "--\t--------\t---------\t----")

	for _, r := range rules {
		platforms := strings.Join(r.Platforms, ",")
		if platforms == "" {
			platforms = "any"
		}
		name := r.Name
		if len(name) > 60 {
			name = name[:57] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Category, platforms, name)
	}
	return tw.Flush()
}

// modelRow is the structured form of a listed model.
type modelRow struct {
	llm.ModelInfo `yaml:",inline"`
	Default       bool `json:"default" yaml:"default"`
}

// WriteModels outputs locally available models, marking current.
func (wr *Writer) WriteModels(models []llm.ModelInfo, current string) error {
	rows := make([]modelRow, len(models))
	for i, m := range models {
		rows[i] = modelRow{ModelInfo: m, Default: m.Name == current || m.Name == current+":latest"}
	}
	if ok, err := wr.writeStructured(rows); ok {
		return err
	}

	p := newPalette(wr.colorize)
	tw := tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tPARAMS\tQUANT\tMODIFIED")
	for _, r := range rows {
		name := r.Name
		if r.Default {
			name += " *"
		}
		modified := ""
		if !r.ModifiedAt.IsZero() {
			modified = r.ModifiedAt.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, humanSize(r.Size), r.ParameterSize, r.Quantization, modified)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(wr.w, "%s\n", p.dim.Sprint("no models installed; pull one with: ollama pull "+current))
	}
	return nil
}

func humanSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
