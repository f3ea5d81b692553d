package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/bimmerbailey/crashdoc/internal/analyzer"
)

func renderMarkdown(text string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}

// MarkdownReport formats a result as a standalone markdown document.
func MarkdownReport(res *analyzer.Result) string {
	var sb strings.Builder

	title := res.Source
	if title == "" {
		title = res.ID
	}
	fmt.Fprintf(&sb, "# Crash analysis: %s\n\n", title)

	fmt.Fprintf(&sb, "| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&sb, "| %s | %s |\n", k, strings.ReplaceAll(v, "|", `\|`))
		}
	}
	row("Format", string(res.Crash.Format))
	row("Platform", res.Platform)
	row("Exceptions", strings.Join(res.Crash.Exceptions, ", "))
	row("Signal", res.Crash.Signal)
	row("JRE", res.Crash.JREVersion)
	if res.Crash.ProblematicFrame != "" {
		row("Problematic frame", "`"+res.Crash.ProblematicFrame+"`")
	}
	row("Matched rules", strings.Join(res.Rules, ", "))
	row("Model", res.Model)
	row("Mode", res.Mode)
	sb.WriteString("\n")

	if d := res.Diagnosis; d != nil {
		fmt.Fprintf(&sb, "## Root cause\n\n**%s** (confidence: %s)\n\n", d.RootCause, d.Confidence)
		if len(d.KeyInfo) > 0 {
			sb.WriteString("### Evidence\n\n")
			for _, line := range d.KeyInfo {
				fmt.Fprintf(&sb, "- `%s`\n", strings.ReplaceAll(line, "`", "'"))
			}
			sb.WriteString("\n")
		}
		if d.UnknownReason != "" {
			fmt.Fprintf(&sb, "%s\n\n", d.UnknownReason)
		}
	}

	if res.Text != "" && (res.Diagnosis == nil || res.Mode == analyzer.ModeRules) {
		sb.WriteString("## Analysis\n\n")
		sb.WriteString(strings.TrimSpace(res.Text))
		sb.WriteString("\n")
	}
	return sb.String()
}
