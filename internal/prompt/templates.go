package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/bimmerbailey/crashdoc/internal/knowledge"
)

var systemTmpl = template.Must(template.New("system").Funcs(template.FuncMap{
	"indent": func(s string) string {
		return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n  ")
	},
	"join": strings.Join,
}).Parse(systemTemplate))

type systemData struct {
	Filtered    bool
	Highlighted []string
	Rules       []knowledge.Rule
	Distinguish []knowledge.Rule
	JSON        bool
}

// BuildSystemPrompt renders the system instruction for a crash analysis.
//
// In ModeFull every rule of store is rendered in store order and the IDs of
// matched are listed as a hint. In ModeFiltered only matched is rendered, in
// the order given. Each rule is rendered as ID, category, name, description
// and solution; matching fields (keywords, exception types, platforms) are
// never shown to the model. Rules with distinguishing notes get them listed
// in a section after the rules.
//
// The result is never empty: with no rules to render it carries a "no known
// precedent" notice instead. Any mode other than ModeFull or ModeFiltered
// returns ErrUnknownMode.
func BuildSystemPrompt(store *knowledge.Store, matched []knowledge.Rule, mode Mode, opts ...Option) (string, error) {
	var cfg settings
	for _, opt := range opts {
		opt(&cfg)
	}

	data := systemData{JSON: cfg.jsonContract}
	switch mode {
	case ModeFull:
		if store != nil {
			data.Rules = store.Rules()
		}
		for _, r := range matched {
			data.Highlighted = append(data.Highlighted, r.ID)
		}
	case ModeFiltered:
		data.Filtered = true
		data.Rules = matched
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	for _, r := range data.Rules {
		if strings.TrimSpace(r.Distinguish) != "" {
			data.Distinguish = append(data.Distinguish, r)
		}
	}

	var sb strings.Builder
	if err := systemTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering system prompt: %w", err)
	}
	return sb.String(), nil
}

// BuildUserPrompt wraps the crash log in a fenced block under the analysis
// instruction. In JSON mode it repeats the request for the JSON object.
func BuildUserPrompt(log string, jsonMode bool) string {
	fence := fenceFor(log)

	var sb strings.Builder
	sb.WriteString(userInstruction)
	sb.WriteString("\n\n")
	sb.WriteString(fence)
	sb.WriteString("text\n")
	sb.WriteString(strings.TrimSpace(log))
	sb.WriteString("\n")
	sb.WriteString(fence)
	sb.WriteString("\n")
	if jsonMode {
		sb.WriteString("\n")
		sb.WriteString(userJSONInstruction)
		sb.WriteString("\n")
	}
	return sb.String()
}

// fenceFor returns a backtick fence longer than any backtick run in s.
func fenceFor(s string) string {
	longest, run := 0, 0
	for _, c := range s {
		if c == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}
