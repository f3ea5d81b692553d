package prompt_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/bimmerbailey/crashdoc/internal/knowledge"
	"github.com/bimmerbailey/crashdoc/internal/prompt"
)

const heapLog = `Exception in thread "AWT-EventQueue-0" java.lang.OutOfMemoryError: Java heap space
	at java.base/java.util.Arrays.copyOf(Arrays.java:3537)`

func testStore(t *testing.T) *knowledge.Store {
	t.Helper()
	store, err := knowledge.NewStore([]knowledge.Rule{
		{
			ID:             "HEAP_OOM",
			Category:       "Out of memory",
			Name:           "Java heap exhausted",
			Keywords:       []string{"heap space"},
			ExceptionTypes: []string{"OutOfMemoryError"},
			Description:    "The Java heap is too small for the workload.",
			Solution:       "increase -Xmx",
		},
		{
			ID:          "METAL",
			Category:    "JBR issue",
			Name:        "Metal device lost",
			Keywords:    []string{"No MTLDevice"},
			Platforms:   []string{"mac"},
			Description: "Metal could not be reinitialised.",
			Solution:    "1. Upgrade JBR\n2. Add -Dsun.java2d.metal=false",
		},
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestBuildSystemPrompt_UnknownMode(t *testing.T) {
	_, err := prompt.BuildSystemPrompt(testStore(t), nil, prompt.Mode("everything"))
	if !errors.Is(err, prompt.ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    prompt.Mode
		wantErr bool
	}{
		{"full", prompt.ModeFull, false},
		{" Filtered ", prompt.ModeFiltered, false},
		{"auto", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := prompt.ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, prompt.ErrUnknownMode) {
				t.Errorf("expected ErrUnknownMode, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestBuildSystemPrompt_OOMSolutionVerbatim checks that the matching rule's
// solution reaches the model exactly as written.
func TestBuildSystemPrompt_OOMSolutionVerbatim(t *testing.T) {
	store := testStore(t)
	matched := store.Select(heapLog, "")
	if len(matched) != 1 || matched[0].ID != "HEAP_OOM" {
		t.Fatalf("Select() = %v, want [HEAP_OOM]", matched)
	}

	for _, mode := range []prompt.Mode{prompt.ModeFull, prompt.ModeFiltered} {
		t.Run(string(mode), func(t *testing.T) {
			got, err := prompt.BuildSystemPrompt(store, matched, mode)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(got, "increase -Xmx") {
				t.Errorf("solution text missing from system prompt:\n%s", got)
			}
		})
	}
}

func TestBuildSystemPrompt_Modes(t *testing.T) {
	store := testStore(t)
	matched := store.Select(heapLog, "")

	full, err := prompt.BuildSystemPrompt(store, matched, prompt.ModeFull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(full, "### METAL") || !strings.Contains(full, "### HEAP_OOM") {
		t.Errorf("full mode should render every rule:\n%s", full)
	}
	if !strings.Contains(full, "Rules whose signatures occur in this log: HEAP_OOM") {
		t.Errorf("full mode should list matched IDs:\n%s", full)
	}

	filtered, err := prompt.BuildSystemPrompt(store, matched, prompt.ModeFiltered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(filtered, "### METAL") {
		t.Errorf("filtered mode rendered an unmatched rule:\n%s", filtered)
	}
	if !strings.Contains(filtered, "### HEAP_OOM") {
		t.Errorf("filtered mode lost the matched rule:\n%s", filtered)
	}
}

// TestBuildSystemPrompt_FieldOrder verifies rules are rendered as ID,
// category, name, description, solution and that matching fields stay out.
func TestBuildSystemPrompt_FieldOrder(t *testing.T) {
	store := testStore(t)
	got, err := prompt.BuildSystemPrompt(store, nil, prompt.ModeFull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	section := got[strings.Index(got, "### METAL"):]
	order := []string{"### METAL", "- Category: JBR issue", "- Name: Metal device lost",
		"- Description: Metal could not", "- Solution:", "1. Upgrade JBR", "  2. Add -Dsun.java2d.metal=false"}
	last := -1
	for _, want := range order {
		idx := strings.Index(section, want)
		if idx < 0 {
			t.Fatalf("missing %q in:\n%s", want, section)
		}
		if idx <= last {
			t.Errorf("%q is out of order", want)
		}
		last = idx
	}

	for _, leaked := range []string{"No MTLDevice", "heap space", "Platforms"} {
		if strings.Contains(got, leaked) {
			t.Errorf("matching field %q leaked into the prompt", leaked)
		}
	}
}

func TestBuildSystemPrompt_Deterministic(t *testing.T) {
	store := testStore(t)
	matched := store.Select(heapLog, "")

	for _, mode := range []prompt.Mode{prompt.ModeFull, prompt.ModeFiltered} {
		first, err := prompt.BuildSystemPrompt(store, matched, mode, prompt.WithJSONContract(true))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 0; i < 20; i++ {
			again, _ := prompt.BuildSystemPrompt(store, matched, mode, prompt.WithJSONContract(true))
			if again != first {
				t.Fatalf("%s: render %d differs from the first", mode, i)
			}
		}
	}
}

// TestBuildSystemPrompt_NoMatches checks that zero matched rules still yield
// instructional text with the no-precedent notice.
func TestBuildSystemPrompt_NoMatches(t *testing.T) {
	got, err := prompt.BuildSystemPrompt(testStore(t), nil, prompt.ModeFiltered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(got) == "" {
		t.Fatal("system prompt is empty")
	}
	if !strings.Contains(got, "No known precedent") {
		t.Errorf("expected no-precedent notice:\n%s", got)
	}
	if !strings.Contains(got, "You are an expert") {
		t.Errorf("framing missing:\n%s", got)
	}

	empty, _ := knowledge.NewStore(nil)
	got, err = prompt.BuildSystemPrompt(empty, nil, prompt.ModeFull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "No known precedent") {
		t.Errorf("empty store should render the notice in full mode too:\n%s", got)
	}
}

func TestBuildSystemPrompt_JSONContract(t *testing.T) {
	store := testStore(t)

	plain, _ := prompt.BuildSystemPrompt(store, nil, prompt.ModeFull)
	if strings.Contains(plain, "unknown_reason") {
		t.Error("contract rendered without WithJSONContract")
	}

	withJSON, _ := prompt.BuildSystemPrompt(store, nil, prompt.ModeFull, prompt.WithJSONContract(true))
	for _, field := range []string{"root_cause", "key_info", "confidence", "unknown_reason"} {
		if !strings.Contains(withJSON, field) {
			t.Errorf("contract field %q missing", field)
		}
	}
	if !strings.HasPrefix(withJSON, plain[:strings.Index(plain, "## Known crash rules")]) {
		t.Error("framing should come before the rules and contract")
	}
}

func TestBuildUserPrompt(t *testing.T) {
	got := prompt.BuildUserPrompt("\n"+heapLog+"\n\n", false)
	if !strings.Contains(got, "```text\n"+heapLog+"\n```") {
		t.Errorf("log not fenced verbatim:\n%s", got)
	}
	if strings.Contains(got, "JSON") {
		t.Error("plain prompt should not ask for JSON")
	}

	if !strings.Contains(prompt.BuildUserPrompt(heapLog, true), "JSON") {
		t.Error("JSON mode prompt should ask for JSON")
	}
}

func TestBuildUserPrompt_FenceOutgrowsLog(t *testing.T) {
	log := "before\n```\ninjected\n```\nafter"
	got := prompt.BuildUserPrompt(log, false)
	if !strings.Contains(got, "````text\n") {
		t.Errorf("expected a four-backtick fence:\n%s", got)
	}
}

func TestBuildSystemPrompt_DistinguishNotes(t *testing.T) {
	store, err := knowledge.NewStore([]knowledge.Rule{
		{ID: "VIRTUAL", Name: "Virtual memory", Keywords: []string{"Native memory allocation"},
			NegativeKeywords: []string{"Possible reasons"},
			Distinguish:      "Only when there is no Possible reasons section."},
		{ID: "PHYSICAL", Name: "Physical memory", Keywords: []string{"Native memory allocation"},
			Distinguish: "When the log has a Possible reasons section."},
		{ID: "OTHER", Name: "Other", Keywords: []string{"zip.dll"}},
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	full, err := prompt.BuildSystemPrompt(store, nil, prompt.ModeFull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	section := "## Telling similar rules apart\n- VIRTUAL: Only when there is no Possible reasons section.\n- PHYSICAL: When the log has a Possible reasons section."
	if !strings.Contains(full, section) {
		t.Errorf("full mode should list every distinguishing note in store order:\n%s", full)
	}

	physical, _ := store.Get("PHYSICAL")
	filtered, err := prompt.BuildSystemPrompt(store, []knowledge.Rule{physical}, prompt.ModeFiltered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(filtered, "- PHYSICAL: When the log has") || strings.Contains(filtered, "- VIRTUAL:") {
		t.Errorf("filtered mode should only carry notes of rendered rules:\n%s", filtered)
	}

	other, _ := store.Get("OTHER")
	plain, _ := prompt.BuildSystemPrompt(store, []knowledge.Rule{other}, prompt.ModeFiltered)
	if strings.Contains(plain, "Telling similar rules apart") {
		t.Errorf("section rendered without any notes:\n%s", plain)
	}
}

func TestBuildSystemPrompt_DefaultStoreTieBreaks(t *testing.T) {
	store, err := knowledge.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	got, err := prompt.BuildSystemPrompt(store, nil, prompt.ModeFull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"- WIN_VIRTUAL_OOM: Choose this over PHYSICAL_OOM", "- JBR_A27_CRASH: Takes precedence over JBR_HARDWARE_CPU"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}
