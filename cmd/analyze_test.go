package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const oomLog = `# There is insufficient memory for the Java Runtime Environment to continue.
# Native memory allocation (malloc) failed to allocate 1330048 bytes. Error detail: Chunk::new
# Possible reasons:
#   The system is out of physical RAM or swap space
#   This process is running with CompressedOops enabled`

// fakeOllama serves the subset of the Ollama API crashdoc uses.
type fakeOllama struct {
	*httptest.Server
	reply    string
	chats    atomic.Int32
	lastChat atomic.Pointer[api.ChatRequest]
}

func newFakeOllama(t *testing.T, reply string) *fakeOllama {
	t.Helper()
	f := &fakeOllama{reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Ollama is running")
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.ListResponse{Models: []api.ListModelResponse{
			{Name: "qwen3:4b", Model: "qwen3:4b", Size: 2_600_000_000},
		}})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		f.chats.Add(1)
		var req api.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.lastChat.Store(&req)
		data, _ := json.Marshal(api.ChatResponse{
			Model:   req.Model,
			Message: api.Message{Role: "assistant", Content: f.reply},
			Done:    true,
		})
		w.Write(data)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// resetViper loads the defaults the way initConfig does, without touching
// the user's config file.
func resetViper(t *testing.T, host string) {
	t.Helper()
	viper.Reset()
	setDefaults()
	viper.Set("format", "text")
	viper.Set("color", "never")
	viper.Set("llm.ollama.host", host)
	viper.Set("redaction.enabled", false)
	t.Cleanup(viper.Reset)
}

func newTestCmd(out *bytes.Buffer, setup ...func(*cobra.Command)) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(""))
	for _, s := range setup {
		s(cmd)
	}
	return cmd
}

func newAnalyzeTestCmd(out *bytes.Buffer) *cobra.Command {
	return newTestCmd(out, addInputFlags, addAnalysisFlags, func(c *cobra.Command) {
		c.Flags().Bool("no-stream", false, "")
	})
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestAnalyzeText(t *testing.T) {
	srv := newFakeOllama(t, "The machine ran out of physical memory. Close other applications.")
	resetViper(t, srv.URL)

	file := writeTempFile(t, t.TempDir(), "hs_err_pid1.log", oomLog)

	var out bytes.Buffer
	cmd := newAnalyzeTestCmd(&out)
	if err := runAnalyze(cmd, []string{file}); err != nil {
		t.Fatalf("runAnalyze() error = %v", err)
	}

	output := out.String()
	for _, want := range []string{"Rules: PHYSICAL_OOM (high)", "Model: qwen3:4b", "ran out of physical memory"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	req := srv.lastChat.Load()
	if req == nil {
		t.Fatal("model was not called")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || !strings.Contains(req.Messages[1].Content, "1330048 bytes") {
		t.Errorf("unexpected chat messages: %+v", req.Messages)
	}
	if req.Stream == nil || *req.Stream {
		t.Error("piped output should not stream")
	}
}

func TestAnalyzeJSONSchema(t *testing.T) {
	srv := newFakeOllama(t, `{"root_cause":"Physical memory exhausted","key_info":["failed to allocate 1330048 bytes"],"confidence":"high","unknown_reason":""}`)
	resetViper(t, srv.URL)
	viper.Set("format", "json")

	var out bytes.Buffer
	cmd := newAnalyzeTestCmd(&out)
	cmd.Flags().Set("schema", "true")
	cmd.Flags().Set("log", oomLog)

	if err := runAnalyze(cmd, nil); err != nil {
		t.Fatalf("runAnalyze() error = %v", err)
	}

	var got struct {
		Source    string `json:"source"`
		Diagnosis struct {
			RootCause    string   `json:"root_cause"`
			Confidence   string   `json:"confidence"`
			MatchedRules []string `json:"matched_rules"`
		} `json:"diagnosis"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if got.Source != "inline" || got.Diagnosis.RootCause != "Physical memory exhausted" {
		t.Errorf("unexpected result: %+v", got)
	}
	if len(got.Diagnosis.MatchedRules) != 1 || got.Diagnosis.MatchedRules[0] != "PHYSICAL_OOM" {
		t.Errorf("matched_rules = %v", got.Diagnosis.MatchedRules)
	}

	format := string(srv.lastChat.Load().Format)
	if !strings.Contains(format, `"root_cause"`) {
		t.Errorf("format should be the diagnosis schema, got %s", format)
	}
}

func TestAnalyzeStdin(t *testing.T) {
	srv := newFakeOllama(t, "ok")
	resetViper(t, srv.URL)

	var out bytes.Buffer
	cmd := newAnalyzeTestCmd(&out)
	cmd.SetIn(strings.NewReader(oomLog))

	if err := runAnalyze(cmd, nil); err != nil {
		t.Fatalf("runAnalyze() error = %v", err)
	}
	if srv.chats.Load() != 1 {
		t.Errorf("chats = %d, want 1", srv.chats.Load())
	}
}

func TestAnalyzeHybridSkipsModel(t *testing.T) {
	resetViper(t, "http://127.0.0.1:1")

	var out bytes.Buffer
	cmd := newAnalyzeTestCmd(&out)
	cmd.Flags().Set("hybrid", "true")
	cmd.Flags().Set("log", oomLog)

	if err := runAnalyze(cmd, nil); err != nil {
		t.Fatalf("runAnalyze() error = %v", err)
	}
	if !strings.Contains(out.String(), "Root cause: Physical memory exhausted") {
		t.Errorf("expected rule diagnosis, got:\n%s", out.String())
	}
}

func TestAnalyzeUnreachable(t *testing.T) {
	resetViper(t, "http://127.0.0.1:1")

	var out bytes.Buffer
	cmd := newAnalyzeTestCmd(&out)
	cmd.Flags().Set("log", oomLog)

	err := runAnalyze(cmd, nil)
	if err == nil {
		t.Fatal("expected an error for an unreachable runtime")
	}
	if !strings.Contains(err.Error(), "ollama serve") {
		t.Errorf("error should tell the user how to start Ollama: %v", err)
	}
}

func TestAnalyzeModelMissing(t *testing.T) {
	srv := newFakeOllama(t, "ok")
	resetViper(t, srv.URL)
	viper.Set("llm.model", "llama3:70b")

	var out bytes.Buffer
	cmd := newAnalyzeTestCmd(&out)
	cmd.Flags().Set("log", oomLog)

	err := runAnalyze(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "ollama pull llama3:70b") {
		t.Errorf("expected pull hint, got %v", err)
	}
	if srv.chats.Load() != 0 {
		t.Error("chat should not be attempted for a missing model")
	}
}

func TestAnalyzeInvalidMode(t *testing.T) {
	resetViper(t, "http://127.0.0.1:1")

	var out bytes.Buffer
	cmd := newAnalyzeTestCmd(&out)
	cmd.Flags().Set("mode", "partial")
	cmd.Flags().Set("log", oomLog)

	err := runAnalyze(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "analysis.mode") {
		t.Errorf("expected invalid mode error, got %v", err)
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	srv := newFakeOllama(t, "ok")
	resetViper(t, srv.URL)

	var out bytes.Buffer
	cmd := newAnalyzeTestCmd(&out)
	cmd.SetIn(strings.NewReader("   \n"))

	if err := runAnalyze(cmd, nil); err == nil {
		t.Error("expected an error for an empty log")
	}
}

func TestAnalyzeRedactsByDefault(t *testing.T) {
	srv := newFakeOllama(t, "ok")
	resetViper(t, srv.URL)
	viper.Set("redaction.enabled", true)

	var out bytes.Buffer
	cmd := newAnalyzeTestCmd(&out)
	cmd.Flags().Set("log", oomLog+"\n# Command Line: -Duser.home=C:\\Users\\alice")

	if err := runAnalyze(cmd, nil); err != nil {
		t.Fatalf("runAnalyze() error = %v", err)
	}
	user := srv.lastChat.Load().Messages[1].Content
	if strings.Contains(user, "alice") {
		t.Errorf("user name leaked to the model:\n%s", user)
	}
}
