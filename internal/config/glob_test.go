package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("test"), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.log", "b.log", "c.txt")

	files, err := ExpandInputs([]string{filepath.Join(dir, "*.log")})
	if err != nil {
		t.Fatalf("ExpandInputs() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	files, err = ExpandInputs([]string{filepath.Join(dir, "a.log"), filepath.Join(dir, "*.log")})
	if err != nil {
		t.Fatalf("ExpandInputs() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
}

func TestExpandInputsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "hs_err_pid1234.log", "java_error_in_idea_5678.log", "idea.log", "notes.txt")

	files, err := ExpandInputs([]string{dir})
	if err != nil {
		t.Fatalf("ExpandInputs() error = %v", err)
	}

	want := []string{
		filepath.Join(dir, "hs_err_pid1234.log"),
		filepath.Join(dir, "java_error_in_idea_5678.log"),
	}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestExpandInputsEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "idea.log")

	if _, err := ExpandInputs([]string{dir}); err == nil {
		t.Fatal("expected error for directory without crash logs")
	}
}

func TestExpandInputsNoMatch(t *testing.T) {
	dir := t.TempDir()

	_, err := ExpandInputs([]string{filepath.Join(dir, "*.missing")})
	if err == nil {
		t.Fatal("expected error for unmatched glob")
	}
}

func TestIsCrashLogName(t *testing.T) {
	tests := map[string]bool{
		"hs_err_pid928.log":            true,
		"java_error_in_pycharm_12.log": true,
		"jbr_err_pid17708.log":         true,
		"idea.log":                     false,
		"hs_err_pid928.txt":            false,
	}
	for name, want := range tests {
		if got := IsCrashLogName(name); got != want {
			t.Errorf("IsCrashLogName(%q) = %v, want %v", name, got, want)
		}
	}
}
