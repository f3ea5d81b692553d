package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CrashLogPatterns are the file name patterns picked up when a directory is
// given instead of a file.
var CrashLogPatterns = []string{
	"hs_err_pid*.log",
	"java_error_in_*.log",
	"jbr_err_pid*.log",
	"*.crash.log",
}

// IsCrashLogName reports whether a base file name looks like a JVM crash log.
func IsCrashLogName(name string) bool {
	for _, p := range CrashLogPatterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// ExpandInputs expands file paths, glob patterns and directories into a
// sorted unique list of files. Directories contribute the crash logs
// directly inside them.
func ExpandInputs(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no file patterns provided")
	}

	files := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, pattern := range patterns {
		if hasGlobMeta(pattern) {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no matches for pattern %q", pattern)
			}
			for _, match := range matches {
				add(match)
			}
			continue
		}

		info, err := os.Stat(pattern)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(pattern)
			continue
		}

		entries, err := os.ReadDir(pattern)
		if err != nil {
			return nil, err
		}
		found := 0
		for _, e := range entries {
			if e.IsDir() || !IsCrashLogName(e.Name()) {
				continue
			}
			add(filepath.Join(pattern, e.Name()))
			found++
		}
		if found == 0 {
			return nil, fmt.Errorf("no crash logs in directory %q", pattern)
		}
	}

	sort.Strings(files)
	return files, nil
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
