// Package parser extracts structured hints from JVM and IDE crash logs.
//
// It recognises HotSpot fatal error logs (hs_err_pid*.log), plain Java stack
// traces and IDE log excerpts, and pulls out the fields the rule matcher and
// the prompts care about: the operating system, exception types, the native
// signal, the JRE version and the problematic frame.
package parser

import (
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Format represents a detected crash log format.
type Format string

const (
	FormatHsErr      Format = "hs_err"
	FormatStackTrace Format = "stacktrace"
	FormatIDELog     Format = "idea_log"
	FormatGeneric    Format = "generic"
)

// Report holds what Inspect could extract from a crash log.
type Report struct {
	Format           Format   `json:"format" yaml:"format"`
	Platform         string   `json:"platform,omitempty" yaml:"platform,omitempty"`
	Exceptions       []string `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
	Signal           string   `json:"signal,omitempty" yaml:"signal,omitempty"`
	JREVersion       string   `json:"jre_version,omitempty" yaml:"jre_version,omitempty"`
	ProblematicFrame string   `json:"problematic_frame,omitempty" yaml:"problematic_frame,omitempty"`
	PID              int      `json:"pid,omitempty" yaml:"pid,omitempty"`
	Lines            int      `json:"lines" yaml:"lines"`
}

var (
	osLinePattern     = regexp.MustCompile(`(?mi)^\s*#?\s*OS:\s*(.+)$`)
	exceptionPattern  = regexp.MustCompile(`\b(?:[a-zA-Z_$][\w$]*\.)*([A-Z][\w$]*(?:Exception|Error))\b`)
	signalPattern     = regexp.MustCompile(`\b(EXCEPTION_[A-Z_]+|SIG(?:SEGV|BUS|ILL|FPE|ABRT|KILL))\b`)
	jreVersionPattern = regexp.MustCompile(`(?m)^#\s*JRE version:\s*(.+)$`)
	framePattern      = regexp.MustCompile(`(?m)^#\s*Problematic frame:\s*\n#\s*(.+)$`)
	pidPattern        = regexp.MustCompile(`\bpid=(\d+)`)
	ideLogPattern     = regexp.MustCompile(`(?m)^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3} \[\s*\d+\]`)
	stackFramePattern = regexp.MustCompile(`(?m)^\s*at [\w$.<>]+\(`)
)

// platformSignals are substrings that vote for an operating system when the
// log has no explicit OS line.
var platformSignals = map[string][]string{
	"windows": {".dll", "exception_access_violation", "exception_in_page_error", "os_windows", `c:\`, "win32"},
	"mac":     {"nsapplication", "mtldevice", ".dylib", "darwin", "macos", "os_bsd", "cocoa"},
	"linux":   {".so.", ".so+", "os_linux", "/proc/", "glibc", "x11"},
}

// Inspect extracts crash hints from text. It never fails; fields it cannot
// determine are left empty.
func Inspect(text string) Report {
	r := Report{
		Format: DetectFormat(text),
		Lines:  strings.Count(text, "\n") + 1,
	}
	if strings.TrimSpace(text) == "" {
		r.Lines = 0
	}

	r.Platform = DetectPlatform(text)
	r.Exceptions = ExceptionTypes(text)

	if m := signalPattern.FindStringSubmatch(text); m != nil {
		r.Signal = m[1]
	}
	if m := jreVersionPattern.FindStringSubmatch(text); m != nil {
		r.JREVersion = strings.TrimSpace(m[1])
	}
	if m := framePattern.FindStringSubmatch(text); m != nil {
		r.ProblematicFrame = strings.TrimSpace(m[1])
	}
	if m := pidPattern.FindStringSubmatch(text); m != nil {
		r.PID, _ = strconv.Atoi(m[1])
	}

	return r
}

// DetectFormat classifies a crash log by its shape.
func DetectFormat(text string) Format {
	switch {
	case strings.Contains(text, "A fatal error has been detected by the Java Runtime Environment"),
		strings.Contains(text, "# Problematic frame:"),
		strings.Contains(text, "# JRE version:"),
		strings.Contains(text, "There is insufficient memory for the Java Runtime Environment"):
		return FormatHsErr
	case ideLogPattern.MatchString(text):
		return FormatIDELog
	case stackFramePattern.MatchString(text), exceptionPattern.MatchString(text):
		return FormatStackTrace
	default:
		return FormatGeneric
	}
}

// DetectPlatform returns "windows", "mac", "linux" or "" when undecided.
// An explicit "OS:" line wins; otherwise the platform with the most signals
// wins and a tie is undecided.
func DetectPlatform(text string) string {
	if m := osLinePattern.FindStringSubmatch(text); m != nil {
		if p := platformFromName(m[1]); p != "" {
			return p
		}
	}

	lower := strings.ToLower(text)
	best, bestScore, tie := "", 0, false
	for _, p := range []string{"windows", "mac", "linux"} {
		score := 0
		for _, sig := range platformSignals[p] {
			if strings.Contains(lower, sig) {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tie = p, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if tie {
		return ""
	}
	return best
}

func platformFromName(s string) string {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "windows"):
		return "windows"
	case strings.Contains(lower, "darwin"), strings.Contains(lower, "mac os"), strings.Contains(lower, "macos"):
		return "mac"
	case strings.Contains(lower, "linux"), strings.Contains(lower, "ubuntu"), strings.Contains(lower, "fedora"):
		return "linux"
	default:
		return ""
	}
}

// ExceptionTypes returns the simple names of Java exception and error types
// mentioned in text, de-duplicated in order of first appearance.
func ExceptionTypes(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range exceptionPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// ReadFile reads a crash log, dropping invalid UTF-8 sequences. Crash logs
// frequently contain raw native memory dumps.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
