package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// Redactor removes sensitive data from crash logs while preserving
// correlation between identical values.
//
// The same sensitive value is always replaced with the same placeholder, so
// the model can still see that two frames reference the same user directory
// without seeing the name itself.
type Redactor struct {
	enabled  bool
	patterns []RedactionPattern
	hashMap  map[string]string // original value -> placeholder
	mu       sync.RWMutex
}

// NewRedactor creates a Redactor. An empty patternNames selects
// DefaultPatterns. If enabled is false, Redact returns text unchanged.
func NewRedactor(enabled bool, patternNames []string) (*Redactor, error) {
	if len(patternNames) == 0 {
		patternNames = DefaultPatterns()
	}
	patterns, err := GetPatterns(patternNames)
	if err != nil {
		return nil, err
	}

	return &Redactor{
		enabled:  enabled,
		patterns: patterns,
		hashMap:  make(map[string]string),
	}, nil
}

// Enabled reports whether redaction is on. A nil Redactor is disabled.
func (r *Redactor) Enabled() bool {
	return r != nil && r.enabled
}

// Redact replaces sensitive values in text with correlation-preserving
// placeholders:
//
//	"-Duser.home=/home/alice" → "-Duser.home=/home/[USER:6fb8]"
func (r *Redactor) Redact(text string) string {
	out, _ := r.RedactAndCount(text)
	return out
}

// RedactAndCount redacts text and returns the number of replacements made.
func (r *Redactor) RedactAndCount(text string) (string, int) {
	if !r.Enabled() || len(r.patterns) == 0 {
		return text, 0
	}

	total := 0
	for _, pattern := range r.patterns {
		var n int
		text, n = r.redactPattern(text, pattern)
		total += n
	}
	return text, total
}

// redactPattern applies one pattern, replacing either the whole match or the
// configured submatch.
func (r *Redactor) redactPattern(text string, pattern RedactionPattern) (string, int) {
	locs := pattern.Regex.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text))
	last, count := 0, 0
	for _, loc := range locs {
		start, end := loc[2*pattern.Group], loc[2*pattern.Group+1]
		if start < 0 {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(r.placeholder(text[start:end], pattern.Type))
		last = end
		count++
	}
	b.WriteString(text[last:])
	return b.String(), count
}

// placeholder returns the stable placeholder for value.
func (r *Redactor) placeholder(value, patternType string) string {
	key := patternType + "\x00" + value

	r.mu.RLock()
	if p, ok := r.hashMap[key]; ok {
		r.mu.RUnlock()
		return p
	}
	r.mu.RUnlock()

	h := sha256.Sum256([]byte(value))
	p := fmt.Sprintf("[%s:%s]", patternType, hex.EncodeToString(h[:2]))

	r.mu.Lock()
	r.hashMap[key] = p
	r.mu.Unlock()
	return p
}

// Mappings returns a copy of every placeholder issued so far, keyed by the
// placeholder. Useful with --debug to map a model's answer back to real
// values locally.
func (r *Redactor) Mappings() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.hashMap))
	for key, p := range r.hashMap {
		_, value, _ := strings.Cut(key, "\x00")
		out[p] = value
	}
	return out
}

// Reset forgets all issued placeholders. Batch analysis resets between logs
// so correlations do not leak across unrelated crashes.
func (r *Redactor) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.hashMap)
}

// Clone returns a redactor with the same patterns and no remembered values.
func (r *Redactor) Clone() *Redactor {
	if r == nil {
		return nil
	}
	return &Redactor{
		enabled:  r.enabled,
		patterns: r.patterns,
		hashMap:  make(map[string]string),
	}
}
