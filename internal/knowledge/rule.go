// Package knowledge holds the crash-signature knowledge base and the rule
// matcher that selects signatures relevant to a crash log.
//
// A [Store] is built once per process and never mutated afterwards, so it is
// safe to share across concurrent analyses without locking. All rules share
// one matching predicate ([Store.Select]); rules carry data only.
package knowledge

import (
	"errors"
	"fmt"
	"strings"
)

// Rule describes one known crash signature and its remedy.
type Rule struct {
	ID       string `yaml:"id" json:"id"`
	Category string `yaml:"category" json:"category"`
	Name     string `yaml:"name" json:"name"`

	// Keywords: the log must contain at least one (case-insensitive substring).
	Keywords []string `yaml:"keywords" json:"keywords"`

	// ExceptionTypes: when non-empty the log must name at least one.
	ExceptionTypes []string `yaml:"exception_types" json:"exception_types"`

	// NegativeKeywords disqualify the rule when any is present.
	NegativeKeywords []string `yaml:"negative_keywords,omitempty" json:"negative_keywords,omitempty"`

	// Platforms restricts the rule to logs from these operating systems.
	Platforms []string `yaml:"platforms,omitempty" json:"platforms,omitempty"`

	// Description and Solution are rendered into prompts, never matched.
	Description string `yaml:"description" json:"description"`
	Solution    string `yaml:"solution" json:"solution"`

	// Distinguish tells the model how to separate this rule from a similar
	// one. Optional; rendered into prompts only.
	Distinguish string `yaml:"distinguish,omitempty" json:"distinguish,omitempty"`
}

var (
	// ErrDuplicateRule indicates two rules share an ID.
	ErrDuplicateRule = errors.New("duplicate rule id")

	// ErrInvalidRule indicates a rule record is structurally unusable.
	ErrInvalidRule = errors.New("invalid rule")
)

// validate checks the structural invariants of a single rule.
func (r Rule) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	for _, list := range [][]string{r.Keywords, r.ExceptionTypes, r.NegativeKeywords, r.Platforms} {
		for _, v := range list {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("%w: %s has an empty matcher entry", ErrInvalidRule, r.ID)
			}
		}
	}
	return nil
}

// clone returns a deep copy so callers can never reach the store's slices.
func (r Rule) clone() Rule {
	r.Keywords = cloneStrings(r.Keywords)
	r.ExceptionTypes = cloneStrings(r.ExceptionTypes)
	r.NegativeKeywords = cloneStrings(r.NegativeKeywords)
	r.Platforms = cloneStrings(r.Platforms)
	return r
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// NormalizePlatform maps OS spellings found in crash logs and rule files onto
// "mac", "windows" or "linux". Unknown values are lower-cased and returned as-is.
func NormalizePlatform(p string) string {
	switch v := strings.ToLower(strings.TrimSpace(p)); v {
	case "mac", "macos", "darwin", "osx", "mac os x":
		return "mac"
	case "win", "windows", "win32", "win64":
		return "windows"
	case "linux", "gnu/linux":
		return "linux"
	default:
		return v
	}
}
