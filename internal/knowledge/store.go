package knowledge

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed rules.yaml
var defaultRules []byte

// Store is an ordered, read-only collection of rules.
type Store struct {
	rules    []Rule
	compiled []compiledRule
	index    map[string]int
}

// compiledRule holds the lower-cased matcher fields of a rule.
type compiledRule struct {
	keywords   []string
	exceptions []string
	negatives  []string
	platforms  map[string]struct{}
}

// NewStore validates rules and builds a store preserving their order.
// The input slice is copied; later changes to it do not affect the store.
func NewStore(rules []Rule) (*Store, error) {
	s := &Store{
		rules:    make([]Rule, 0, len(rules)),
		compiled: make([]compiledRule, 0, len(rules)),
		index:    make(map[string]int, len(rules)),
	}

	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.index[r.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.ID)
		}
		s.index[r.ID] = len(s.rules)
		s.rules = append(s.rules, r.clone())
		s.compiled = append(s.compiled, compile(r))
	}

	return s, nil
}

// Default returns the store built from the embedded rule file.
func Default() (*Store, error) {
	rules, err := Parse(defaultRules)
	if err != nil {
		return nil, fmt.Errorf("embedded rules: %w", err)
	}
	return NewStore(rules)
}

func compile(r Rule) compiledRule {
	c := compiledRule{
		keywords:   lowerAll(r.Keywords),
		exceptions: lowerAll(r.ExceptionTypes),
		negatives:  lowerAll(r.NegativeKeywords),
	}
	if len(r.Platforms) > 0 {
		c.platforms = make(map[string]struct{}, len(r.Platforms))
		for _, p := range r.Platforms {
			c.platforms[NormalizePlatform(p)] = struct{}{}
		}
	}
	return c
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.ToLower(v)
	}
	return out
}

// Len returns the number of rules.
func (s *Store) Len() int {
	return len(s.rules)
}

// Rules returns a copy of all rules in store order.
func (s *Store) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.clone()
	}
	return out
}

// Get looks up a rule by ID.
func (s *Store) Get(id string) (Rule, bool) {
	i, ok := s.index[id]
	if !ok {
		return Rule{}, false
	}
	return s.rules[i].clone(), true
}
