package knowledge

import "strings"

// Confidence grades how strongly a log matches a rule.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// Match is an eligible rule with the signals that made it eligible.
type Match struct {
	Rule       Rule       `json:"rule" yaml:"rule"`
	Keywords   []string   `json:"keywords" yaml:"keywords"`
	Exceptions []string   `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
	Confidence Confidence `json:"confidence" yaml:"confidence"`
}

// Select returns the rules eligible for logText, in store order.
//
// A rule is eligible when all of these hold:
//   - Keywords is empty, or at least one keyword occurs in the log
//   - ExceptionTypes is empty, or at least one exception type occurs
//   - Platforms is empty, or platform is one of them
//   - no NegativeKeyword occurs
//
// All comparisons are case-insensitive substring tests. Any single
// disqualifier excludes the rule. An empty result is not an error.
func (s *Store) Select(logText, platform string) []Rule {
	lower := strings.ToLower(logText)
	platform = NormalizePlatform(platform)

	var out []Rule
	for i := range s.rules {
		if _, ok := s.eligible(i, lower, platform); ok {
			out = append(out, s.rules[i].clone())
		}
	}
	return out
}

// Prefilter runs the same predicate as Select and grades each eligible rule.
// Results are in store order.
func (s *Store) Prefilter(logText, platform string) []Match {
	lower := strings.ToLower(logText)
	platform = NormalizePlatform(platform)

	var out []Match
	for i := range s.rules {
		m, ok := s.eligible(i, lower, platform)
		if !ok {
			continue
		}
		m.Rule = s.rules[i].clone()
		m.Confidence = grade(m)
		out = append(out, m)
	}
	return out
}

// Best picks the strongest match: highest confidence, then most keyword
// hits, then store order. It returns false for an empty slice.
func Best(matches []Match) (Match, bool) {
	if len(matches) == 0 {
		return Match{}, false
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Confidence.rank() > best.Confidence.rank() ||
			(m.Confidence == best.Confidence && len(m.Keywords) > len(best.Keywords)) {
			best = m
		}
	}
	return best, true
}

// eligible evaluates rule i against an already lower-cased log. The returned
// Match carries the original-case keywords and exception types that hit.
func (s *Store) eligible(i int, lowerLog, platform string) (Match, bool) {
	c := s.compiled[i]
	r := s.rules[i]

	for _, neg := range c.negatives {
		if strings.Contains(lowerLog, neg) {
			return Match{}, false
		}
	}

	if c.platforms != nil {
		if _, ok := c.platforms[platform]; !ok {
			return Match{}, false
		}
	}

	var m Match
	for j, kw := range c.keywords {
		if strings.Contains(lowerLog, kw) {
			m.Keywords = append(m.Keywords, r.Keywords[j])
		}
	}
	if len(c.keywords) > 0 && len(m.Keywords) == 0 {
		return Match{}, false
	}

	for j, ex := range c.exceptions {
		if strings.Contains(lowerLog, ex) {
			m.Exceptions = append(m.Exceptions, r.ExceptionTypes[j])
		}
	}
	if len(c.exceptions) > 0 && len(m.Exceptions) == 0 {
		return Match{}, false
	}

	return m, true
}

// grade grades a match by its keyword hits:
//
//	high:   three or more hits, or two hits with a satisfied exception type
//	medium: two hits, or one hit with a satisfied exception type
//	low:    anything else
//
// An exception type alone never lifts a single keyword hit to high.
func grade(m Match) Confidence {
	hits := len(m.Keywords)
	withException := len(m.Exceptions) > 0
	switch {
	case hits >= 3, hits == 2 && withException:
		return ConfidenceHigh
	case hits == 2, hits == 1 && withException:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
