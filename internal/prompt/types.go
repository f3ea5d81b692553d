package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which rules are rendered into the system prompt.
type Mode string

const (
	// ModeFull renders every rule in the knowledge store.
	ModeFull Mode = "full"

	// ModeFiltered renders only the rules the matcher selected for the log.
	ModeFiltered Mode = "filtered"
)

// ErrUnknownMode is returned when a Mode other than ModeFull or ModeFiltered
// is requested.
var ErrUnknownMode = errors.New("prompt: unknown mode")

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFull, ModeFiltered:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Option adjusts how BuildSystemPrompt renders.
type Option func(*settings)

type settings struct {
	jsonContract bool
}

// WithJSONContract appends the structured output contract (root_cause,
// key_info, confidence, unknown_reason) to the system prompt.
func WithJSONContract(enabled bool) Option {
	return func(s *settings) {
		s.jsonContract = enabled
	}
}
