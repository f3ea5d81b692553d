package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

// ErrMalformedDiagnosis is returned when a JSON-mode answer cannot be parsed.
var ErrMalformedDiagnosis = errors.New("model answer is not a valid diagnosis")

// UnknownRootCause is the root cause reported when no rule applies.
const UnknownRootCause = "Unknown"

// Fingerprint is the crash fingerprint the model is asked to produce in JSON
// mode. Its schema is sent to Ollama as the response format.
type Fingerprint struct {
	RootCause     string   `json:"root_cause" yaml:"root_cause" jsonschema:"description=Conclusion using the matching rule name or Unknown"`
	KeyInfo       []string `json:"key_info" yaml:"key_info" jsonschema:"description=Lines quoted verbatim from the crash log that support the conclusion,maxItems=5"`
	Confidence    string   `json:"confidence" yaml:"confidence" jsonschema:"enum=high,enum=medium,enum=low"`
	UnknownReason string   `json:"unknown_reason" yaml:"unknown_reason" jsonschema:"description=Why the cause could not be determined or empty"`
}

// Diagnosis is a parsed fingerprint plus the rules the matcher selected.
type Diagnosis struct {
	Fingerprint  `yaml:",inline"`
	MatchedRules []string `json:"matched_rules,omitempty" yaml:"matched_rules,omitempty"`
}

var (
	schemaOnce sync.Once
	schemaJSON json.RawMessage
)

// Schema returns the JSON schema of Fingerprint.
func Schema() json.RawMessage {
	schemaOnce.Do(func() {
		r := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		s := r.Reflect(&Fingerprint{})
		s.Version = ""
		s.ID = ""
		b, err := json.Marshal(s)
		if err != nil {
			panic(fmt.Sprintf("analyzer: marshal diagnosis schema: %v", err))
		}
		schemaJSON = b
	})
	return schemaJSON
}

// ParseDiagnosis extracts a Fingerprint from a model answer. It tolerates
// markdown fences and prose around the object, and normalises confidence
// to high, medium or low.
func ParseDiagnosis(text string) (*Diagnosis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedDiagnosis)
	}

	var fp Fingerprint
	if err := json.Unmarshal([]byte(text[start:end+1]), &fp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDiagnosis, err)
	}

	fp.RootCause = strings.TrimSpace(fp.RootCause)
	if fp.RootCause == "" {
		return nil, fmt.Errorf("%w: root_cause is empty", ErrMalformedDiagnosis)
	}
	fp.Confidence = normalizeConfidence(fp.Confidence)
	if len(fp.KeyInfo) > 5 {
		fp.KeyInfo = fp.KeyInfo[:5]
	}

	return &Diagnosis{Fingerprint: fp}, nil
}

func normalizeConfidence(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "高":
		return "high"
	case "medium", "med", "中":
		return "medium"
	case "low", "低":
		return "low"
	default:
		return "low"
	}
}
