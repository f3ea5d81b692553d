package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a rule file and builds a store from it. Files ending in
// .json are decoded as JSON, everything else as YAML.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge file: %w", err)
	}

	var rules []Rule
	if strings.EqualFold(filepath.Ext(path), ".json") {
		rules, err = ParseJSON(data)
	} else {
		rules, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return NewStore(rules)
}

// Parse decodes YAML rule data. Three layouts are accepted:
//
//	rules: [ {id: A, ...}, ... ]   # list under a "rules" key
//	- {id: A, ...}                 # bare list
//	A: {category: ..., ...}        # mapping from id to rule
//
// Document order is preserved in every layout.
func Parse(data []byte) ([]Rule, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		return decodeSequence(root)
	case yaml.MappingNode:
		if len(root.Content) == 2 && root.Content[0].Value == "rules" {
			if root.Content[1].Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("%w: \"rules\" must be a list", ErrInvalidRule)
			}
			return decodeSequence(root.Content[1])
		}
		return decodeMapping(root)
	default:
		return nil, fmt.Errorf("%w: unexpected document root", ErrInvalidRule)
	}
}

func decodeSequence(n *yaml.Node) ([]Rule, error) {
	rules := make([]Rule, 0, len(n.Content))
	for _, item := range n.Content {
		var r Rule
		if err := item.Decode(&r); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidRule, item.Line, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func decodeMapping(n *yaml.Node) ([]Rule, error) {
	rules := make([]Rule, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		var r Rule
		if err := val.Decode(&r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, key.Value, err)
		}
		if r.ID == "" {
			r.ID = key.Value
		} else if r.ID != key.Value {
			return nil, fmt.Errorf("%w: key %q does not match id %q", ErrInvalidRule, key.Value, r.ID)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// ParseJSON decodes JSON rule data in the same three layouts as Parse.
func ParseJSON(data []byte) ([]Rule, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var rules []Rule
		if err := json.Unmarshal(trimmed, &rules); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		return rules, nil
	}

	var wrapped struct {
		Rules []Rule `json:"rules"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err == nil && wrapped.Rules != nil {
		return wrapped.Rules, nil
	}

	// Mapping form: walk tokens so key order survives.
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("%w: expected a JSON object or array", ErrInvalidRule)
	}

	var rules []Rule
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		key, _ := tok.(string)

		var r Rule
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, key, err)
		}
		if r.ID == "" {
			r.ID = key
		} else if r.ID != key {
			return nil, fmt.Errorf("%w: key %q does not match id %q", ErrInvalidRule, key, r.ID)
		}
		rules = append(rules, r)
	}

	return rules, nil
}
