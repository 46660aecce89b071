package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.yaml.in/yaml/v3"
)

// orderedStrPair is one key/value pair of an orderedStrMap.
type orderedStrPair struct {
	Key   string
	Value string
}

// orderedStrMap is a JSON object that preserves insertion order and drops
// duplicate keys on parse, keeping the first occurrence, per §3's
// "annotations (ordered key→value, keys unique)". Dropped duplicates are
// not logged. Plain
// Go maps cannot represent this (encoding/json's map decoder silently
// keeps only the last occurrence of a repeated key and loses order), so
// this walks the raw token stream instead.
type orderedStrMap []orderedStrPair

func (m orderedStrMap) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *orderedStrMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("manifest: expected object for annotations, got %v", tok)
	}

	seen := make(map[string]bool)
	var out orderedStrMap
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("manifest: annotation key must be a string, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("manifest: annotation %q: %w", key, err)
		}
		if seen[key] {
			continue // duplicate key: first occurrence kept, nothing logged
		}
		seen[key] = true
		out = append(out, orderedStrPair{Key: key, Value: value})
	}
	*m = out
	return nil
}

// MarshalYAML builds a mapping node directly so pretty (YAML) emission
// preserves annotation order the same way JSON emission does; yaml.v3's
// generic map marshaling would otherwise sort keys.
func (m orderedStrMap) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, p := range m {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Value},
		)
	}
	return node, nil
}

func (m *orderedStrMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("manifest: expected mapping for annotations, got kind %d", node.Kind)
	}
	seen := make(map[string]bool)
	var out orderedStrMap
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1].Value
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, orderedStrPair{Key: key, Value: value})
	}
	*m = out
	return nil
}
