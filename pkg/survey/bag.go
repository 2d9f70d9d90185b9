package survey

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Bag is a question's raw constraints bag with its key order preserved.
// Directive order matters: cross-field rules run in the order they are declared.
type Bag struct {
	keys  []string
	nodes map[string]*yaml.Node
}

// ParseBag reads a constraints bag from YAML or JSON text.
// Empty input and null produce an empty bag.
func ParseBag(data []byte) (Bag, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Bag{}, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Bag{}, fmt.Errorf("parse constraints: %w", err)
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return BagFromNode(doc.Content[0])
	}
	return BagFromNode(&doc)
}

// BagFromNode builds a bag from a YAML mapping node.
func BagFromNode(n *yaml.Node) (Bag, error) {
	if n == nil || n.Kind == 0 || isNull(n) {
		return Bag{}, nil
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return Bag{}, fmt.Errorf("constraints must be a mapping, got %s", kindName(n.Kind))
	}

	b := Bag{nodes: make(map[string]*yaml.Node, len(n.Content)/2)}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if _, dup := b.nodes[key]; dup {
			return Bag{}, fmt.Errorf("constraints: duplicate key %q", key)
		}
		b.keys = append(b.keys, key)
		b.nodes[key] = n.Content[i+1]
	}
	return b, nil
}

// BagOf builds a bag from a map. Keys are taken in sorted order.
func BagOf(m map[string]any) (Bag, error) {
	if len(m) == 0 {
		return Bag{}, nil
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return Bag{}, fmt.Errorf("encode constraints: %w", err)
	}
	return ParseBag(data)
}

func (b Bag) Keys() []string { return append([]string(nil), b.keys...) }

func (b Bag) Len() int { return len(b.keys) }

func (b Bag) Has(key string) bool {
	_, ok := b.nodes[key]
	return ok
}

// Node returns the raw node stored under key.
func (b Bag) Node(key string) (*yaml.Node, bool) {
	n, ok := b.nodes[key]
	return n, ok
}

// Decode decodes the value stored under key into out.
func (b Bag) Decode(key string, out any) error {
	n, ok := b.nodes[key]
	if !ok {
		return fmt.Errorf("constraints: no key %q", key)
	}
	if err := n.Decode(out); err != nil {
		return fmt.Errorf("constraints.%s: %w", key, err)
	}
	return nil
}

// Get returns the generic decoded value under key.
func (b Bag) Get(key string) (any, bool) {
	n, ok := b.nodes[key]
	if !ok {
		return nil, false
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// Map returns the bag as a plain map. Key order is lost.
func (b Bag) Map() map[string]any {
	m := make(map[string]any, len(b.keys))
	for _, k := range b.keys {
		v, _ := b.Get(k)
		m[k] = v
	}
	return m
}

// MarshalJSON encodes the bag as an object with keys in declared order.
func (b Bag) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range b.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		v, _ := b.Get(k)
		val, err := json.Marshal(jsonSafe(v))
		if err != nil {
			return nil, fmt.Errorf("constraints.%s: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (b *Bag) UnmarshalJSON(data []byte) error {
	parsed, err := ParseBag(data)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b *Bag) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := BagFromNode(n)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// jsonSafe converts map[any]any, which yaml may produce for non-string keys, into map[string]any.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = jsonSafe(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[fmt.Sprint(k)] = jsonSafe(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = jsonSafe(item)
		}
		return out
	default:
		return v
	}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
