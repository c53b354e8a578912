package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Facts is an insertion-ordered mapping from key to Value. A nil *Facts
// behaves as an empty mapping for reads.
type Facts struct {
	keys   []string
	values map[string]Value
}

// NewFacts returns an empty mapping.
func NewFacts() *Facts {
	return &Facts{values: make(map[string]Value)}
}

// Get returns the value stored under key.
func (f *Facts) Get(key string) (Value, bool) {
	if f == nil {
		return Value{}, false
	}
	v, ok := f.values[key]
	return v, ok
}

// Has reports whether key is present.
func (f *Facts) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Set stores v under key. A new key is appended to the key order; an
// existing key keeps its position.
func (f *Facts) Set(key string, v Value) {
	if f.values == nil {
		f.values = make(map[string]Value)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = v
}

// Delete removes key if present.
func (f *Facts) Delete(key string) {
	if f == nil {
		return
	}
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	if i := slices.Index(f.keys, key); i >= 0 {
		f.keys = slices.Delete(f.keys, i, i+1)
	}
}

// Keys returns the keys in insertion order.
func (f *Facts) Keys() []string {
	if f == nil {
		return nil
	}
	return slices.Clone(f.keys)
}

// Len returns the number of keys.
func (f *Facts) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Text returns the textual form of key's value, or "" when absent.
func (f *Facts) Text(key string) string {
	v, ok := f.Get(key)
	if !ok {
		return ""
	}
	return v.Text()
}

// Strings returns key's value viewed as a list: a list as-is, a scalar as a
// single element, nothing when absent.
func (f *Facts) Strings(key string) []string {
	v, ok := f.Get(key)
	if !ok {
		return nil
	}
	if items, ok := v.List(); ok {
		return items
	}
	return []string{v.Text()}
}

// Clone returns an independent copy.
func (f *Facts) Clone() *Facts {
	out := NewFacts()
	if f == nil {
		return out
	}
	for _, key := range f.keys {
		v := f.values[key]
		if items, ok := v.List(); ok {
			v = List(items...)
		}
		out.Set(key, v)
	}
	return out
}

// MarshalJSON writes the mapping as a JSON object in key order.
func (f *Facts) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := f.values[key].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the document's key order.
func (f *Facts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode facts: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode facts: expected object")
	}
	out := NewFacts()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode facts key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode facts: unexpected key token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode facts %s: %w", key, err)
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("decode facts %s: %w", key, err)
		}
		out.Set(key, v)
	}
	*f = *out
	return nil
}
