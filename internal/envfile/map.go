package envfile

import "sort"

// Map is an insertion-ordered string map with unique keys.
//
// Setting an existing key replaces its value but keeps its original
// position, so a layered map lists base keys first and overlay-only keys
// after them.
type Map struct {
	keys   []string
	values map[string]string
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]string)}
}

// Set stores value under key.
func (m *Map) Set(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil || len(m.keys) == 0 {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Merge layers other over m. Keys present in both take other's value.
func (m *Map) Merge(other *Map) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		m.Set(k, other.values[k])
	}
}

// ToMap returns a plain copy of the entries.
func (m *Map) ToMap() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// SortedKeys returns the keys in lexical order.
func (m *Map) SortedKeys() []string {
	keys := m.Keys()
	sort.Strings(keys)
	return keys
}
