package render

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Field is one named value of a Row.
type Field struct {
	Name  string
	Value any
}

// Row is an ordered record. A Value may itself be a Row (a nested record).
type Row []Field

// Get returns the value of the first field named name.
func (r Row) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns the field names in order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// MarshalJSON encodes the row as an object, keeping field order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FromMap builds a Row from a map, ordering fields by key.
// Nested maps become nested rows.
func FromMap(m map[string]any) Row {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	row := make(Row, 0, len(keys))
	for _, k := range keys {
		v := m[k]
		if nested, ok := v.(map[string]any); ok {
			v = FromMap(nested)
		}
		row = append(row, Field{Name: k, Value: v})
	}
	return row
}

// Flatten collapses nested rows into dotted field names (a.b.c).
// Arrays and empty nested rows are kept as leaf values.
func Flatten(r Row) Row {
	out := make(Row, 0, len(r))
	return flattenInto(out, "", r)
}

func flattenInto(out Row, prefix string, r Row) Row {
	for _, f := range r {
		name := f.Name
		if prefix != "" {
			name = prefix + "." + f.Name
		}
		if nested, ok := f.Value.(Row); ok && len(nested) > 0 {
			out = flattenInto(out, name, nested)
			continue
		}
		out = append(out, Field{Name: name, Value: f.Value})
	}
	return out
}
