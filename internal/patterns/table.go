// Package patterns loads, validates and re-exports pattern tables: an ordered
// mapping from field name to the regex alternatives tried for that field.
package patterns

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Table maps field names to ordered pattern alternatives. Field order is the
// order the fields were first seen in the source and drives column order.
type Table struct {
	order    []string
	patterns map[string][]string
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{patterns: make(map[string][]string)}
}

// Set adds or replaces a field. New fields are appended to the field order.
func (t *Table) Set(field string, patterns []string) {
	if _, ok := t.patterns[field]; !ok {
		t.order = append(t.order, field)
	}
	t.patterns[field] = slices.Clone(patterns)
}

// Has reports whether field is defined.
func (t *Table) Has(field string) bool {
	_, ok := t.patterns[field]
	return ok
}

// Fields returns the field names in table order.
func (t *Table) Fields() []string {
	return slices.Clone(t.order)
}

// Patterns returns the alternatives for field, in priority order.
func (t *Table) Patterns(field string) []string {
	return slices.Clone(t.patterns[field])
}

// Len returns the number of fields.
func (t *Table) Len() int {
	return len(t.order)
}

// PatternCount returns the total number of alternatives across fields.
func (t *Table) PatternCount() int {
	n := 0
	for _, p := range t.patterns {
		n += len(p)
	}
	return n
}

// Equal reports whether both tables have the same fields, in the same order,
// with the same pattern lists.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if !slices.Equal(t.order, o.order) {
		return false
	}
	for _, f := range t.order {
		if !slices.Equal(t.patterns[f], o.patterns[f]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := NewTable()
	for _, f := range t.order {
		c.Set(f, t.patterns[f])
	}
	return c
}

// MarshalJSON writes the table as a JSON object preserving field order.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	out := []byte{'{'}
	for i, f := range t.order {
		if i > 0 {
			out = append(out, ',')
		}
		buf.Reset()
		if err := enc.Encode(f); err != nil {
			return nil, err
		}
		out = append(out, bytes.TrimRight(buf.Bytes(), "\n")...)
		out = append(out, ':')
		buf.Reset()
		if err := enc.Encode(t.patterns[f]); err != nil {
			return nil, err
		}
		out = append(out, bytes.TrimRight(buf.Bytes(), "\n")...)
	}
	return append(out, '}'), nil
}

// UnmarshalJSON parses and validates a JSON pattern table.
func (t *Table) UnmarshalJSON(data []byte) error {
	parsed, err := parseJSON(data)
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}
