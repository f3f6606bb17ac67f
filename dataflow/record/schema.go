package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Schema is an immutable column descriptor: ordered column names, parallel
// column types, and the sorted indices of the primary-key columns. Schemas
// are shared by reference; two *Schema handles are the same schema iff they
// are the same pointer. Structural sharing keeps the comparison cheap, which
// the hot path relies on (every input record is checked against its table's
// declared schema).
type Schema struct {
	names []string
	types []Type
	keys  []ColumnID
}

// NewSchema builds a schema descriptor. Invariants are enforced fatally:
// names and types must be parallel, key indices must be in range, sorted,
// and unique. A violated invariant is an engineering bug, not input error.
func NewSchema(names []string, types []Type, keys []ColumnID) *Schema {
	if len(names) != len(types) {
		logrus.Fatalf("schema has %d names but %d types", len(names), len(types))
	}
	if !sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }) {
		logrus.Fatalf("schema key indices are not sorted: %v", keys)
	}
	for i, k := range keys {
		if int(k) >= len(names) {
			logrus.Fatalf("schema key index %d out of range (%d columns)", k, len(names))
		}
		if i > 0 && keys[i-1] == k {
			logrus.Fatalf("schema key index %d appears twice", k)
		}
	}
	return &Schema{
		names: append([]string(nil), names...),
		types: append([]Type(nil), types...),
		keys:  append([]ColumnID(nil), keys...),
	}
}

// Size returns the number of columns.
func (s *Schema) Size() int { return len(s.names) }

// NameOf returns the name of column i.
func (s *Schema) NameOf(i ColumnID) string {
	s.checkRange(i)
	return s.names[i]
}

// TypeOf returns the type of column i.
func (s *Schema) TypeOf(i ColumnID) Type {
	s.checkRange(i)
	return s.types[i]
}

// Keys returns the primary-key column indices (sorted, unique).
func (s *Schema) Keys() []ColumnID { return s.keys }

// ColumnNames returns the ordered column names.
func (s *Schema) ColumnNames() []string { return s.names }

// ColumnTypes returns the ordered column types.
func (s *Schema) ColumnTypes() []Type { return s.types }

// IndexOf returns the index of the named column.
func (s *Schema) IndexOf(name string) (ColumnID, error) {
	for i, n := range s.names {
		if n == name {
			return ColumnID(i), nil
		}
	}
	return 0, fmt.Errorf("schema has no column named %q", name)
}

// IsKey reports whether column i is part of the primary key.
func (s *Schema) IsKey(i ColumnID) bool {
	for _, k := range s.keys {
		if k == i {
			return true
		}
	}
	return false
}

func (s *Schema) checkRange(i ColumnID) {
	if int(i) >= len(s.names) {
		logrus.Fatalf("column index %d out of range for schema %s", i, s)
	}
}

// String renders the schema for logs and debug output.
func (s *Schema) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i := range s.names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", s.names[i], s.types[i])
		if s.IsKey(ColumnID(i)) {
			b.WriteString(" PK")
		}
	}
	b.WriteByte(')')
	return b.String()
}
