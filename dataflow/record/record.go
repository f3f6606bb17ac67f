package record

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Record is an ordered tuple of values bound to a shared schema, tagged with
// a sign (positive = insert, negative = delete) and a monotonic timestamp.
// Records are passed by pointer and never copied implicitly; an operator that
// fans a record out to multiple children must call Copy explicitly.
type Record struct {
	schema    *Schema
	values    []Value
	positive  bool
	timestamp int64
}

// NewRecord allocates a record with all columns NULL and the sign given by
// positive.
func NewRecord(schema *Schema, positive bool) *Record {
	values := make([]Value, schema.Size())
	for i := range values {
		values[i] = NewNull(schema.TypeOf(ColumnID(i)))
	}
	return &Record{schema: schema, values: values, positive: positive}
}

// NewRecordValues allocates a positive record holding the given values,
// checked against the schema's column types.
func NewRecordValues(schema *Schema, values ...Value) *Record {
	r := NewRecord(schema, true)
	if len(values) != schema.Size() {
		logrus.Fatalf("record has %d values but schema %s has %d columns",
			len(values), schema, schema.Size())
	}
	for i, v := range values {
		r.SetValue(ColumnID(i), v)
	}
	return r
}

// Schema returns the shared schema handle the record is bound to.
func (r *Record) Schema() *Schema { return r.schema }

// IsPositive reports whether the record is an insert (true) or delete (false).
func (r *Record) IsPositive() bool { return r.positive }

// SetPositive updates the record's sign.
func (r *Record) SetPositive(positive bool) { r.positive = positive }

// Timestamp returns the record's monotonic tag.
func (r *Record) Timestamp() int64 { return r.timestamp }

// SetTimestamp updates the record's monotonic tag.
func (r *Record) SetTimestamp(ts int64) { r.timestamp = ts }

func (r *Record) checkType(i ColumnID, want Type) {
	if r.schema.TypeOf(i) != want {
		logrus.Fatalf("record column %d has type %s, want %s",
			i, r.schema.TypeOf(i), want)
	}
}

// SetUInt stores an unsigned integer into column i. Fatal on type mismatch.
func (r *Record) SetUInt(i ColumnID, v uint64) {
	r.checkType(i, UInt)
	r.values[i] = NewUInt(v)
}

// SetInt stores a signed integer into column i. Fatal on type mismatch.
func (r *Record) SetInt(i ColumnID, v int64) {
	r.checkType(i, Int)
	r.values[i] = NewInt(v)
}

// SetText stores a string into column i. Fatal on type mismatch.
func (r *Record) SetText(i ColumnID, v string) {
	r.checkType(i, Text)
	r.values[i] = NewText(v)
}

// SetDateTime stores a datetime string into column i. Fatal on type mismatch.
func (r *Record) SetDateTime(i ColumnID, v string) {
	r.checkType(i, DateTime)
	r.values[i] = NewDateTime(v)
}

// SetNull nulls out column i.
func (r *Record) SetNull(i ColumnID) {
	r.values[i] = NewNull(r.schema.TypeOf(i))
}

// SetValue stores a value into column i, checking its type against the schema.
func (r *Record) SetValue(i ColumnID, v Value) {
	if v.Type() != r.schema.TypeOf(i) {
		logrus.Fatalf("record column %d has type %s, cannot store %s",
			i, r.schema.TypeOf(i), v.Type())
	}
	r.values[i] = v
}

// GetUInt reads column i as an unsigned integer. Fatal on type mismatch.
func (r *Record) GetUInt(i ColumnID) uint64 {
	r.checkType(i, UInt)
	return r.values[i].GetUInt()
}

// GetInt reads column i as a signed integer. Fatal on type mismatch.
func (r *Record) GetInt(i ColumnID) int64 {
	r.checkType(i, Int)
	return r.values[i].GetInt()
}

// GetText reads column i as a string. Fatal on type mismatch.
func (r *Record) GetText(i ColumnID) string {
	r.checkType(i, Text)
	return r.values[i].GetText()
}

// GetValue returns the value at column i.
func (r *Record) GetValue(i ColumnID) Value { return r.values[i] }

// IsNull reports whether column i is NULL.
func (r *Record) IsNull(i ColumnID) bool { return r.values[i].IsNull() }

// Key projects the record onto the given column subset, in order.
func (r *Record) Key(cols []ColumnID) Key {
	k := NewKey(len(cols))
	for _, c := range cols {
		k.AddValue(r.values[c])
	}
	return k
}

// PKey projects the record onto its schema's primary-key columns.
func (r *Record) PKey() Key { return r.Key(r.schema.Keys()) }

// Copy returns a deep copy of the record, including sign and timestamp.
func (r *Record) Copy() *Record {
	values := make([]Value, len(r.values))
	copy(values, r.values)
	return &Record{
		schema:    r.schema,
		values:    values,
		positive:  r.positive,
		timestamp: r.timestamp,
	}
}

// Equal compares two records: the schema handles must be identical and all
// values componentwise equal. Sign and timestamp are metadata and do not
// participate, so a delete can be matched against the insert it undoes.
func (r *Record) Equal(o *Record) bool {
	if r.schema != o.schema {
		return false
	}
	for i := range r.values {
		if !r.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

// Parse builds a positive record from textual literals, parsed column by
// column against the schema. The literal "NULL" yields a null column.
func Parse(schema *Schema, literals ...string) (*Record, error) {
	if len(literals) != schema.Size() {
		return nil, fmt.Errorf("got %d literals for schema %s with %d columns",
			len(literals), schema, schema.Size())
	}
	r := NewRecord(schema, true)
	for i, lit := range literals {
		v, err := ParseValue(schema.TypeOf(ColumnID(i)), lit)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		r.values[i] = v
	}
	return r, nil
}

// String renders the record for logs and debug output.
func (r *Record) String() string {
	var b strings.Builder
	if r.positive {
		b.WriteByte('+')
	} else {
		b.WriteByte('-')
	}
	b.WriteByte('(')
	for i, v := range r.values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
	}
	b.WriteByte(')')
	return b.String()
}
