package record

import (
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

// Key is a fixed-capacity, append-only ordered tuple of values, used as a
// hash-map key in operator state and as the partitioning domain. Two keys
// are equal iff they have the same length and componentwise equal values.
type Key struct {
	values []Value
}

// NewKey returns an empty key that can hold up to capacity values.
func NewKey(capacity int) Key {
	return Key{values: make([]Value, 0, capacity)}
}

// KeyOf builds a full key from the given values.
func KeyOf(values ...Value) Key {
	k := NewKey(len(values))
	for _, v := range values {
		k.AddValue(v)
	}
	return k
}

// AddValue appends a value. Fatal when the key is already at capacity;
// a key growing past its reservation indicates a planning bug.
func (k *Key) AddValue(v Value) {
	if len(k.values) == cap(k.values) {
		logrus.Fatalf("key is already full (capacity %d)", cap(k.values))
	}
	k.values = append(k.values, v)
}

// Size returns the number of values appended so far.
func (k Key) Size() int { return len(k.values) }

// Value returns the i-th component.
func (k Key) Value(i int) Value { return k.values[i] }

// Equal reports componentwise equality.
func (k Key) Equal(o Key) bool {
	if len(k.values) != len(o.values) {
		return false
	}
	for i := range k.values {
		if !k.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

// Less orders keys lexicographically by component. Used by the key-ordered
// materialized view index.
func (k Key) Less(o Key) bool {
	n := len(k.values)
	if len(o.values) < n {
		n = len(o.values)
	}
	for i := 0; i < n; i++ {
		if k.values[i].Equal(o.values[i]) {
			continue
		}
		return k.values[i].Less(o.values[i])
	}
	return len(k.values) < len(o.values)
}

// Hash returns a deterministic 64-bit hash of the key. The hash is a pure
// function of the key's values: it is stable across runs, partitions, and
// processes, which the row-to-partition mapping depends on.
func (k Key) Hash() uint64 {
	d := xxhash.New()
	for _, v := range k.values {
		v.hashInto(d)
	}
	return d.Sum64()
}

// Encode returns an injective byte-string encoding of the key, suitable as
// a Go map key for operator state.
func (k Key) Encode() string {
	b := make([]byte, 0, 16*len(k.values))
	for _, v := range k.values {
		b = v.encodeInto(b)
	}
	return string(b)
}

// String renders the key for logs and debug output.
func (k Key) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range k.values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
	}
	b.WriteByte(']')
	return b.String()
}
