package record

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

// Type enumerates the column types supported by the engine. The numeric
// values double as the type codes used by the persisted schema state file,
// so they must not be reordered.
type Type uint8

const (
	UInt Type = iota
	Int
	Text
	DateTime
)

// DateTimeLayout is the canonical textual layout of DateTime values.
// Lexicographic order of the layout agrees with chronological order.
const DateTimeLayout = "2006-01-02 15:04:05"

// String returns the SQL-ish name of the type.
func (t Type) String() string {
	switch t {
	case UInt:
		return "UINT"
	case Int:
		return "INT"
	case Text:
		return "TEXT"
	case DateTime:
		return "DATETIME"
	default:
		return fmt.Sprintf("TYPE(%d)", uint8(t))
	}
}

// Value is a tagged union over the engine's supported types plus NULL.
// A null value still carries its column type so schema checks remain exact.
// Text and DateTime payloads are owned by the value; values never alias.
type Value struct {
	typ  Type
	null bool
	u    uint64
	i    int64
	s    string
}

// NewUInt returns an unsigned integer value.
func NewUInt(v uint64) Value { return Value{typ: UInt, u: v} }

// NewInt returns a signed integer value.
func NewInt(v int64) Value { return Value{typ: Int, i: v} }

// NewText returns a text value owning its string data.
func NewText(v string) Value { return Value{typ: Text, s: v} }

// NewDateTime returns a datetime value in DateTimeLayout form.
func NewDateTime(v string) Value { return Value{typ: DateTime, s: v} }

// NewNull returns a NULL value of the given column type.
func NewNull(t Type) Value { return Value{typ: t, null: true} }

// Type returns the column type of the value (meaningful even when null).
func (v Value) Type() Type { return v.typ }

// IsNull reports whether the value is NULL.
func (v Value) IsNull() bool { return v.null }

func (v Value) checkType(want Type) {
	if v.typ != want {
		logrus.Fatalf("value type mismatch: have %s, want %s", v.typ, want)
	}
}

// GetUInt returns the unsigned payload. Fatal on type mismatch.
func (v Value) GetUInt() uint64 {
	v.checkType(UInt)
	return v.u
}

// GetInt returns the signed payload. Fatal on type mismatch.
func (v Value) GetInt() int64 {
	v.checkType(Int)
	return v.i
}

// GetText returns the text payload. Fatal on type mismatch.
func (v Value) GetText() string {
	v.checkType(Text)
	return v.s
}

// GetDateTime returns the datetime payload. Fatal on type mismatch.
func (v Value) GetDateTime() string {
	v.checkType(DateTime)
	return v.s
}

// Equal reports componentwise equality. Two nulls of the same type are equal.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ || v.null != o.null {
		return false
	}
	if v.null {
		return true
	}
	switch v.typ {
	case UInt:
		return v.u == o.u
	case Int:
		return v.i == o.i
	case Text, DateTime:
		return v.s == o.s
	default:
		logrus.Fatalf("unsupported type in value equality: %s", v.typ)
		return false
	}
}

// Less orders values of the same type; NULL sorts before any non-null.
// Fatal when the types differ.
func (v Value) Less(o Value) bool {
	if v.typ != o.typ {
		logrus.Fatalf("value type mismatch in comparison: %s vs %s", v.typ, o.typ)
	}
	if v.null || o.null {
		return v.null && !o.null
	}
	switch v.typ {
	case UInt:
		return v.u < o.u
	case Int:
		return v.i < o.i
	case Text, DateTime:
		return v.s < o.s
	default:
		logrus.Fatalf("unsupported type in value comparison: %s", v.typ)
		return false
	}
}

// hashInto folds the value into a running xxhash digest. The encoding is
// tagged by type and nullness so distinct values never collide structurally.
func (v Value) hashInto(d *xxhash.Digest) {
	var tag [2]byte
	tag[0] = byte(v.typ)
	if v.null {
		tag[1] = 1
	}
	_, _ = d.Write(tag[:])
	if v.null {
		return
	}
	switch v.typ {
	case UInt:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v.u)
		_, _ = d.Write(buf[:])
	case Int:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v.i))
		_, _ = d.Write(buf[:])
	case Text, DateTime:
		var size [8]byte
		binary.LittleEndian.PutUint64(size[:], uint64(len(v.s)))
		_, _ = d.Write(size[:])
		_, _ = d.WriteString(v.s)
	}
}

// encodeInto appends a canonical byte encoding of the value, used to build
// map keys for operator state. The encoding is injective per value sequence.
func (v Value) encodeInto(b []byte) []byte {
	b = append(b, byte(v.typ))
	if v.null {
		return append(b, 1)
	}
	b = append(b, 0)
	switch v.typ {
	case UInt:
		b = binary.LittleEndian.AppendUint64(b, v.u)
	case Int:
		b = binary.LittleEndian.AppendUint64(b, uint64(v.i))
	case Text, DateTime:
		b = binary.LittleEndian.AppendUint64(b, uint64(len(v.s)))
		b = append(b, v.s...)
	}
	return b
}

// String renders the value for logs and debug output.
func (v Value) String() string {
	if v.null {
		return "NULL"
	}
	switch v.typ {
	case UInt:
		return strconv.FormatUint(v.u, 10)
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Text:
		return strconv.Quote(v.s)
	case DateTime:
		return v.s
	default:
		return "?"
	}
}

// ParseValue parses a textual literal into a value of the given type.
// The literal "NULL" parses to a null of that type.
func ParseValue(t Type, literal string) (Value, error) {
	if literal == "NULL" {
		return NewNull(t), nil
	}
	switch t {
	case UInt:
		u, err := strconv.ParseUint(literal, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parsing %q as UINT: %w", literal, err)
		}
		return NewUInt(u), nil
	case Int:
		i, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parsing %q as INT: %w", literal, err)
		}
		return NewInt(i), nil
	case Text:
		return NewText(literal), nil
	case DateTime:
		return NewDateTime(literal), nil
	default:
		return Value{}, fmt.Errorf("unsupported column type %s", t)
	}
}
