package ops

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brownsys/k9db/dataflow/record"
)

// Operation enumerates filter predicates.
type Operation uint8

const (
	Equal Operation = iota
	NotEqual
	LessThan
	LessThanOrEqual
	GreaterThan
	GreaterThanOrEqual
	IsNull
	IsNotNull
	Like
)

// String returns the SQL spelling of the operation.
func (op Operation) String() string {
	switch op {
	case Equal:
		return "="
	case NotEqual:
		return "<>"
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	case IsNull:
		return "IS NULL"
	case IsNotNull:
		return "IS NOT NULL"
	case Like:
		return "LIKE"
	default:
		return fmt.Sprintf("OP(%d)", uint8(op))
	}
}

// condition is one predicate: a column compared against a literal or against
// another column. The planner normalizes so the column is always on the left.
type condition struct {
	left     record.ColumnID
	right    record.Value
	rightCol record.ColumnID
	isCol    bool
	op       Operation
}

// FilterOperator drops records that fail any of its AND-combined conditions.
// A NULL value satisfies only IS NULL; every other predicate on a NULL
// evaluates to false. Comparing operands of different column types is fatal.
//
// LIKE uses substring semantics with % recognized at the pattern boundaries
// only: %x% means contains, x% prefix, %x suffix, and a bare pattern means
// equality. There is no _ wildcard.
type FilterOperator struct {
	Node
	conditions []condition
}

// NewFilter creates a filter with no conditions; add them with the
// AddLiteralOperation / AddColumnOperation / AddNullOperation builders.
func NewFilter() *FilterOperator {
	return &FilterOperator{Node: NewNode(Filter)}
}

// AddLiteralOperation appends the condition "column op literal".
func (o *FilterOperator) AddLiteralOperation(column record.ColumnID, op Operation, literal record.Value) {
	o.conditions = append(o.conditions, condition{left: column, right: literal, op: op})
}

// AddColumnOperation appends the condition "left op right" over two columns.
func (o *FilterOperator) AddColumnOperation(left record.ColumnID, op Operation, right record.ColumnID) {
	o.conditions = append(o.conditions, condition{left: left, rightCol: right, isCol: true, op: op})
}

// AddNullOperation appends "column IS NULL" or "column IS NOT NULL".
func (o *FilterOperator) AddNullOperation(column record.ColumnID, op Operation) {
	if op != IsNull && op != IsNotNull {
		logrus.Fatalf("null filter condition requires IS NULL or IS NOT NULL, got %s", op)
	}
	o.conditions = append(o.conditions, condition{left: column, op: op})
}

// Process keeps records accepted by every condition. Negative records are
// filtered by the same predicate, so a delete follows the exact path its
// insert took.
func (o *FilterOperator) Process(_ record.NodeIndex, records []*record.Record) []*record.Record {
	out := make([]*record.Record, 0, len(records))
	for _, r := range records {
		if o.accept(r) {
			out = append(out, r)
		}
	}
	return out
}

func (o *FilterOperator) accept(r *record.Record) bool {
	for _, c := range o.conditions {
		left := r.GetValue(c.left)
		switch c.op {
		case IsNull:
			if !left.IsNull() {
				return false
			}
			continue
		case IsNotNull:
			if left.IsNull() {
				return false
			}
			continue
		}
		right := c.right
		if c.isCol {
			right = r.GetValue(c.rightCol)
		}
		if left.Type() != right.Type() {
			logrus.Fatalf("filter type mismatch on column %d: %s %s %s",
				c.left, left.Type(), c.op, right.Type())
		}
		// NULL satisfies no comparison predicate.
		if left.IsNull() || right.IsNull() {
			return false
		}
		if !compare(left, c.op, right) {
			return false
		}
	}
	return true
}

func compare(left record.Value, op Operation, right record.Value) bool {
	switch op {
	case Equal:
		return left.Equal(right)
	case NotEqual:
		return !left.Equal(right)
	case LessThan:
		return left.Less(right)
	case LessThanOrEqual:
		return !right.Less(left)
	case GreaterThan:
		return right.Less(left)
	case GreaterThanOrEqual:
		return !left.Less(right)
	case Like:
		if left.Type() != record.Text {
			logrus.Fatalf("LIKE requires TEXT operands, got %s", left.Type())
		}
		return like(left.GetText(), right.GetText())
	default:
		logrus.Fatalf("unsupported filter operation %s", op)
		return false
	}
}

// like implements boundary-% matching: %x% contains, x% prefix, %x suffix,
// bare pattern equality.
func like(value, pattern string) bool {
	prefix := strings.HasPrefix(pattern, "%")
	suffix := strings.HasSuffix(pattern, "%") && len(pattern) > 1
	needle := strings.TrimSuffix(strings.TrimPrefix(pattern, "%"), "%")
	switch {
	case prefix && suffix:
		return strings.Contains(value, needle)
	case suffix:
		return strings.HasPrefix(value, needle)
	case prefix:
		return strings.HasSuffix(value, needle)
	default:
		return value == pattern
	}
}

// ComputeOutputSchema copies the parent's schema.
func (o *FilterOperator) ComputeOutputSchema() {
	if len(o.inputSchemas) == 0 {
		return
	}
	o.setOutputSchema(o.inputSchemas[0])
}

// Clone copies the conditions; filters hold no state.
func (o *FilterOperator) Clone() Operator {
	clone := NewFilter()
	clone.conditions = append([]condition(nil), o.conditions...)
	return clone
}

// DebugString describes the operator including its conditions.
func (o *FilterOperator) DebugString() string {
	var b strings.Builder
	b.WriteString(o.Node.DebugString())
	for _, c := range o.conditions {
		if c.isCol {
			fmt.Fprintf(&b, " [col%d %s col%d]", c.left, c.op, c.rightCol)
		} else {
			fmt.Fprintf(&b, " [col%d %s %s]", c.left, c.op, c.right)
		}
	}
	return b.String()
}
