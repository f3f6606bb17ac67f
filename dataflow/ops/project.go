package ops

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brownsys/k9db/dataflow/record"
)

// ArithmeticOp enumerates the integer arithmetic supported by projections.
type ArithmeticOp uint8

const (
	Plus ArithmeticOp = iota
	Minus
)

func (op ArithmeticOp) String() string {
	if op == Plus {
		return "+"
	}
	return "-"
}

// projection is one output entry: a copied input column, a literal constant,
// or an integer arithmetic expression over columns/literals.
type projection struct {
	kind projectionKind
	// Column entry.
	column record.ColumnID
	// Literal entry.
	literal record.Value
	// Arithmetic entry; operands are columns when *IsCol is set, literal
	// integers otherwise.
	op         ArithmeticOp
	leftCol    record.ColumnID
	leftLit    int64
	leftIsCol  bool
	rightCol   record.ColumnID
	rightLit   int64
	rightIsCol bool
	name       string
}

type projectionKind uint8

const (
	projectColumn projectionKind = iota
	projectLiteral
	projectArithmetic
)

// ProjectOperator emits, per input record, a record holding the configured
// output entries. Output key columns are exactly the output positions that
// copy an input key column, preserving any reordering.
type ProjectOperator struct {
	Node
	projections []projection
}

// NewProject creates a projection with no entries; add them with the
// AddColumn / AddLiteral / AddArithmetic builders before wiring the operator
// into a partition.
func NewProject() *ProjectOperator {
	return &ProjectOperator{Node: NewNode(Project)}
}

// AddColumn appends an entry copying input column i.
func (o *ProjectOperator) AddColumn(i record.ColumnID) {
	o.projections = append(o.projections, projection{kind: projectColumn, column: i})
}

// AddLiteral appends an entry emitting a constant under the given name.
func (o *ProjectOperator) AddLiteral(name string, v record.Value) {
	o.projections = append(o.projections, projection{kind: projectLiteral, literal: v, name: name})
}

// AddColumnArithmetic appends "left op right" over two columns.
func (o *ProjectOperator) AddColumnArithmetic(name string, left record.ColumnID, op ArithmeticOp, right record.ColumnID) {
	o.projections = append(o.projections, projection{
		kind: projectArithmetic, op: op, name: name,
		leftCol: left, leftIsCol: true, rightCol: right, rightIsCol: true,
	})
}

// AddLeftLiteralArithmetic appends "literal op column".
func (o *ProjectOperator) AddLeftLiteralArithmetic(name string, left int64, op ArithmeticOp, right record.ColumnID) {
	o.projections = append(o.projections, projection{
		kind: projectArithmetic, op: op, name: name,
		leftLit: left, rightCol: right, rightIsCol: true,
	})
}

// AddRightLiteralArithmetic appends "column op literal".
func (o *ProjectOperator) AddRightLiteralArithmetic(name string, left record.ColumnID, op ArithmeticOp, right int64) {
	o.projections = append(o.projections, projection{
		kind: projectArithmetic, op: op, name: name,
		leftCol: left, leftIsCol: true, rightLit: right,
	})
}

// Process projects each record onto the output schema, preserving sign and
// timestamp.
func (o *ProjectOperator) Process(_ record.NodeIndex, records []*record.Record) []*record.Record {
	out := make([]*record.Record, 0, len(records))
	for _, r := range records {
		projected := record.NewRecord(o.outputSchema, r.IsPositive())
		projected.SetTimestamp(r.Timestamp())
		for i, p := range o.projections {
			col := record.ColumnID(i)
			switch p.kind {
			case projectColumn:
				projected.SetValue(col, r.GetValue(p.column))
			case projectLiteral:
				projected.SetValue(col, p.literal)
			case projectArithmetic:
				v, null := o.evalArithmetic(p, r)
				if null {
					projected.SetNull(col)
				} else {
					projected.SetInt(col, v)
				}
			}
		}
		out = append(out, projected)
	}
	return out
}

// evalArithmetic computes the integer expression; a NULL operand yields a
// NULL result.
func (o *ProjectOperator) evalArithmetic(p projection, r *record.Record) (int64, bool) {
	operand := func(isCol bool, col record.ColumnID, lit int64) (int64, bool) {
		if !isCol {
			return lit, false
		}
		v := r.GetValue(col)
		if v.IsNull() {
			return 0, true
		}
		switch v.Type() {
		case record.Int:
			return v.GetInt(), false
		case record.UInt:
			return int64(v.GetUInt()), false
		default:
			logrus.Fatalf("projection arithmetic over non-integer column %d (%s)", col, v.Type())
			return 0, false
		}
	}
	left, lnull := operand(p.leftIsCol, p.leftCol, p.leftLit)
	right, rnull := operand(p.rightIsCol, p.rightCol, p.rightLit)
	if lnull || rnull {
		return 0, true
	}
	if p.op == Plus {
		return left + right, false
	}
	return left - right, false
}

// ComputeOutputSchema derives names, types, and key columns from the
// projection entries. Called after entries are added and the parent is
// attached; the partition defers this until wiring time for projections.
func (o *ProjectOperator) ComputeOutputSchema() {
	if len(o.inputSchemas) == 0 {
		return
	}
	in := o.inputSchemas[0]
	names := make([]string, 0, len(o.projections))
	types := make([]record.Type, 0, len(o.projections))
	var keys []record.ColumnID
	for i, p := range o.projections {
		switch p.kind {
		case projectColumn:
			names = append(names, in.NameOf(p.column))
			types = append(types, in.TypeOf(p.column))
			if in.IsKey(p.column) {
				keys = append(keys, record.ColumnID(i))
			}
		case projectLiteral:
			names = append(names, p.name)
			types = append(types, p.literal.Type())
		case projectArithmetic:
			names = append(names, p.name)
			types = append(types, record.Int)
		}
	}
	o.setOutputSchema(record.NewSchema(names, types, keys))
}

// Clone copies the projection entries; projections hold no state.
func (o *ProjectOperator) Clone() Operator {
	clone := NewProject()
	clone.projections = append([]projection(nil), o.projections...)
	return clone
}

// DebugString describes the operator including its entries.
func (o *ProjectOperator) DebugString() string {
	var b strings.Builder
	b.WriteString(o.Node.DebugString())
	for _, p := range o.projections {
		switch p.kind {
		case projectColumn:
			fmt.Fprintf(&b, " [col%d]", p.column)
		case projectLiteral:
			fmt.Fprintf(&b, " [%s=%s]", p.name, p.literal)
		case projectArithmetic:
			fmt.Fprintf(&b, " [%s=expr]", p.name)
		}
	}
	return b.String()
}
