package ops

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brownsys/k9db/dataflow/record"
)

// JoinMode selects inner, left outer, or right outer join semantics.
type JoinMode uint8

const (
	InnerJoin JoinMode = iota
	LeftJoin
	RightJoin
)

func (m JoinMode) String() string {
	switch m {
	case InnerJoin:
		return "INNER"
	case LeftJoin:
		return "LEFT"
	case RightJoin:
		return "RIGHT"
	default:
		return fmt.Sprintf("MODE(%d)", uint8(m))
	}
}

// EquiJoinOperator joins two parents on column equality. Both sides are kept
// in hash tables keyed by the join column; a record arriving from one side
// probes the other side's table, emits concatenated outputs for each match,
// and is then inserted into (or removed from) its own table.
//
// The output schema is the left schema followed by the right schema with the
// right join column dropped; the left join column carries the join value for
// both sides. In LEFT (resp. RIGHT) mode, an unmatched left (right) record is
// emitted padded with NULLs on the other side, and pad emissions are
// retracted or restored with compensating negative/positive pairs as matches
// appear and disappear.
type EquiJoinOperator struct {
	Node
	leftCol  record.ColumnID
	rightCol record.ColumnID
	mode     JoinMode

	leftTable  *GroupedData
	rightTable *GroupedData
}

// NewEquiJoin creates an equi-join on leftCol = rightCol with the given mode.
func NewEquiJoin(leftCol, rightCol record.ColumnID, mode JoinMode) *EquiJoinOperator {
	return &EquiJoinOperator{
		Node:       NewNode(EquiJoin),
		leftCol:    leftCol,
		rightCol:   rightCol,
		mode:       mode,
		leftTable:  NewGroupedData(),
		rightTable: NewGroupedData(),
	}
}

// LeftColumn returns the join column in the left parent's schema.
func (o *EquiJoinOperator) LeftColumn() record.ColumnID { return o.leftCol }

// RightColumn returns the join column in the right parent's schema.
func (o *EquiJoinOperator) RightColumn() record.ColumnID { return o.rightCol }

// Mode returns the join mode.
func (o *EquiJoinOperator) Mode() JoinMode { return o.mode }

// JoinColumn returns the output column carrying the join value, which is the
// left join column (the right one is dropped from the output schema). The
// partitioning analysis pins the join's partitioning key to it.
func (o *EquiJoinOperator) JoinColumn() record.ColumnID { return o.leftCol }

// Process handles a batch from either parent. parents[0] is the left side,
// parents[1] the right side.
func (o *EquiJoinOperator) Process(source record.NodeIndex, records []*record.Record) []*record.Record {
	var out []*record.Record
	switch source {
	case o.parents[0]:
		for _, r := range records {
			out = o.processSide(out, r, true)
		}
	case o.parents[1]:
		for _, r := range records {
			out = o.processSide(out, r, false)
		}
	default:
		logrus.Fatalf("equijoin %d got batch from node %d, parents are %v",
			o.index, source, o.parents)
	}
	return out
}

// processSide handles one record arriving on the left (fromLeft) or right
// side; the logic is symmetric with the roles of the tables and pad modes
// swapped.
func (o *EquiJoinOperator) processSide(out []*record.Record, r *record.Record, fromLeft bool) []*record.Record {
	own, other := o.leftTable, o.rightTable
	ownCol, padMode := o.leftCol, LeftJoin
	if !fromLeft {
		own, other = o.rightTable, o.leftTable
		ownCol, padMode = o.rightCol, RightJoin
	}
	// otherPadMode pads records of the probed side; it applies when the
	// probed side is the outer side of the join.
	otherPadMode := LeftJoin
	if fromLeft {
		otherPadMode = RightJoin
	}

	key := record.KeyOf(r.GetValue(ownCol))
	matches := other.Get(key)

	if r.IsPositive() {
		// A first record on this side matches previously unmatched outer
		// records on the other side: retract their pad emissions.
		if o.mode == otherPadMode && len(matches) > 0 && !own.Contains(key) {
			for _, m := range matches {
				out = append(out, o.pad(m, !fromLeft, false, r.Timestamp()))
			}
		}
		if len(matches) == 0 {
			if o.mode == padMode {
				out = append(out, o.pad(r, fromLeft, true, r.Timestamp()))
			}
		} else {
			for _, m := range matches {
				out = append(out, o.join(r, m, fromLeft, true))
			}
		}
		own.Insert(key, r)
		return out
	}

	// Negative record: the join tables must stay consistent with the base
	// tables, so a delete that matches no prior insert is a bug upstream.
	if !own.Remove(key, r) {
		logrus.Fatalf("equijoin %d: negative record %s matches no prior insert", o.index, r)
	}
	if len(matches) == 0 {
		if o.mode == padMode {
			out = append(out, o.pad(r, fromLeft, false, r.Timestamp()))
		}
	} else {
		for _, m := range matches {
			out = append(out, o.join(r, m, fromLeft, false))
		}
	}
	// The last record on this side leaves outer records on the other side
	// unmatched again: restore their pad emissions.
	if o.mode == otherPadMode && len(matches) > 0 && !own.Contains(key) {
		for _, m := range matches {
			out = append(out, o.pad(m, !fromLeft, true, r.Timestamp()))
		}
	}
	return out
}

// join concatenates a driving record with a stored match into an output
// record carrying the given sign.
func (o *EquiJoinOperator) join(driving, stored *record.Record, drivingIsLeft, positive bool) *record.Record {
	left, right := driving, stored
	if !drivingIsLeft {
		left, right = stored, driving
	}
	out := record.NewRecord(o.outputSchema, positive)
	out.SetTimestamp(driving.Timestamp())
	o.copySides(out, left, right)
	return out
}

// pad emits an outer-side record with NULLs on the other side. The left join
// column always carries the join value, whichever side the record came from.
func (o *EquiJoinOperator) pad(r *record.Record, isLeft, positive bool, ts int64) *record.Record {
	out := record.NewRecord(o.outputSchema, positive)
	out.SetTimestamp(ts)
	if isLeft {
		o.copySides(out, r, nil)
	} else {
		o.copySides(out, nil, r)
		out.SetValue(o.leftCol, r.GetValue(o.rightCol))
	}
	return out
}

// copySides fills the output record from the left and/or right source
// records; a nil side stays NULL.
func (o *EquiJoinOperator) copySides(out *record.Record, left, right *record.Record) {
	lsize := record.ColumnID(o.inputSchemas[0].Size())
	if left != nil {
		for i := record.ColumnID(0); i < lsize; i++ {
			out.SetValue(i, left.GetValue(i))
		}
	}
	if right != nil {
		rsize := record.ColumnID(o.inputSchemas[1].Size())
		for i := record.ColumnID(0); i < rsize; i++ {
			if i == o.rightCol {
				continue
			}
			j := lsize + i
			if i > o.rightCol {
				j--
			}
			out.SetValue(j, right.GetValue(i))
		}
	}
}

// ComputeOutputSchema concatenates the parent schemas, dropping the right
// join column. Key columns merge both sides' keys; when the dropped right
// join column was part of the right key, the left join column substitutes
// for it.
func (o *EquiJoinOperator) ComputeOutputSchema() {
	if len(o.inputSchemas) < 2 {
		return
	}
	lschema, rschema := o.inputSchemas[0], o.inputSchemas[1]
	lsize := record.ColumnID(lschema.Size())

	names := append([]string(nil), lschema.ColumnNames()...)
	types := append([]record.Type(nil), lschema.ColumnTypes()...)
	for i := record.ColumnID(0); i < record.ColumnID(rschema.Size()); i++ {
		if i == o.rightCol {
			continue
		}
		names = append(names, rschema.NameOf(i))
		types = append(types, rschema.TypeOf(i))
	}

	keys := append([]record.ColumnID(nil), lschema.Keys()...)
	for _, k := range rschema.Keys() {
		switch {
		case k == o.rightCol:
			keys = insertKeyOrdered(keys, o.leftCol)
		case k < o.rightCol:
			keys = append(keys, lsize+k)
		default:
			keys = append(keys, lsize+k-1)
		}
	}
	o.setOutputSchema(record.NewSchema(names, types, keys))
}

// insertKeyOrdered inserts a column id into a sorted key list, keeping it
// sorted and unique.
func insertKeyOrdered(keys []record.ColumnID, v record.ColumnID) []record.ColumnID {
	for i, k := range keys {
		if k == v {
			return keys
		}
		if k > v {
			keys = append(keys, 0)
			copy(keys[i+1:], keys[i:])
			keys[i] = v
			return keys
		}
	}
	return append(keys, v)
}

// Clone copies the parameters with fresh, empty join tables.
func (o *EquiJoinOperator) Clone() Operator {
	return NewEquiJoin(o.leftCol, o.rightCol, o.mode)
}

// SizeInMemory reports the number of records buffered in both join tables.
func (o *EquiJoinOperator) SizeInMemory() uint64 {
	return o.leftTable.SizeInMemory() + o.rightTable.SizeInMemory()
}

// DebugString describes the operator.
func (o *EquiJoinOperator) DebugString() string {
	return fmt.Sprintf("%s %s on left[%d]=right[%d]",
		o.Node.DebugString(), o.mode, o.leftCol, o.rightCol)
}
