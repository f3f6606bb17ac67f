package ops

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brownsys/k9db/dataflow/record"
)

// AggregateFunction enumerates the supported aggregates.
type AggregateFunction uint8

const (
	Count AggregateFunction = iota
	Sum
)

func (f AggregateFunction) String() string {
	if f == Count {
		return "COUNT"
	}
	return "SUM"
}

// AggregateOperator maintains one running aggregate per group key. A batch is
// first netted per key (positives add, negatives subtract); only keys whose
// value actually changed emit updates: a negative for the old (key, value)
// followed by a positive for the new one, or just the positive for a freshly
// created key. A COUNT that drops to zero removes the key and emits only the
// negative.
//
// A negative record for a key with no state is fatal: the aggregate map has
// diverged from the base table, which breaks incremental maintenance.
type AggregateOperator struct {
	Node
	groupCols []record.ColumnID
	fn        AggregateFunction
	aggCol    record.ColumnID
	aggName   string

	state map[string]*aggGroup
}

type aggGroup struct {
	key   record.Key
	value record.Value
}

// NewAggregate creates an aggregate over the given group columns. aggCol is
// ignored for COUNT. aggName overrides the output aggregate column name; when
// empty, COUNT names it "count" and SUM inherits the aggregated column name.
func NewAggregate(groupCols []record.ColumnID, fn AggregateFunction, aggCol record.ColumnID, aggName string) *AggregateOperator {
	return &AggregateOperator{
		Node:      NewNode(Aggregate),
		groupCols: append([]record.ColumnID(nil), groupCols...),
		fn:        fn,
		aggCol:    aggCol,
		aggName:   aggName,
		state:     make(map[string]*aggGroup),
	}
}

// GroupColumns returns the grouping columns in the input schema.
func (o *AggregateOperator) GroupColumns() []record.ColumnID { return o.groupCols }

// OutPartitionColumns returns the output positions of the group columns,
// which is what downstream partitioning keys on: the group columns occupy
// the first output positions in order.
func (o *AggregateOperator) OutPartitionColumns() []record.ColumnID {
	cols := make([]record.ColumnID, len(o.groupCols))
	for i := range cols {
		cols[i] = record.ColumnID(i)
	}
	return cols
}

// delta tracks the first observed state of a key within one batch so the
// retraction pairs can be computed after the whole batch is applied.
type delta struct {
	created bool
	old     record.Value
}

// Process nets the batch per key and emits retraction/update pairs.
func (o *AggregateOperator) Process(_ record.NodeIndex, records []*record.Record) []*record.Record {
	changed := make(map[string]*delta)
	var order []string

	for _, r := range records {
		key := r.Key(o.groupCols)
		enc := key.Encode()
		grp, exists := o.state[enc]
		if !r.IsPositive() && !exists {
			logrus.Fatalf("aggregate %d: negative record %s for key %s with no state",
				o.index, r, key)
		}
		if _, tracked := changed[enc]; !tracked {
			d := &delta{created: !exists}
			if exists {
				d.old = grp.value
			}
			changed[enc] = d
			order = append(order, enc)
		}
		if !exists {
			grp = &aggGroup{key: key, value: o.initial(r)}
			o.state[enc] = grp
		} else {
			grp.value = o.apply(grp.value, r)
		}
	}

	var out []*record.Record
	for _, enc := range order {
		d := changed[enc]
		grp := o.state[enc]
		if d.created {
			// A key created and fully cancelled within the batch emits
			// nothing; same for SUM netting out to its starting point.
			if isZero(grp.value) && o.fn == Count {
				delete(o.state, enc)
				continue
			}
			if o.fn == Sum && isZero(grp.value) {
				delete(o.state, enc)
				continue
			}
			out = append(out, o.emit(grp.key, grp.value, true, records))
			continue
		}
		if d.old.Equal(grp.value) {
			// Net zero change within the batch.
			continue
		}
		out = append(out, o.emit(grp.key, d.old, false, records))
		if o.fn == Count && isZero(grp.value) {
			delete(o.state, enc)
			continue
		}
		out = append(out, o.emit(grp.key, grp.value, true, records))
	}
	return out
}

// initial returns the aggregate value for a key's first record.
func (o *AggregateOperator) initial(r *record.Record) record.Value {
	switch o.fn {
	case Count:
		return record.NewUInt(1)
	default:
		return o.contribution(r)
	}
}

// apply folds one record into an existing aggregate value.
func (o *AggregateOperator) apply(current record.Value, r *record.Record) record.Value {
	sign := int64(1)
	if !r.IsPositive() {
		sign = -1
	}
	switch o.fn {
	case Count:
		return record.NewUInt(current.GetUInt() + uint64(sign))
	default:
		c := o.contribution(r)
		switch current.Type() {
		case record.UInt:
			return record.NewUInt(current.GetUInt() + uint64(sign)*c.GetUInt())
		case record.Int:
			return record.NewInt(current.GetInt() + sign*c.GetInt())
		default:
			logrus.Fatalf("aggregate %d: unsupported SUM type %s", o.index, current.Type())
			return record.Value{}
		}
	}
}

// contribution reads the aggregated column of a record; NULL contributes the
// type's zero.
func (o *AggregateOperator) contribution(r *record.Record) record.Value {
	v := r.GetValue(o.aggCol)
	if v.IsNull() {
		switch v.Type() {
		case record.UInt:
			return record.NewUInt(0)
		case record.Int:
			return record.NewInt(0)
		}
	}
	return v
}

func isZero(v record.Value) bool {
	switch v.Type() {
	case record.UInt:
		return !v.IsNull() && v.GetUInt() == 0
	case record.Int:
		return !v.IsNull() && v.GetInt() == 0
	default:
		return false
	}
}

// emit builds an output record: group values followed by the aggregate.
// The timestamp carries the batch's maximum input timestamp.
func (o *AggregateOperator) emit(key record.Key, value record.Value, positive bool, batch []*record.Record) *record.Record {
	out := record.NewRecord(o.outputSchema, positive)
	for i := 0; i < key.Size(); i++ {
		out.SetValue(record.ColumnID(i), key.Value(i))
	}
	out.SetValue(record.ColumnID(key.Size()), value)
	var ts int64
	for _, r := range batch {
		if r.Timestamp() > ts {
			ts = r.Timestamp()
		}
	}
	out.SetTimestamp(ts)
	return out
}

// ComputeOutputSchema emits the group columns in order followed by one
// aggregate column: UINT for COUNT, the aggregated column's type for SUM.
// Key columns are the group columns' output positions.
func (o *AggregateOperator) ComputeOutputSchema() {
	if len(o.inputSchemas) == 0 {
		return
	}
	in := o.inputSchemas[0]
	names := make([]string, 0, len(o.groupCols)+1)
	types := make([]record.Type, 0, len(o.groupCols)+1)
	keys := make([]record.ColumnID, 0, len(o.groupCols))
	for i, c := range o.groupCols {
		names = append(names, in.NameOf(c))
		types = append(types, in.TypeOf(c))
		keys = append(keys, record.ColumnID(i))
	}
	name := o.aggName
	if name == "" {
		if o.fn == Count {
			name = "count"
		} else {
			name = in.NameOf(o.aggCol)
		}
	}
	if o.fn == Count {
		types = append(types, record.UInt)
	} else {
		types = append(types, in.TypeOf(o.aggCol))
	}
	names = append(names, name)
	o.setOutputSchema(record.NewSchema(names, types, keys))
}

// Clone copies the parameters with a fresh, empty aggregate map.
func (o *AggregateOperator) Clone() Operator {
	return NewAggregate(o.groupCols, o.fn, o.aggCol, o.aggName)
}

// SizeInMemory reports the number of keys in the aggregate map.
func (o *AggregateOperator) SizeInMemory() uint64 {
	return uint64(len(o.state))
}

// DebugString describes the operator.
func (o *AggregateOperator) DebugString() string {
	if o.fn == Count {
		return fmt.Sprintf("%s COUNT group=%v", o.Node.DebugString(), o.groupCols)
	}
	return fmt.Sprintf("%s SUM(col%d) group=%v", o.Node.DebugString(), o.aggCol, o.groupCols)
}
