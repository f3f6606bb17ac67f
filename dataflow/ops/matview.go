package ops

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"

	"github.com/brownsys/k9db/dataflow/record"
)

// MatViewVariant selects how a materialized view organizes its contents.
type MatViewVariant uint8

const (
	// UnorderedView keeps each group as an insertion-ordered bag.
	UnorderedView MatViewVariant = iota
	// KeyOrderedView additionally indexes group keys in a btree so All
	// iterates in key order.
	KeyOrderedView
	// RecordOrderedView keeps each group sorted by the view's sort columns
	// and applies limit/offset on lookup.
	RecordOrderedView
)

func (v MatViewVariant) String() string {
	switch v {
	case UnorderedView:
		return "UNORDERED"
	case KeyOrderedView:
		return "KEY_ORDERED"
	case RecordOrderedView:
		return "RECORD_ORDERED"
	default:
		return fmt.Sprintf("VARIANT(%d)", uint8(v))
	}
}

// MatViewOperator is the sink of a flow: it indexes the flow's output records
// by a key so clients can read the view. Positive records insert into their
// key's collection; negative records remove the first equal record. An
// unmatched negative is ignored with a warning (the view simply has nothing
// to undo).
//
// Reads serialize against the owning worker through a read-write lock: a
// reader observes a batch entirely or not at all, but does not wait for
// batches still queued in channels.
type MatViewOperator struct {
	Node
	variant  MatViewVariant
	keyCols  []record.ColumnID
	sortCols []record.ColumnID
	limit    int
	offset   int

	mu       sync.RWMutex
	contents *GroupedData
	keyIndex *btree.BTreeG[record.Key]
}

// NewMatView creates an unordered materialized view keyed on keyCols.
func NewMatView(keyCols []record.ColumnID) *MatViewOperator {
	return newMatView(UnorderedView, keyCols, nil, 0, 0)
}

// NewKeyOrderedMatView creates a view whose All iterates in key order.
func NewKeyOrderedMatView(keyCols []record.ColumnID) *MatViewOperator {
	return newMatView(KeyOrderedView, keyCols, nil, 0, 0)
}

// NewRecordOrderedMatView creates a view whose per-key collections are kept
// sorted by sortCols; limit and offset (0 = unset) window each lookup.
func NewRecordOrderedMatView(keyCols, sortCols []record.ColumnID, limit, offset int) *MatViewOperator {
	return newMatView(RecordOrderedView, keyCols, sortCols, limit, offset)
}

func newMatView(variant MatViewVariant, keyCols, sortCols []record.ColumnID, limit, offset int) *MatViewOperator {
	if len(keyCols) == 0 {
		logrus.Fatalf("materialized view requires at least one key column")
	}
	op := &MatViewOperator{
		Node:     NewNode(MatView),
		variant:  variant,
		keyCols:  append([]record.ColumnID(nil), keyCols...),
		sortCols: append([]record.ColumnID(nil), sortCols...),
		limit:    limit,
		offset:   offset,
	}
	switch variant {
	case RecordOrderedView:
		op.contents = NewSortedGroupedData(op.recordLess)
	default:
		op.contents = NewGroupedData()
	}
	if variant == KeyOrderedView {
		op.keyIndex = btree.NewG(8, record.Key.Less)
	}
	return op
}

// recordLess orders records by the view's sort columns.
func (o *MatViewOperator) recordLess(a, b *record.Record) bool {
	for _, c := range o.sortCols {
		av, bv := a.GetValue(c), b.GetValue(c)
		if av.Equal(bv) {
			continue
		}
		return av.Less(bv)
	}
	return false
}

// KeyColumns returns the view's key columns.
func (o *MatViewOperator) KeyColumns() []record.ColumnID { return o.keyCols }

// Variant returns the view's organization.
func (o *MatViewOperator) Variant() MatViewVariant { return o.variant }

// Process absorbs a batch into the view. Materialized views are leaves, so
// the returned batch is always empty.
func (o *MatViewOperator) Process(_ record.NodeIndex, records []*record.Record) []*record.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range records {
		key := r.Key(o.keyCols)
		if r.IsPositive() {
			o.contents.Insert(key, r)
			if o.keyIndex != nil {
				o.keyIndex.ReplaceOrInsert(key)
			}
		} else {
			if !o.contents.Remove(key, r) {
				logrus.Warnf("matview %d: ignoring negative record %s with no matching row", o.index, r)
				continue
			}
			if o.keyIndex != nil && !o.contents.Contains(key) {
				o.keyIndex.Delete(key)
			}
		}
	}
	return nil
}

// Lookup returns copies of the records stored under the key, with the
// record-ordered variant's limit/offset window applied.
func (o *MatViewOperator) Lookup(key record.Key) []*record.Record {
	o.mu.RLock()
	defer o.mu.RUnlock()
	records := o.contents.Get(key)
	if o.variant == RecordOrderedView {
		lo := o.offset
		if lo > len(records) {
			lo = len(records)
		}
		hi := len(records)
		if o.limit > 0 && lo+o.limit < hi {
			hi = lo + o.limit
		}
		records = records[lo:hi]
	}
	out := make([]*record.Record, 0, len(records))
	for _, r := range records {
		out = append(out, r.Copy())
	}
	return out
}

// Contains reports whether the key has at least one record.
func (o *MatViewOperator) Contains(key record.Key) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.contents.Contains(key)
}

// Count returns the total number of records in the view.
func (o *MatViewOperator) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.contents.Count()
}

// All returns copies of all records. The key-ordered variant iterates groups
// in ascending key order; the other variants iterate in unspecified order.
func (o *MatViewOperator) All() []*record.Record {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*record.Record, 0, o.contents.Count())
	if o.keyIndex != nil {
		o.keyIndex.Ascend(func(key record.Key) bool {
			for _, r := range o.contents.Get(key) {
				out = append(out, r.Copy())
			}
			return true
		})
		return out
	}
	o.contents.Each(func(_ record.Key, records []*record.Record) bool {
		for _, r := range records {
			out = append(out, r.Copy())
		}
		return true
	})
	return out
}

// Keys returns all keys currently present, in ascending order for the
// key-ordered variant.
func (o *MatViewOperator) Keys() []record.Key {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]record.Key, 0, o.contents.GroupCount())
	if o.keyIndex != nil {
		o.keyIndex.Ascend(func(key record.Key) bool {
			out = append(out, key)
			return true
		})
		return out
	}
	o.contents.Each(func(key record.Key, _ []*record.Record) bool {
		out = append(out, key)
		return true
	})
	return out
}

// ComputeOutputSchema adopts the parent's schema; the view stores records
// as they arrive.
func (o *MatViewOperator) ComputeOutputSchema() {
	if len(o.inputSchemas) == 0 {
		return
	}
	o.setOutputSchema(o.inputSchemas[0])
}

// Clone copies the parameters with fresh, empty contents.
func (o *MatViewOperator) Clone() Operator {
	return newMatView(o.variant, o.keyCols, o.sortCols, o.limit, o.offset)
}

// SizeInMemory reports the number of records held by the view.
func (o *MatViewOperator) SizeInMemory() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.contents.SizeInMemory()
}

// DebugString describes the operator.
func (o *MatViewOperator) DebugString() string {
	return fmt.Sprintf("%s %s key=%v", o.Node.DebugString(), o.variant, o.keyCols)
}
