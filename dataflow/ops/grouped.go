package ops

import (
	"sort"

	"github.com/brownsys/k9db/dataflow/record"
)

// GroupedData is a keyed bag of records: the state container behind
// materialized views and the two sides of an equi-join. Groups are indexed
// by the injective byte encoding of their key; the key itself is retained
// for iteration and ordering.
//
// An optional record comparator turns each group into a sorted collection
// (used by record-ordered materialized views); without one, groups keep
// insertion order.
type GroupedData struct {
	groups map[string]*group
	less   func(a, b *record.Record) bool
	count  int
}

type group struct {
	key     record.Key
	records []*record.Record
}

// NewGroupedData returns an empty, insertion-ordered container.
func NewGroupedData() *GroupedData {
	return &GroupedData{groups: make(map[string]*group)}
}

// NewSortedGroupedData returns an empty container whose groups stay sorted
// under the given comparator.
func NewSortedGroupedData(less func(a, b *record.Record) bool) *GroupedData {
	return &GroupedData{groups: make(map[string]*group), less: less}
}

// Get returns the records of a group, nil when the key is absent. The
// returned slice is owned by the container and must not be mutated.
func (g *GroupedData) Get(key record.Key) []*record.Record {
	grp, ok := g.groups[key.Encode()]
	if !ok {
		return nil
	}
	return grp.records
}

// Contains reports whether the key has at least one record.
func (g *GroupedData) Contains(key record.Key) bool {
	_, ok := g.groups[key.Encode()]
	return ok
}

// Count returns the total number of records across all groups.
func (g *GroupedData) Count() int { return g.count }

// GroupCount returns the number of non-empty groups.
func (g *GroupedData) GroupCount() int { return len(g.groups) }

// Insert stores a copy of the record under the key.
func (g *GroupedData) Insert(key record.Key, r *record.Record) {
	enc := key.Encode()
	grp, ok := g.groups[enc]
	if !ok {
		grp = &group{key: key}
		g.groups[enc] = grp
	}
	cp := r.Copy()
	if g.less == nil {
		grp.records = append(grp.records, cp)
	} else {
		at := sort.Search(len(grp.records), func(i int) bool {
			return g.less(cp, grp.records[i])
		})
		grp.records = append(grp.records, nil)
		copy(grp.records[at+1:], grp.records[at:])
		grp.records[at] = cp
	}
	g.count++
}

// Remove deletes the first record in the group equal to r. It reports false
// when the key is absent or no equal record exists; empty groups are dropped
// so Contains stays accurate.
func (g *GroupedData) Remove(key record.Key, r *record.Record) bool {
	enc := key.Encode()
	grp, ok := g.groups[enc]
	if !ok {
		return false
	}
	for i, existing := range grp.records {
		if existing.Equal(r) {
			grp.records = append(grp.records[:i], grp.records[i+1:]...)
			g.count--
			if len(grp.records) == 0 {
				delete(g.groups, enc)
			}
			return true
		}
	}
	return false
}

// Each iterates all groups in unspecified order until fn returns false.
func (g *GroupedData) Each(fn func(key record.Key, records []*record.Record) bool) {
	for _, grp := range g.groups {
		if !fn(grp.key, grp.records) {
			return
		}
	}
}

// SizeInMemory approximates the container's footprint as its record count;
// used by the engine's memory accounting.
func (g *GroupedData) SizeInMemory() uint64 {
	return uint64(g.count)
}
