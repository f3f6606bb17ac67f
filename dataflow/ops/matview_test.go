package ops

import (
	"testing"

	"github.com/brownsys/k9db/dataflow/record"
)

func keyedView(t *testing.T) (*MatViewOperator, *record.Schema) {
	t.Helper()
	schema := schemaIDName()
	view := NewMatView([]record.ColumnID{0})
	wireUnary(view, schema)
	return view, schema
}

// TestMatViewInsertLookup checks basic absorption and lookup.
func TestMatViewInsertLookup(t *testing.T) {
	view, schema := keyedView(t)
	out := view.Process(0, []*record.Record{
		row(schema, true, u(1), txt("a")),
		row(schema, true, u(2), txt("b")),
	})
	if out != nil {
		t.Fatalf("matview is a sink, got output %v", out)
	}
	if view.Count() != 2 {
		t.Fatalf("expected 2 records, got %d", view.Count())
	}

	got := view.Lookup(record.KeyOf(u(1)))
	if len(got) != 1 || got[0].GetText(1) != "a" {
		t.Fatalf("wrong lookup result: %v", got)
	}
	if !view.Contains(record.KeyOf(u(2))) {
		t.Errorf("expected key 2 present")
	}
	if view.Contains(record.KeyOf(u(3))) {
		t.Errorf("expected key 3 absent")
	}
}

// TestMatViewNegativeRemoves checks an insert followed by its delete leaves
// the view empty.
func TestMatViewNegativeRemoves(t *testing.T) {
	view, schema := keyedView(t)
	view.Process(0, []*record.Record{row(schema, true, u(1), txt("a"))})
	view.Process(0, []*record.Record{row(schema, false, u(1), txt("a"))})
	if view.Count() != 0 {
		t.Fatalf("expected empty view, got %d", view.Count())
	}
	if view.Contains(record.KeyOf(u(1))) {
		t.Errorf("key must disappear with its last record")
	}
}

// TestMatViewUnmatchedDeleteIgnored pins the policy: a delete with no
// matching row is ignored rather than fatal.
func TestMatViewUnmatchedDeleteIgnored(t *testing.T) {
	view, schema := keyedView(t)
	view.Process(0, []*record.Record{row(schema, true, u(1), txt("a"))})
	view.Process(0, []*record.Record{row(schema, false, u(1), txt("zzz"))})
	if view.Count() != 1 {
		t.Fatalf("unmatched delete must not remove anything, got %d", view.Count())
	}
}

// TestMatViewDuplicateInserts checks duplicates accumulate and deletes
// remove one instance at a time.
func TestMatViewDuplicateInserts(t *testing.T) {
	view, schema := keyedView(t)
	r := row(schema, true, u(1), txt("a"))
	view.Process(0, []*record.Record{r.Copy(), r.Copy(), r.Copy()})
	if view.Count() != 3 {
		t.Fatalf("expected 3 copies, got %d", view.Count())
	}
	del := r.Copy()
	del.SetPositive(false)
	view.Process(0, []*record.Record{del})
	if view.Count() != 2 {
		t.Fatalf("expected 2 copies after one delete, got %d", view.Count())
	}
}

// TestMatViewKeyOrdered checks All iterates in ascending key order.
func TestMatViewKeyOrdered(t *testing.T) {
	schema := schemaIDName()
	view := NewKeyOrderedMatView([]record.ColumnID{0})
	wireUnary(view, schema)

	view.Process(0, []*record.Record{
		row(schema, true, u(5), txt("e")),
		row(schema, true, u(1), txt("a")),
		row(schema, true, u(3), txt("c")),
	})
	all := view.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	for i, want := range []uint64{1, 3, 5} {
		if all[i].GetUInt(0) != want {
			t.Fatalf("position %d: expected id %d, got %d", i, want, all[i].GetUInt(0))
		}
	}

	// Removing the last record of a key drops it from the ordered index.
	view.Process(0, []*record.Record{row(schema, false, u(3), txt("c"))})
	keys := view.Keys()
	if len(keys) != 2 || keys[0].Value(0).GetUInt() != 1 || keys[1].Value(0).GetUInt() != 5 {
		t.Fatalf("unexpected keys after delete: %v", keys)
	}
}

// TestMatViewRecordOrdered checks per-key sorting plus limit/offset
// windowing on lookup.
func TestMatViewRecordOrdered(t *testing.T) {
	schema := schemaIDCatVal()
	// Keyed on cat, sorted by v: the insertion order 30,10,20,40 comes out
	// ascending because sort columns order lexicographically.
	view := NewRecordOrderedMatView([]record.ColumnID{1}, []record.ColumnID{2}, 2, 1)
	wireUnary(view, schema)

	view.Process(0, []*record.Record{
		row(schema, true, u(1), i64(0), i64(30)),
		row(schema, true, u(2), i64(0), i64(10)),
		row(schema, true, u(3), i64(0), i64(20)),
		row(schema, true, u(4), i64(0), i64(40)),
	})

	got := view.Lookup(record.KeyOf(i64(0)))
	// Sorted by v: 10,20,30,40; offset 1, limit 2 -> 20,30.
	if len(got) != 2 || got[0].GetInt(2) != 20 || got[1].GetInt(2) != 30 {
		t.Fatalf("unexpected window: %v", got)
	}
}

// TestMatViewLookupCopies checks readers cannot mutate view state.
func TestMatViewLookupCopies(t *testing.T) {
	view, schema := keyedView(t)
	view.Process(0, []*record.Record{row(schema, true, u(1), txt("a"))})
	got := view.Lookup(record.KeyOf(u(1)))
	got[0].SetText(1, "mutated")
	again := view.Lookup(record.KeyOf(u(1)))
	if again[0].GetText(1) != "a" {
		t.Errorf("lookup must return copies")
	}
}

// TestMatViewCloneFreshContents checks clones keep parameters, not data.
func TestMatViewCloneFreshContents(t *testing.T) {
	schema := schemaIDCatVal()
	view := NewRecordOrderedMatView([]record.ColumnID{1}, []record.ColumnID{2}, 5, 0)
	wireUnary(view, schema)
	view.Process(0, []*record.Record{row(schema, true, u(1), i64(0), i64(1))})

	clone := view.Clone().(*MatViewOperator)
	if clone.Count() != 0 {
		t.Errorf("clone must start empty")
	}
	if clone.Variant() != RecordOrderedView {
		t.Errorf("clone must keep its variant")
	}
}
