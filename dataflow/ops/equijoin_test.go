package ops

import (
	"testing"

	"github.com/brownsys/k9db/dataflow/record"
)

func joinSchemas() (*record.Schema, *record.Schema) {
	left := record.NewSchema(
		[]string{"id", "cat"},
		[]record.Type{record.UInt, record.Int},
		[]record.ColumnID{0},
	)
	right := record.NewSchema(
		[]string{"rid", "rcat", "cnt"},
		[]record.Type{record.UInt, record.Int, record.Int},
		[]record.ColumnID{0},
	)
	return left, right
}

func innerJoin(t *testing.T) (*EquiJoinOperator, *record.Schema, *record.Schema) {
	t.Helper()
	left, right := joinSchemas()
	j := NewEquiJoin(1, 1, InnerJoin)
	wireBinary(j, left, right)
	return j, left, right
}

// TestEquiJoinOutputSchema checks concatenation with the right join column
// dropped and keys merged.
func TestEquiJoinOutputSchema(t *testing.T) {
	j, _, _ := innerJoin(t)
	out := j.OutputSchema()
	want := []string{"id", "cat", "rid", "cnt"}
	if out.Size() != len(want) {
		t.Fatalf("unexpected schema %s", out)
	}
	for i, name := range want {
		if out.NameOf(record.ColumnID(i)) != name {
			t.Fatalf("column %d: expected %q in %s", i, name, out)
		}
	}
	// Left key 0 plus right key 0 shifted past the left schema.
	if len(out.Keys()) != 2 || out.Keys()[0] != 0 || out.Keys()[1] != 2 {
		t.Errorf("unexpected keys %v", out.Keys())
	}
}

// TestEquiJoinInner probes both sides of an inner join on one operator:
// left rows match right rows per category.
func TestEquiJoinInner(t *testing.T) {
	j, left, right := innerJoin(t)

	// Right side first: (10,0,5) (11,1,5).
	out := j.Process(1, []*record.Record{
		row(right, true, u(10), i64(0), i64(5)),
		row(right, true, u(11), i64(1), i64(5)),
	})
	if len(out) != 0 {
		t.Fatalf("no left rows yet, expected no output, got %v", out)
	}

	// Left side: (0,0) (1,1) (2,2) (3,0).
	out = j.Process(0, []*record.Record{
		row(left, true, u(0), i64(0)),
		row(left, true, u(1), i64(1)),
		row(left, true, u(2), i64(2)),
		row(left, true, u(3), i64(0)),
	})
	if len(out) != 3 {
		t.Fatalf("expected 3 joined rows, got %d", len(out))
	}
	for _, r := range out {
		if !r.IsPositive() {
			t.Errorf("expected positives, got %s", r)
		}
		if r.GetInt(3) != 5 {
			t.Errorf("joined row must carry right cnt: %s", r)
		}
	}
}

// TestEquiJoinUpdateEmitsPairs checks that updating a joined row (delete
// then insert) retracts exactly the stale joins and emits the fresh ones.
func TestEquiJoinUpdateEmitsPairs(t *testing.T) {
	j, left, right := innerJoin(t)

	j.Process(1, []*record.Record{
		row(right, true, u(10), i64(0), i64(5)),
		row(right, true, u(11), i64(1), i64(7)),
	})
	j.Process(0, []*record.Record{row(left, true, u(1), i64(0))})

	// Move left row 1 from cat 0 to cat 1.
	out := j.Process(0, []*record.Record{
		row(left, false, u(1), i64(0)),
		row(left, true, u(1), i64(1)),
	})
	if signs(out) != "-+" {
		t.Fatalf("expected -+ for the update, got %q", signs(out))
	}
	if out[0].GetUInt(2) != 10 || out[1].GetUInt(2) != 11 {
		t.Errorf("expected retraction of the cat-0 join and emission of the cat-1 join: %s %s",
			out[0], out[1])
	}
}

// TestEquiJoinNegativeFromRight checks negative right rows retract all
// previously joined outputs.
func TestEquiJoinNegativeFromRight(t *testing.T) {
	j, left, right := innerJoin(t)
	j.Process(0, []*record.Record{
		row(left, true, u(0), i64(0)),
		row(left, true, u(3), i64(0)),
	})
	j.Process(1, []*record.Record{row(right, true, u(10), i64(0), i64(5))})

	out := j.Process(1, []*record.Record{row(right, false, u(10), i64(0), i64(5))})
	if signs(out) != "--" {
		t.Fatalf("expected two retractions, got %q", signs(out))
	}
}

// TestEquiJoinLeftPadding checks LEFT mode pads unmatched left rows and
// compensates when a match appears and disappears.
func TestEquiJoinLeftPadding(t *testing.T) {
	left, right := joinSchemas()
	j := NewEquiJoin(1, 1, LeftJoin)
	wireBinary(j, left, right)

	// Unmatched left row: padded emission.
	out := j.Process(0, []*record.Record{row(left, true, u(1), i64(0))})
	if len(out) != 1 || !out[0].IsPositive() {
		t.Fatalf("expected one padded positive, got %v", out)
	}
	if !out[0].IsNull(2) || !out[0].IsNull(3) {
		t.Fatalf("right side must be NULL-padded: %s", out[0])
	}
	if out[0].GetInt(1) != 0 {
		t.Errorf("pad must keep left values: %s", out[0])
	}

	// Matching right row arrives: retract the pad, emit the join.
	out = j.Process(1, []*record.Record{row(right, true, u(10), i64(0), i64(5))})
	if signs(out) != "-+" {
		t.Fatalf("expected pad retraction then join, got %q", signs(out))
	}
	if !out[0].IsNull(3) || out[1].GetInt(3) != 5 {
		t.Fatalf("expected padded negative then joined positive: %s %s", out[0], out[1])
	}

	// Match disappears: retract the join, restore the pad.
	out = j.Process(1, []*record.Record{row(right, false, u(10), i64(0), i64(5))})
	if signs(out) != "-+" {
		t.Fatalf("expected join retraction then pad restore, got %q", signs(out))
	}
	if out[0].GetInt(3) != 5 || !out[1].IsNull(3) {
		t.Fatalf("expected joined negative then padded positive: %s %s", out[0], out[1])
	}
}

// TestEquiJoinRightPadding checks RIGHT mode pads unmatched right rows with
// the join value preserved in the merged column.
func TestEquiJoinRightPadding(t *testing.T) {
	left, right := joinSchemas()
	j := NewEquiJoin(1, 1, RightJoin)
	wireBinary(j, left, right)

	out := j.Process(1, []*record.Record{row(right, true, u(10), i64(3), i64(5))})
	if len(out) != 1 || !out[0].IsPositive() {
		t.Fatalf("expected one padded positive, got %v", out)
	}
	if !out[0].IsNull(0) {
		t.Errorf("left id must be NULL-padded: %s", out[0])
	}
	if out[0].GetInt(1) != 3 {
		t.Errorf("merged join column must carry the right join value: %s", out[0])
	}
	if out[0].GetUInt(2) != 10 || out[0].GetInt(3) != 5 {
		t.Errorf("right values must be preserved: %s", out[0])
	}

	// Matching left row: retract the pad, emit the join.
	out = j.Process(0, []*record.Record{row(left, true, u(7), i64(3))})
	if signs(out) != "-+" {
		t.Fatalf("expected pad retraction then join, got %q", signs(out))
	}
}

// TestEquiJoinCloneFreshState checks clones share parameters, not tables.
func TestEquiJoinCloneFreshState(t *testing.T) {
	j, left, _ := innerJoin(t)
	j.Process(0, []*record.Record{row(left, true, u(0), i64(0))})
	clone := j.Clone().(*EquiJoinOperator)
	if clone.SizeInMemory() != 0 {
		t.Errorf("clone must not inherit join tables")
	}
	if clone.Mode() != InnerJoin || clone.LeftColumn() != 1 || clone.RightColumn() != 1 {
		t.Errorf("clone must keep parameters")
	}
}
