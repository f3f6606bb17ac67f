package ops

import (
	"testing"

	"github.com/brownsys/k9db/dataflow/record"
)

func sumByCat(t *testing.T) (*AggregateOperator, *record.Schema) {
	t.Helper()
	schema := schemaIDCatVal()
	agg := NewAggregate([]record.ColumnID{1}, Sum, 2, "")
	wireUnary(agg, schema)
	return agg, schema
}

// TestAggregateOutputSchema checks group columns followed by the aggregate.
func TestAggregateOutputSchema(t *testing.T) {
	agg, _ := sumByCat(t)
	out := agg.OutputSchema()
	if out.Size() != 2 || out.NameOf(0) != "cat" || out.NameOf(1) != "v" {
		t.Fatalf("unexpected schema %s", out)
	}
	if out.TypeOf(1) != record.Int {
		t.Errorf("SUM output type must follow the aggregated column")
	}
	if len(out.Keys()) != 1 || out.Keys()[0] != 0 {
		t.Errorf("expected group columns as keys, got %v", out.Keys())
	}

	count := NewAggregate([]record.ColumnID{1}, Count, 0, "")
	wireUnary(count, schemaIDCatVal())
	if count.OutputSchema().TypeOf(1) != record.UInt {
		t.Errorf("COUNT output type must be UINT")
	}
}

// TestAggregateSumScenario nets deltas across batches: inserts
// (1,1,5)(2,1,3)(3,2,7) then delete (2,1,3); SUM(v) GROUP BY cat must emit
// (1,8)+ on the first batch and (1,8)- (1,5)+ on the second.
func TestAggregateSumScenario(t *testing.T) {
	agg, schema := sumByCat(t)

	out := agg.Process(0, []*record.Record{
		row(schema, true, u(1), i64(1), i64(5)),
		row(schema, true, u(2), i64(1), i64(3)),
		row(schema, true, u(3), i64(2), i64(7)),
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 emissions, got %d: %v", len(out), out)
	}
	// Each new key emits exactly one positive with the netted value.
	got := map[int64]int64{}
	for _, r := range out {
		if !r.IsPositive() {
			t.Errorf("fresh keys must emit positives only, got %s", r)
		}
		got[r.GetInt(0)] = r.GetInt(1)
	}
	if got[1] != 8 || got[2] != 7 {
		t.Fatalf("wrong aggregates: %v", got)
	}

	out = agg.Process(0, []*record.Record{
		row(schema, false, u(2), i64(1), i64(3)),
	})
	if signs(out) != "-+" {
		t.Fatalf("expected -+ update pair, got %q", signs(out))
	}
	if out[0].GetInt(1) != 8 || out[1].GetInt(1) != 5 {
		t.Fatalf("expected (1,8)- then (1,5)+, got %s %s", out[0], out[1])
	}
}

// TestAggregateBatchNetting checks a key created and cancelled within one
// batch emits nothing.
func TestAggregateBatchNetting(t *testing.T) {
	agg, schema := sumByCat(t)
	out := agg.Process(0, []*record.Record{
		row(schema, true, u(1), i64(9), i64(4)),
		row(schema, false, u(1), i64(9), i64(4)),
	})
	if len(out) != 0 {
		t.Fatalf("expected no emissions for a net-zero batch, got %v", out)
	}
	if agg.SizeInMemory() != 0 {
		t.Errorf("cancelled key must not linger in state")
	}
}

// TestAggregateNetZeroExistingKey checks an existing key whose batch nets to
// no change emits nothing.
func TestAggregateNetZeroExistingKey(t *testing.T) {
	agg, schema := sumByCat(t)
	agg.Process(0, []*record.Record{row(schema, true, u(1), i64(1), i64(5))})

	out := agg.Process(0, []*record.Record{
		row(schema, true, u(2), i64(1), i64(3)),
		row(schema, false, u(2), i64(1), i64(3)),
	})
	if len(out) != 0 {
		t.Fatalf("expected no emissions, got %v", out)
	}
}

// TestAggregateCountToZero checks a COUNT dropping to zero deletes the key
// and emits only the retraction.
func TestAggregateCountToZero(t *testing.T) {
	schema := schemaIDCatVal()
	agg := NewAggregate([]record.ColumnID{1}, Count, 0, "")
	wireUnary(agg, schema)

	agg.Process(0, []*record.Record{row(schema, true, u(1), i64(3), i64(0))})
	out := agg.Process(0, []*record.Record{row(schema, false, u(1), i64(3), i64(0))})
	if signs(out) != "-" {
		t.Fatalf("expected a lone negative, got %q", signs(out))
	}
	if out[0].GetUInt(1) != 1 {
		t.Errorf("retraction must carry the old count, got %s", out[0])
	}
	if agg.SizeInMemory() != 0 {
		t.Errorf("zero-count key must leave state")
	}
}

// TestAggregateCount checks counting across multiple groups and updates.
func TestAggregateCount(t *testing.T) {
	schema := schemaIDCatVal()
	agg := NewAggregate([]record.ColumnID{1}, Count, 0, "")
	wireUnary(agg, schema)

	agg.Process(0, []*record.Record{
		row(schema, true, u(1), i64(0), i64(0)),
		row(schema, true, u(2), i64(0), i64(0)),
		row(schema, true, u(3), i64(1), i64(0)),
	})
	out := agg.Process(0, []*record.Record{row(schema, true, u(4), i64(0), i64(0))})
	if signs(out) != "-+" {
		t.Fatalf("expected -+ pair, got %q", signs(out))
	}
	if out[0].GetUInt(1) != 2 || out[1].GetUInt(1) != 3 {
		t.Fatalf("expected count 2 -> 3, got %s %s", out[0], out[1])
	}
}

// TestAggregateClone checks clones start with empty state.
func TestAggregateClone(t *testing.T) {
	agg, schema := sumByCat(t)
	agg.Process(0, []*record.Record{row(schema, true, u(1), i64(1), i64(5))})
	clone := agg.Clone().(*AggregateOperator)
	if clone.SizeInMemory() != 0 {
		t.Errorf("clone must not inherit state")
	}
	if len(clone.GroupColumns()) != 1 || clone.GroupColumns()[0] != 1 {
		t.Errorf("clone must keep parameters")
	}
}
