package dataflow

import (
	"sort"
	"testing"
	"time"

	"github.com/brownsys/k9db/dataflow/ops"
	"github.com/brownsys/k9db/dataflow/record"
	"github.com/brownsys/k9db/internal/config"
	"github.com/brownsys/k9db/pkg/logger"
)

// Blueprint builders and fixtures shared by the partition, analysis, and
// engine tests. Schemas are built once per test so records bind to the same
// descriptor the flow was installed with.

func idNameSchema() *record.Schema {
	return record.NewSchema(
		[]string{"id", "name"},
		[]record.Type{record.Int, record.Text},
		[]record.ColumnID{0},
	)
}

func idCatSchema() *record.Schema {
	return record.NewSchema(
		[]string{"id", "cat"},
		[]record.Type{record.Int, record.Int},
		[]record.ColumnID{0},
	)
}

func idCatCntSchema() *record.Schema {
	return record.NewSchema(
		[]string{"id", "cat", "cnt"},
		[]record.Type{record.Int, record.Int, record.Int},
		[]record.ColumnID{0},
	)
}

func idCatValSchema() *record.Schema {
	return record.NewSchema(
		[]string{"id", "cat", "v"},
		[]record.Type{record.Int, record.Int, record.Int},
		[]record.ColumnID{0},
	)
}

func idValSchema() *record.Schema {
	return record.NewSchema(
		[]string{"id", "v"},
		[]record.Type{record.Int, record.Int},
		[]record.ColumnID{0},
	)
}

// trivialBlueprint: input -> matview keyed on id.
func trivialBlueprint(table string, schema *record.Schema) *GraphPartition {
	p := NewGraphPartition(0)
	in := ops.NewInput(table, schema)
	p.AddInput(in)
	p.AddOutput(ops.NewMatView([]record.ColumnID{0}), in)
	return p
}

// filterBlueprint: input -> filter id >= 5 -> matview keyed on id.
func filterBlueprint(table string, schema *record.Schema) *GraphPartition {
	p := NewGraphPartition(0)
	in := ops.NewInput(table, schema)
	p.AddInput(in)
	f := ops.NewFilter()
	f.AddLiteralOperation(0, ops.GreaterThanOrEqual, record.NewInt(5))
	p.AddNode(f, in)
	p.AddOutput(ops.NewMatView([]record.ColumnID{0}), f)
	return p
}

// joinBlueprint: L join R on L.cat = R.cat -> matview keyed on L.id.
func joinBlueprint(lTable string, lSchema *record.Schema, rTable string, rSchema *record.Schema) *GraphPartition {
	p := NewGraphPartition(0)
	l := ops.NewInput(lTable, lSchema)
	r := ops.NewInput(rTable, rSchema)
	p.AddInput(l)
	p.AddInput(r)
	j := ops.NewEquiJoin(1, 1, ops.InnerJoin)
	p.AddNode(j, l, r)
	p.AddOutput(ops.NewMatView([]record.ColumnID{0}), j)
	return p
}

// aggBlueprint: SELECT cat, SUM(v) GROUP BY cat -> matview keyed on cat.
func aggBlueprint(table string, schema *record.Schema) *GraphPartition {
	p := NewGraphPartition(0)
	in := ops.NewInput(table, schema)
	p.AddInput(in)
	agg := ops.NewAggregate([]record.ColumnID{1}, ops.Sum, 2, "")
	p.AddNode(agg, in)
	p.AddOutput(ops.NewMatView([]record.ColumnID{0}), agg)
	return p
}

// unionBlueprint: two identically-shaped inputs -> union -> matview keyed
// on v.
func unionBlueprint(aTable, bTable string, schema *record.Schema) *GraphPartition {
	p := NewGraphPartition(0)
	a := ops.NewInput(aTable, schema)
	b := ops.NewInput(bTable, schema)
	p.AddInput(a)
	p.AddInput(b)
	un := ops.NewUnion()
	p.AddNode(un, a, b)
	p.AddOutput(ops.NewMatView([]record.ColumnID{1}), un)
	return p
}

func testEngineConfig(n int) *config.Config {
	cfg := config.Default()
	cfg.Partitions = n
	cfg.ChannelCapacity = 0
	return cfg
}

func quietLogger() *logger.Logger {
	return logger.New(logger.LoggingConfig{Level: "error", Format: "text"})
}

// testEngine spins up an engine with n partitions, unbounded channels, and
// quiet logging, shut down with the test.
func testEngine(t *testing.T, n int) *Engine {
	t.Helper()
	e := New(testEngineConfig(n), quietLogger())
	t.Cleanup(e.Shutdown)
	return e
}

// intRow builds a positive record over an all-INT schema.
func intRow(schema *record.Schema, values ...int64) *record.Record {
	r := record.NewRecord(schema, true)
	for i, v := range values {
		r.SetInt(record.ColumnID(i), v)
	}
	return r
}

func negRow(schema *record.Schema, values ...int64) *record.Record {
	r := intRow(schema, values...)
	r.SetPositive(false)
	return r
}

// waitForSize polls until the flow's view reaches the expected size.
func waitForSize(t *testing.T, e *Engine, flow string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if n, err := e.Size(flow); err == nil && n == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	n, err := e.Size(flow)
	t.Fatalf("flow %q never reached size %d (last %d, err %v)", flow, want, n, err)
}

// waitForQuiesce polls until no channel holds pending messages.
func waitForQuiesce(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	idle := 0
	for time.Now().Before(deadline) {
		if e.pendingMessages() == 0 {
			idle++
			if idle >= 3 {
				return
			}
		} else {
			idle = 0
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("engine never quiesced")
}

// contents renders a flow's records as sorted strings for set comparison.
func contents(t *testing.T, e *Engine, flow string) []string {
	t.Helper()
	records, err := e.All(flow)
	if err != nil {
		t.Fatalf("All(%q): %v", flow, err)
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.String())
	}
	sort.Strings(out)
	return out
}
