package ops

import (
	"github.com/brownsys/k9db/dataflow/record"
)

// Test helpers shared by the operator unit tests: schema builders, wiring
// shortcuts, and batch constructors mirroring the shapes the engine tests
// ingest.

func schemaIDName() *record.Schema {
	return record.NewSchema(
		[]string{"id", "name"},
		[]record.Type{record.UInt, record.Text},
		[]record.ColumnID{0},
	)
}

func schemaIDCat() *record.Schema {
	return record.NewSchema(
		[]string{"id", "cat"},
		[]record.Type{record.UInt, record.Int},
		[]record.ColumnID{0},
	)
}

func schemaIDCatVal() *record.Schema {
	return record.NewSchema(
		[]string{"id", "cat", "v"},
		[]record.Type{record.UInt, record.Int, record.Int},
		[]record.ColumnID{0},
	)
}

// wireUnary attaches a single parent (index 0) with the given schema and
// computes the output schema.
func wireUnary(op Operator, schema *record.Schema) {
	op.SetIndex(1)
	op.AppendParent(0, schema)
	op.ComputeOutputSchema()
}

// wireBinary attaches two parents (indices 0 and 1).
func wireBinary(op Operator, left, right *record.Schema) {
	op.SetIndex(2)
	op.AppendParent(0, left)
	op.AppendParent(1, right)
	op.ComputeOutputSchema()
}

func row(schema *record.Schema, positive bool, values ...record.Value) *record.Record {
	r := record.NewRecord(schema, positive)
	for i, v := range values {
		r.SetValue(record.ColumnID(i), v)
	}
	return r
}

func u(v uint64) record.Value { return record.NewUInt(v) }

func i64(v int64) record.Value { return record.NewInt(v) }

func txt(v string) record.Value { return record.NewText(v) }

// signs renders a batch as "+-+" for compact assertions on emit order.
func signs(records []*record.Record) string {
	out := make([]byte, len(records))
	for i, r := range records {
		if r.IsPositive() {
			out[i] = '+'
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}
