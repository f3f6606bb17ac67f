package ops

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brownsys/k9db/dataflow/record"
)

// InputOperator is the entry point of a flow for one base table. It admits
// batches fed by the engine, validates that every record is bound to the
// table's declared schema, and passes them through unchanged. A schema
// mismatch is fatal: incremental maintenance downstream depends on it.
type InputOperator struct {
	Node
	inputName string
}

// NewInput creates an input operator for the named table with its declared
// schema.
func NewInput(inputName string, schema *record.Schema) *InputOperator {
	op := &InputOperator{Node: NewNode(Input), inputName: inputName}
	// Inputs have no parents; the declared schema is the sole input schema.
	op.inputSchemas = []*record.Schema{schema}
	return op
}

// InputName returns the base table this operator reads.
func (o *InputOperator) InputName() string { return o.inputName }

// Process validates record schemas and acts as identity.
func (o *InputOperator) Process(_ record.NodeIndex, records []*record.Record) []*record.Record {
	declared := o.inputSchemas[0]
	for _, r := range records {
		if r.Schema() != declared {
			logrus.Fatalf("schema mismatch on input %q: record schema %s, declared %s",
				o.inputName, r.Schema(), declared)
		}
	}
	return records
}

// ComputeOutputSchema sets the output schema to the declared table schema.
func (o *InputOperator) ComputeOutputSchema() {
	o.setOutputSchema(o.inputSchemas[0])
}

// Clone returns an input operator over the same table and schema.
func (o *InputOperator) Clone() Operator {
	return NewInput(o.inputName, o.inputSchemas[0])
}

// DebugString describes the operator.
func (o *InputOperator) DebugString() string {
	return fmt.Sprintf("%s table=%q", o.Node.DebugString(), o.inputName)
}
