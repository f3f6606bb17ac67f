package ops

import "github.com/brownsys/k9db/dataflow/record"

// IdentityOperator passes batches through unchanged. It serves as a join
// point while assembling partitions and as a probe in tests.
type IdentityOperator struct {
	Node
}

// NewIdentity creates a pass-through operator.
func NewIdentity() *IdentityOperator {
	return &IdentityOperator{Node: NewNode(Identity)}
}

// Process is the identity.
func (o *IdentityOperator) Process(_ record.NodeIndex, records []*record.Record) []*record.Record {
	return records
}

// ComputeOutputSchema copies the parent's schema.
func (o *IdentityOperator) ComputeOutputSchema() {
	if len(o.inputSchemas) == 0 {
		return
	}
	o.setOutputSchema(o.inputSchemas[0])
}

// Clone returns a fresh identity operator.
func (o *IdentityOperator) Clone() Operator { return NewIdentity() }
