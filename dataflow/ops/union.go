package ops

import (
	"github.com/sirupsen/logrus"

	"github.com/brownsys/k9db/dataflow/record"
)

// UnionOperator merges two or more parents with identical schemas into one
// stream. It is a pure pass-through; the interesting part is played during
// partitioning analysis, where a union forces all parents onto the same
// partitioning key.
type UnionOperator struct {
	Node
}

// NewUnion creates a union operator.
func NewUnion() *UnionOperator {
	return &UnionOperator{Node: NewNode(Union)}
}

// Process passes the batch through.
func (o *UnionOperator) Process(_ record.NodeIndex, records []*record.Record) []*record.Record {
	return records
}

// ComputeOutputSchema requires all parents to share one schema descriptor
// and adopts it. Divergent parent schemas are a planning bug.
func (o *UnionOperator) ComputeOutputSchema() {
	if len(o.inputSchemas) < 2 {
		return
	}
	first := o.inputSchemas[0]
	for _, s := range o.inputSchemas[1:] {
		if s != first {
			logrus.Fatalf("union parents have different schemas: %s vs %s", first, s)
		}
	}
	o.setOutputSchema(first)
}

// Clone returns a fresh union operator.
func (o *UnionOperator) Clone() Operator { return NewUnion() }
