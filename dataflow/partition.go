// Package dataflow implements the partitioned, incrementally-maintained
// dataflow engine: operator graphs cloned across partitions, worker
// goroutines driving each partition from MPSC channels, exchange operators
// re-hashing records across partition boundaries, and materialized views
// serving reads.
package dataflow

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brownsys/k9db/dataflow/ops"
	"github.com/brownsys/k9db/dataflow/record"
)

// GraphPartition owns the operators of one partition of a flow. Operators
// reference each other by node index; the partition is the arena resolving
// indices to operators, which keeps cloning and mid-flow insertion simple.
type GraphPartition struct {
	id      record.PartitionIndex
	nodes   map[record.NodeIndex]ops.Operator
	inputs  map[string]*ops.InputOperator
	outputs []*ops.MatViewOperator
}

// NewGraphPartition creates an empty partition with the given id. Partition
// blueprints handed to Engine.AddFlow are built with id 0.
func NewGraphPartition(id record.PartitionIndex) *GraphPartition {
	return &GraphPartition{
		id:     id,
		nodes:  make(map[record.NodeIndex]ops.Operator),
		inputs: make(map[string]*ops.InputOperator),
	}
}

// ID returns the partition's index.
func (p *GraphPartition) ID() record.PartitionIndex { return p.id }

// Size returns the number of operators.
func (p *GraphPartition) Size() int { return len(p.nodes) }

// GetNode returns the operator with the given index, nil when absent.
func (p *GraphPartition) GetNode(idx record.NodeIndex) ops.Operator {
	return p.nodes[idx]
}

// Inputs maps table names to their input operators.
func (p *GraphPartition) Inputs() map[string]*ops.InputOperator { return p.inputs }

// Outputs returns the partition's materialized views.
func (p *GraphPartition) Outputs() []*ops.MatViewOperator { return p.outputs }

// GetInput returns the input operator for a table, nil when absent.
func (p *GraphPartition) GetInput(table string) *ops.InputOperator {
	return p.inputs[table]
}

// AddInput registers an input operator. One operator per table.
func (p *GraphPartition) AddInput(op *ops.InputOperator) {
	if _, ok := p.inputs[op.InputName()]; ok {
		logrus.Fatalf("partition already has an input operator for table %q", op.InputName())
	}
	p.inputs[op.InputName()] = op
	p.AddNode(op)
}

// AddOutput registers a materialized view under its parent.
func (p *GraphPartition) AddOutput(op *ops.MatViewOperator, parent ops.Operator) {
	p.outputs = append(p.outputs, op)
	p.AddNode(op, parent)
}

// AddNode assigns the next node index to the operator, wires it under its
// parents, and computes its output schema. Clone order must match insertion
// order so indices stay stable across partitions.
func (p *GraphPartition) AddNode(op ops.Operator, parents ...ops.Operator) {
	idx := record.NodeIndex(len(p.nodes))
	op.SetIndex(idx)
	op.SetPartition(p.id)
	for _, parent := range parents {
		p.wire(parent, op)
	}
	if op.Type() == ops.Input {
		op.ComputeOutputSchema()
	}
	p.nodes[idx] = op
}

// wire connects parent -> child. A projection's schema depends on its own
// entries rather than a downstream consumer, so it is computed when the
// projection is first used as a parent; every other operator computes its
// schema as soon as a parent attaches.
func (p *GraphPartition) wire(parent, child ops.Operator) {
	if parent.Type() == ops.Project && parent.OutputSchema() == nil {
		parent.ComputeOutputSchema()
	}
	child.AppendParent(parent.Index(), parent.OutputSchema())
	parent.AppendChild(child.Index())
	if child.Type() != ops.Project {
		child.ComputeOutputSchema()
	}
}

// InsertNode splices op into the existing parent -> child edge, replacing it
// by parent -> op -> child. The child's input schema position is untouched;
// only schema-preserving operators (exchanges) are inserted this way.
func (p *GraphPartition) InsertNode(op ops.Operator, parent, child ops.Operator) {
	idx := record.NodeIndex(len(p.nodes))
	op.SetIndex(idx)
	op.SetPartition(p.id)
	op.AppendParent(parent.Index(), parent.OutputSchema())
	op.AppendChild(child.Index())
	op.ComputeOutputSchema()

	replaced := false
	children := parent.Children()
	for i, c := range children {
		if c == child.Index() {
			children[i] = idx
			replaced = true
			break
		}
	}
	if !replaced {
		logrus.Fatalf("insert node: %d is not a child of %d", child.Index(), parent.Index())
	}
	parents := child.Parents()
	for i, c := range parents {
		if c == parent.Index() {
			parents[i] = idx
			break
		}
	}
	p.nodes[idx] = op
}

// Process feeds a batch into the named input operator and propagates it
// through the partition. This is the ordinary intra-partition data path.
func (p *GraphPartition) Process(inputName string, records []*record.Record) {
	input, ok := p.inputs[inputName]
	if !ok {
		logrus.Fatalf("partition %d has no input for table %q", p.id, inputName)
	}
	p.processAndForward(input, record.UndefinedNodeIndex, records)
}

// ProcessAt feeds a batch into an arbitrary operator, attributed to the
// given source node. Workers use this to deliver both client input batches
// and exchange traffic from peer partitions.
func (p *GraphPartition) ProcessAt(target, source record.NodeIndex, records []*record.Record) {
	node, ok := p.nodes[target]
	if !ok {
		logrus.Fatalf("partition %d has no node %d", p.id, target)
	}
	p.processAndForward(node, source, records)
}

// processAndForward pushes a batch through one operator and recursively
// forwards the output to its children. At a fork, every child but the last
// receives explicit copies; the last child takes ownership of the originals.
func (p *GraphPartition) processAndForward(node ops.Operator, source record.NodeIndex, records []*record.Record) {
	out := node.Process(source, records)
	if len(out) == 0 {
		return
	}
	children := node.Children()
	if len(children) == 0 {
		return
	}
	for _, child := range children[:len(children)-1] {
		cp := make([]*record.Record, len(out))
		for i, r := range out {
			cp[i] = r.Copy()
		}
		p.processAndForward(p.nodes[child], node.Index(), cp)
	}
	last := children[len(children)-1]
	p.processAndForward(p.nodes[last], node.Index(), out)
}

// Clone produces a partition with identical topology and fresh operator
// state. Nodes are cloned in index order so clones receive the same indices.
func (p *GraphPartition) Clone(id record.PartitionIndex) *GraphPartition {
	clone := NewGraphPartition(id)
	for i := record.NodeIndex(0); int(i) < len(p.nodes); i++ {
		node := p.nodes[i]
		parents := make([]ops.Operator, 0, len(node.Parents()))
		for _, parent := range node.Parents() {
			parents = append(parents, clone.nodes[parent])
		}
		cloned := node.Clone()
		switch node.Type() {
		case ops.Input:
			clone.AddInput(cloned.(*ops.InputOperator))
		case ops.MatView:
			clone.AddOutput(cloned.(*ops.MatViewOperator), parents[0])
		default:
			clone.AddNode(cloned, parents...)
		}
	}
	return clone
}

// SizeInMemory sums the state held by the partition's stateful operators.
func (p *GraphPartition) SizeInMemory() uint64 {
	var size uint64
	for _, node := range p.nodes {
		if sized, ok := node.(interface{ SizeInMemory() uint64 }); ok {
			size += sized.SizeInMemory()
		}
	}
	return size
}

// DebugString renders the partition's operators in index order.
func (p *GraphPartition) DebugString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "partition %d:\n", p.id)
	for i := record.NodeIndex(0); int(i) < len(p.nodes); i++ {
		fmt.Fprintf(&b, "  %s\n", p.nodes[i].DebugString())
	}
	return b.String()
}
