package dataflow

import (
	"github.com/sirupsen/logrus"

	"github.com/brownsys/k9db/dataflow/ops"
	"github.com/brownsys/k9db/dataflow/record"
)

// Graph is one installed flow: the planner-supplied base partition plus its
// N clones, and the partitioning key chosen for each of its inputs. All
// partitions share a topology; node indices are stable across them.
type Graph struct {
	name       string
	base       *GraphPartition
	partitions []*GraphPartition

	// inputPartitionedBy records the ingress hash key per input table,
	// pinned by the partitioning analysis. Empty until analysis runs.
	inputPartitionedBy map[string][]record.ColumnID
}

// newGraph clones the base partition into n partitions. The base stays
// untouched as the blueprint; exchange operators are inserted into the
// clones only.
func newGraph(name string, base *GraphPartition, n int) *Graph {
	g := &Graph{
		name:               name,
		base:               base,
		inputPartitionedBy: make(map[string][]record.ColumnID),
	}
	for table := range base.Inputs() {
		g.inputPartitionedBy[table] = nil
	}
	for i := 0; i < n; i++ {
		g.partitions = append(g.partitions, base.Clone(record.PartitionIndex(i)))
	}
	return g
}

// Name returns the flow name.
func (g *Graph) Name() string { return g.name }

// Base returns the blueprint partition (exchange-free).
func (g *Graph) Base() *GraphPartition { return g.base }

// Partitions returns the flow's partitions.
func (g *Graph) Partitions() []*GraphPartition { return g.partitions }

// Partition returns one partition by index.
func (g *Graph) Partition(i record.PartitionIndex) *GraphPartition {
	return g.partitions[i]
}

// InputNames returns the tables this flow reads.
func (g *Graph) InputNames() []string {
	names := make([]string, 0, len(g.inputPartitionedBy))
	for table := range g.inputPartitionedBy {
		names = append(names, table)
	}
	return names
}

// InputPartitionKey returns the ingress partitioning key pinned for a table.
func (g *Graph) InputPartitionKey(table string) []record.ColumnID {
	return g.inputPartitionedBy[table]
}

// MatView returns the materialized view of one partition. Flows carry
// exactly one view.
func (g *Graph) MatView(i record.PartitionIndex) *ops.MatViewOperator {
	outputs := g.partitions[i].Outputs()
	if len(outputs) != 1 {
		logrus.Fatalf("flow %q has %d materialized views, expected exactly 1",
			g.name, len(outputs))
	}
	return outputs[0]
}

// MatViews returns the materialized view of every partition.
func (g *Graph) MatViews() []*ops.MatViewOperator {
	views := make([]*ops.MatViewOperator, 0, len(g.partitions))
	for i := range g.partitions {
		views = append(views, g.MatView(record.PartitionIndex(i)))
	}
	return views
}

// MatViewKeyCols returns the key columns of the flow's materialized view.
func (g *Graph) MatViewKeyCols() []record.ColumnID {
	outputs := g.base.Outputs()
	if len(outputs) != 1 {
		logrus.Fatalf("flow %q has %d materialized views, expected exactly 1",
			g.name, len(outputs))
	}
	return outputs[0].KeyColumns()
}

// OutputSchema returns the schema of the flow's materialized view.
func (g *Graph) OutputSchema() *record.Schema {
	outputs := g.base.Outputs()
	if len(outputs) != 1 {
		logrus.Fatalf("flow %q has %d materialized views, expected exactly 1",
			g.name, len(outputs))
	}
	return outputs[0].OutputSchema()
}

// SizeInMemory sums the operator state of all partitions.
func (g *Graph) SizeInMemory() uint64 {
	var size uint64
	for _, p := range g.partitions {
		size += p.SizeInMemory()
	}
	return size
}
