package dataflow

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/brownsys/k9db/dataflow/channel"
	"github.com/brownsys/k9db/dataflow/ops"
	"github.com/brownsys/k9db/dataflow/record"
)

// Partitioning-key analysis. After a flow is cloned into N partitions, the
// engine annotates every node with the partitioning its semantics require
// (join column for equi-joins, group columns for aggregates, key columns for
// the materialized view) and walks the base graph top-down from the view.
// Wherever the partitioning a parent delivers disagrees with what a node
// requires, an exchange operator is spliced into the edge — at the same node
// index in all N partitions — to re-hash records to the required key.
//
// Unions are deferred: a union requires all parents on one key, but that key
// may only be discovered further down. The walk tracks the nearest union
// whose partitioning is not yet pinned and resolves it at the next
// partitioning boundary.

// trackState carries the union being tracked and the edge (union -> child on
// the walked path) where a resolving exchange would be spliced.
type trackState struct {
	union ops.Operator
	from  ops.Operator
}

// annotateBaseGraph assigns the intrinsic partitioning annotation per node.
func annotateBaseGraph(g *Graph) {
	base := g.Base()
	for i := record.NodeIndex(0); int(i) < base.Size(); i++ {
		node := base.GetNode(i)
		switch node.Type() {
		case ops.Filter, ops.Project, ops.Union, ops.Input, ops.Identity:
			node.SetPartitionedBy(nil)
		case ops.MatView:
			node.SetPartitionedBy(node.(*ops.MatViewOperator).KeyColumns())
		case ops.EquiJoin:
			join := node.(*ops.EquiJoinOperator)
			node.SetPartitionedBy([]record.ColumnID{join.JoinColumn()})
		case ops.Aggregate:
			node.SetPartitionedBy(node.(*ops.AggregateOperator).OutPartitionColumns())
		case ops.Exchange:
			logrus.Fatalf("invalid plan: exchange present before partitioning analysis")
		default:
			logrus.Fatalf("invalid plan: unsupported operator %s", node.Type())
		}
	}
}

// traverseBaseGraph runs the analysis for one flow, inserting exchanges into
// all partitions as disagreements are found.
func (e *Engine) traverseBaseGraph(g *Graph) {
	annotateBaseGraph(g)
	matview := g.Base().Outputs()[0]
	visited := mapset.NewSet[record.NodeIndex]()
	tracking := &trackState{}
	e.visitNode(g, matview, nil, matview.KeyColumns(), tracking, visited)
}

// visitNode walks top-down. from is the child we descended out of (the edge
// an exchange after node would be spliced into); recent is the partitioning
// key the downstream side expects, expressed in node's output columns.
func (e *Engine) visitNode(g *Graph, node, from ops.Operator, recent []record.ColumnID, tracking *trackState, visited mapset.Set[record.NodeIndex]) {
	if !visited.Add(node.Index()) {
		return
	}
	base := g.Base()
	parent := func(i int) ops.Operator { return base.GetNode(node.Parents()[i]) }

	switch node.Type() {
	case ops.Filter, ops.Project, ops.MatView, ops.Identity:
		e.visitNode(g, parent(0), node, recent, tracking, visited)

	case ops.Union:
		// A union already being tracked means no partitioning boundary
		// separates it from this one; a single exchange after the outer
		// union resolves both.
		if tracking.union == nil {
			tracking.union = node
			tracking.from = from
		}
		e.visitNode(g, parent(0), node, recent, tracking, visited)
		e.visitNode(g, parent(1), node, recent, tracking, visited)

	case ops.Input:
		input := node.(*ops.InputOperator)
		pinned := g.inputPartitionedBy[input.InputName()]
		if len(pinned) == 0 {
			// First path to reach this input decides its ingress key.
			if tracking.union != nil {
				tracking.union.SetPartitionedBy(recent)
				tracking.union, tracking.from = nil, nil
			}
			g.inputPartitionedBy[input.InputName()] = recent
		} else if !columnsEqual(pinned, recent) {
			// Records arrive hashed on the pinned key; this path needs
			// them re-hashed to recent. An exchange with a matching key
			// forwards nothing, so the union-side insertion is benign
			// when redundant.
			if tracking.union != nil {
				e.addExchangeAfter(g, tracking.union, tracking.from, recent)
				tracking.union, tracking.from = nil, nil
			}
			e.addExchangeAfter(g, node, from, recent)
		}

	case ops.EquiJoin:
		join := node.(*ops.EquiJoinOperator)
		cols := []record.ColumnID{join.JoinColumn()}
		if tracking.union != nil {
			tracking.union.SetPartitionedBy(cols)
			tracking.union, tracking.from = nil, nil
		}
		if !columnsEqual(cols, recent) {
			e.addExchangeAfter(g, node, from, recent)
		}
		e.visitNode(g, parent(0), node, []record.ColumnID{join.LeftColumn()}, tracking, visited)
		e.visitNode(g, parent(1), node, []record.ColumnID{join.RightColumn()}, tracking, visited)

	case ops.Aggregate:
		agg := node.(*ops.AggregateOperator)
		cols := agg.OutPartitionColumns()
		if tracking.union != nil {
			tracking.union.SetPartitionedBy(cols)
			tracking.union, tracking.from = nil, nil
		}
		if !columnsEqual(cols, recent) {
			e.addExchangeAfter(g, node, from, recent)
		}
		e.visitNode(g, parent(0), node, agg.GroupColumns(), tracking, visited)

	default:
		logrus.Fatalf("invalid plan: unsupported operator %s in partitioning analysis",
			node.Type())
	}
}

// addExchangeAfter splices an exchange re-hashing to outkey into the
// parent -> child edge of every partition, all at the same node index. Each
// insertion allocates one channel per destination partition; the exchange of
// partition p holds handles to every other destination's channel, and the
// destination's worker monitors it.
func (e *Engine) addExchangeAfter(g *Graph, parent, child ops.Operator, outkey []record.ColumnID) {
	if child == nil {
		logrus.Fatalf("invalid plan: exchange after node %d has no downstream edge",
			parent.Index())
	}
	n := len(g.Partitions())
	chans := make([]*channel.Channel, n)
	for q := 0; q < n; q++ {
		chans[q] = channel.New(n, e.workers[q].Notify)
		e.workers[q].MonitorChannel(chans[q])
	}
	for p := 0; p < n; p++ {
		peers := make(map[record.PartitionIndex]*channel.Channel, n-1)
		for q := 0; q < n; q++ {
			if q != p {
				peers[record.PartitionIndex(q)] = chans[q]
			}
		}
		exchange := ops.NewExchange(g.Name(), outkey, n, peers)
		partition := g.Partition(record.PartitionIndex(p))
		partition.InsertNode(exchange,
			partition.GetNode(parent.Index()),
			partition.GetNode(child.Index()))
	}
}

// columnsEqual compares two partitioning keys.
func columnsEqual(a, b []record.ColumnID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
