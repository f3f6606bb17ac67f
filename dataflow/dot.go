package dataflow

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/brownsys/k9db/dataflow/record"
)

// Dot renders the partitioned flow as a graphviz digraph, one cluster per
// partition, for debugging exchange placement and topology.
func (g *Graph) Dot() string {
	di := dot.NewGraph(dot.Directed)
	di.Attr("label", g.name)
	for _, p := range g.partitions {
		cluster := di.Subgraph(fmt.Sprintf("partition %d", p.ID()), dot.ClusterOption{})
		nodes := make(map[record.NodeIndex]dot.Node, p.Size())
		for i := record.NodeIndex(0); int(i) < p.Size(); i++ {
			op := p.GetNode(i)
			n := cluster.Node(fmt.Sprintf("p%d_n%d", p.ID(), i))
			n.Attr("label", fmt.Sprintf("%s [%d]", op.Type(), i))
			nodes[i] = n
		}
		for i := record.NodeIndex(0); int(i) < p.Size(); i++ {
			for _, child := range p.GetNode(i).Children() {
				cluster.Edge(nodes[i], nodes[child])
			}
		}
	}
	return di.String()
}
