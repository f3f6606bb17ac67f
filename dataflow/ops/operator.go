// Package ops implements the relational operators of the dataflow engine.
// Operators are nodes in a partition's graph: they transform batches of
// positive/negative records arriving from one parent into batches for their
// children, and own any per-operator state (join tables, aggregate maps,
// materialized-view contents).
//
// Every operator preserves the delta discipline: the multiset of downstream
// positive minus negative records equals the delta induced by the input
// delta. Stateful operators receiving a negative record retract previously
// emitted derived records and re-emit replacements where needed.
package ops

import (
	"fmt"
	"strings"

	"github.com/brownsys/k9db/dataflow/record"
)

// Type tags the operator variants.
type Type uint8

const (
	Input Type = iota
	Identity
	MatView
	Filter
	Union
	EquiJoin
	Project
	Aggregate
	Exchange
)

// String returns the operator type name used in logs and DOT output.
func (t Type) String() string {
	switch t {
	case Input:
		return "INPUT"
	case Identity:
		return "IDENTITY"
	case MatView:
		return "MAT_VIEW"
	case Filter:
		return "FILTER"
	case Union:
		return "UNION"
	case EquiJoin:
		return "EQUIJOIN"
	case Project:
		return "PROJECT"
	case Aggregate:
		return "AGGREGATE"
	case Exchange:
		return "EXCHANGE"
	default:
		return fmt.Sprintf("OP(%d)", uint8(t))
	}
}

// Operator is the contract shared by all graph nodes. Wiring (parent/child
// indices, input schemas) is managed by the owning graph partition through
// the mutators below; operators themselves only transform records and
// compute their output schema.
type Operator interface {
	// Type returns the operator's variant tag.
	Type() Type
	// Index returns the operator's node index within its partition.
	Index() record.NodeIndex
	// SetIndex assigns the node index. Called once by the partition.
	SetIndex(record.NodeIndex)
	// Partition returns the id of the owning partition.
	Partition() record.PartitionIndex
	// SetPartition assigns the owning partition id.
	SetPartition(record.PartitionIndex)

	// Parents and Children expose the wiring by node index.
	Parents() []record.NodeIndex
	Children() []record.NodeIndex
	// SetParents and SetChildren rewire edges wholesale; used when an
	// exchange operator is spliced into an existing parent->child edge.
	SetParents([]record.NodeIndex)
	SetChildren([]record.NodeIndex)
	// AppendParent records a new parent and its output schema as the next
	// input schema. AppendChild records a new child.
	AppendParent(record.NodeIndex, *record.Schema)
	AppendChild(record.NodeIndex)

	// InputSchemas returns one schema per attached parent, in parent order.
	InputSchemas() []*record.Schema
	// OutputSchema returns the computed output schema (nil until computed).
	OutputSchema() *record.Schema
	// ComputeOutputSchema derives the output schema from the input schemas
	// and the operator's parameters. Idempotent; a no-op until all parents
	// are attached.
	ComputeOutputSchema()

	// PartitionedBy and SetPartitionedBy carry the partitioning-key
	// annotation used by the planner's exchange-insertion analysis.
	PartitionedBy() []record.ColumnID
	SetPartitionedBy([]record.ColumnID)

	// Process transforms a batch arriving from the parent with the given
	// node index and returns the batch for this operator's children. The
	// batch may be reordered internally, but positive/negative pairing
	// semantics are preserved.
	Process(source record.NodeIndex, records []*record.Record) []*record.Record

	// Clone returns an operator with identical parameters and fresh, empty
	// state. Wiring is not cloned; the partition re-wires clones itself.
	Clone() Operator

	// DebugString describes the operator for debug output.
	DebugString() string
}

// Node carries the fields and wiring behavior common to all operators.
// Concrete operators embed it and implement Process, ComputeOutputSchema,
// and Clone.
type Node struct {
	typ           Type
	index         record.NodeIndex
	partition     record.PartitionIndex
	parents       []record.NodeIndex
	children      []record.NodeIndex
	inputSchemas  []*record.Schema
	outputSchema  *record.Schema
	partitionedBy []record.ColumnID
}

// NewNode initializes the embedded common fields for the given variant.
func NewNode(typ Type) Node {
	return Node{typ: typ, index: record.UndefinedNodeIndex}
}

func (n *Node) Type() Type { return n.typ }

func (n *Node) Index() record.NodeIndex { return n.index }

func (n *Node) SetIndex(i record.NodeIndex) { n.index = i }

func (n *Node) Partition() record.PartitionIndex { return n.partition }

func (n *Node) SetPartition(p record.PartitionIndex) { n.partition = p }

func (n *Node) Parents() []record.NodeIndex { return n.parents }

func (n *Node) Children() []record.NodeIndex { return n.children }

func (n *Node) SetParents(p []record.NodeIndex) { n.parents = p }

func (n *Node) SetChildren(c []record.NodeIndex) { n.children = c }

func (n *Node) InputSchemas() []*record.Schema { return n.inputSchemas }

func (n *Node) OutputSchema() *record.Schema { return n.outputSchema }

func (n *Node) PartitionedBy() []record.ColumnID { return n.partitionedBy }

func (n *Node) SetPartitionedBy(cols []record.ColumnID) { n.partitionedBy = cols }

// AppendParent records a parent edge and its schema.
func (n *Node) AppendParent(parent record.NodeIndex, schema *record.Schema) {
	n.parents = append(n.parents, parent)
	n.inputSchemas = append(n.inputSchemas, schema)
}

// AppendChild records a child edge.
func (n *Node) AppendChild(child record.NodeIndex) {
	n.children = append(n.children, child)
}

// setOutputSchema is used by concrete operators' ComputeOutputSchema.
func (n *Node) setOutputSchema(s *record.Schema) { n.outputSchema = s }

// DebugString renders the common node description; concrete operators may
// append parameters.
func (n *Node) DebugString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]", n.typ, n.index)
	if len(n.children) > 0 {
		fmt.Fprintf(&b, " children=%v", n.children)
	}
	if n.outputSchema != nil {
		fmt.Fprintf(&b, " out=%s", n.outputSchema)
	}
	return b.String()
}
