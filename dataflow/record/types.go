// Package record defines the data model of the dataflow engine: typed values,
// schemas, records, and hashable keys. Records flow between operators tagged
// as positive (insert) or negative (delete); keys project records onto a
// subset of columns for hashing, grouping, and partitioning.
package record

import "math"

// ColumnID identifies a column by its position within a schema.
type ColumnID = uint32

// NodeIndex identifies an operator within a graph partition. Indices are
// assigned sequentially and are stable across all partitions of a flow.
type NodeIndex = uint32

// PartitionIndex identifies one of the N partitions of a flow.
type PartitionIndex = uint16

// UndefinedNodeIndex marks a batch that did not originate from an operator
// (e.g. client input fed directly into an input operator).
const UndefinedNodeIndex NodeIndex = math.MaxUint32
