package ops

import (
	"fmt"

	"github.com/brownsys/k9db/dataflow/channel"
	"github.com/brownsys/k9db/dataflow/record"
	"github.com/brownsys/k9db/pkg/metrics"
)

// ExchangeOperator repartitions records mid-flow. It hashes each record on
// its outkey, keeps the records belonging to its own partition, and forwards
// the rest to the corresponding peer partitions' channels. Peers deliver the
// forwarded records to their clone of this exchange, which recognizes the
// batch (source == its own index) and passes it through untouched.
type ExchangeOperator struct {
	Node
	flowName       string
	outkey         []record.ColumnID
	partitionCount uint64
	// peers maps a destination partition to its inbound channel; the own
	// partition has no entry.
	peers map[record.PartitionIndex]*channel.Channel
}

// NewExchange creates an exchange that re-hashes on outkey across the given
// number of partitions. peers holds the inbound channel of every other
// partition's matching exchange.
func NewExchange(flowName string, outkey []record.ColumnID, partitionCount int, peers map[record.PartitionIndex]*channel.Channel) *ExchangeOperator {
	return &ExchangeOperator{
		Node:           NewNode(Exchange),
		flowName:       flowName,
		outkey:         append([]record.ColumnID(nil), outkey...),
		partitionCount: uint64(partitionCount),
		peers:          peers,
	}
}

// OutKey returns the partitioning key this exchange re-hashes to.
func (o *ExchangeOperator) OutKey() []record.ColumnID { return o.outkey }

// Process partitions the batch by hash. Records arriving from the exchange
// itself were already routed by a peer and pass through unchanged; no
// inter-partition message is ever sent for a record whose key already maps
// to this partition.
func (o *ExchangeOperator) Process(source record.NodeIndex, records []*record.Record) []*record.Record {
	if source == o.index {
		return records
	}

	var local []*record.Record
	buckets := make(map[record.PartitionIndex][]*record.Record)
	for _, r := range records {
		target := record.PartitionIndex(r.Key(o.outkey).Hash() % o.partitionCount)
		if target == o.partition {
			local = append(local, r)
		} else {
			buckets[target] = append(buckets[target], r)
		}
	}

	forwarded := 0
	for target, bucket := range buckets {
		o.peers[target].Send(o.partition, channel.Batch{
			FlowName: o.flowName,
			Source:   o.index,
			Target:   o.index,
			Records:  bucket,
		})
		forwarded += len(bucket)
	}
	if forwarded > 0 {
		metrics.ExchangeForwarded(o.flowName, o.partition, forwarded)
	}
	return local
}

// ComputeOutputSchema copies the parent's schema; exchanges only move
// records.
func (o *ExchangeOperator) ComputeOutputSchema() {
	if len(o.inputSchemas) == 0 {
		return
	}
	o.setOutputSchema(o.inputSchemas[0])
}

// Clone copies the parameters, sharing the peer channel handles.
func (o *ExchangeOperator) Clone() Operator {
	return NewExchange(o.flowName, o.outkey, int(o.partitionCount), o.peers)
}

// DebugString describes the operator.
func (o *ExchangeOperator) DebugString() string {
	return fmt.Sprintf("%s outkey=%v", o.Node.DebugString(), o.outkey)
}
