package dataflow

import (
	"github.com/brownsys/k9db/dataflow/record"
)

// Row-to-partition mapping. The partition of a record (or lookup key) is the
// deterministic hash of its partitioning-key projection modulo the partition
// count: a pure function of (values, columns, N), stable across runs and
// processes, so ingress hashing, exchange re-hashing, and lookup routing all
// agree on where a key lives.

// PartitionOfKey maps a key to its owning partition.
func PartitionOfKey(key record.Key, n int) record.PartitionIndex {
	return record.PartitionIndex(key.Hash() % uint64(n))
}

// PartitionOfRecord maps a record to its owning partition under the given
// partitioning columns.
func PartitionOfRecord(r *record.Record, cols []record.ColumnID, n int) record.PartitionIndex {
	return PartitionOfKey(r.Key(cols), n)
}

// HashPartition buckets records by their owning partition.
func HashPartition(records []*record.Record, cols []record.ColumnID, n int) map[record.PartitionIndex][]*record.Record {
	buckets := make(map[record.PartitionIndex][]*record.Record)
	for _, r := range records {
		p := PartitionOfRecord(r, cols, n)
		buckets[p] = append(buckets[p], r)
	}
	return buckets
}
