// Package channel provides the multi-producer / single-consumer queues that
// connect partitions of a flow. Producers are the engine's client threads
// (table ingress) and the worker goroutines of peer partitions (exchange
// traffic); the single consumer is the worker that owns the destination
// partition.
package channel

import (
	"sync"

	"github.com/brownsys/k9db/dataflow/record"
)

// Message is a unit of channel traffic: either a Batch of records addressed
// to an operator, or a Stop signal that terminates the consuming worker.
type Message interface {
	isMessage()
}

// Batch carries a slice of records from a source operator (or from client
// ingress, in which case Source is record.UndefinedNodeIndex) to a target
// operator of one flow partition.
type Batch struct {
	FlowName string
	Source   record.NodeIndex
	Target   record.NodeIndex
	Records  []*record.Record
}

// Stop signals the consuming worker to drain and terminate.
type Stop struct{}

func (Batch) isMessage() {}
func (Stop) isMessage()  {}

// Channel is an MPSC queue. Each worker producer has a dedicated FIFO queue
// indexed by its partition id; client producers share a separate input queue
// behind its own mutex. The read-write mutex synchronizes the many producers
// (shared) against the one consumer (unique): while the consumer drains, no
// producer can append, so a drain observes a consistent frontier.
//
// Every send fires the notify callback exactly once. The callback is wired
// to the owning worker's condition variable, whose notified flag guarantees
// wakeups are never lost even when the worker is busy draining.
type Channel struct {
	mu      sync.RWMutex
	queues  [][]Message
	inputMu sync.Mutex
	input   []Message
	notify  func()
}

// New creates a channel with one producer queue per worker. notify is
// invoked after every send; it must be safe for concurrent use.
func New(producers int, notify func()) *Channel {
	return &Channel{
		queues: make([][]Message, producers),
		notify: notify,
	}
}

// Send appends a message from a worker producer. Only the worker goroutine
// owning the given partition index may use that index, so its queue needs no
// further locking beyond the shared read lock that excludes the consumer.
func (c *Channel) Send(producer record.PartitionIndex, msg Message) {
	c.mu.RLock()
	c.queues[producer] = append(c.queues[producer], msg)
	c.mu.RUnlock()
	c.notify()
}

// SendInput appends a message from a client producer. Many clients may call
// this concurrently; the input queue has its own mutex underneath the shared
// lock.
func (c *Channel) SendInput(msg Message) {
	c.mu.RLock()
	c.inputMu.Lock()
	c.input = append(c.input, msg)
	c.inputMu.Unlock()
	c.mu.RUnlock()
	c.notify()
}

// Read drains and returns all pending messages, FIFO per producer queue with
// the client input queue last. Only the consuming worker may call Read.
func (c *Channel) Read() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Message
	for i, q := range c.queues {
		if len(q) > 0 {
			out = append(out, q...)
			c.queues[i] = nil
		}
	}
	if len(c.input) > 0 {
		out = append(out, c.input...)
		c.input = nil
	}
	return out
}

// Len returns the number of pending messages. Used by the engine for
// ingress backpressure and by the metrics gauges.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, q := range c.queues {
		n += len(q)
	}
	c.inputMu.Lock()
	n += len(c.input)
	c.inputMu.Unlock()
	return n
}
