package dataflow

import (
	"sync"

	"github.com/brownsys/k9db/dataflow/channel"
	"github.com/brownsys/k9db/dataflow/record"
	"github.com/brownsys/k9db/pkg/logger"
	"github.com/brownsys/k9db/pkg/metrics"
)

// Worker drives one partition index across all installed flows. It blocks on
// its condition variable until any monitored channel receives a message,
// drains every channel, processes the batches through the owning partition
// graphs, and checks its stop channel last so pending work is consumed
// before termination.
type Worker struct {
	id  record.PartitionIndex
	log *logger.Logger

	// mu guards the channel list and partition map, which the engine
	// mutates while installing flows.
	mu         sync.Mutex
	channels   []*channel.Channel
	stop       *channel.Channel
	partitions map[string]*GraphPartition

	// notifyMu/cond implement lost-wakeup-free notification: every send on
	// a monitored channel sets notified under the mutex and signals; the
	// worker clears the flag before draining.
	notifyMu sync.Mutex
	cond     *sync.Cond
	notified bool
}

// NewWorker creates a worker for the given partition index.
func NewWorker(id record.PartitionIndex, log *logger.Logger) *Worker {
	w := &Worker{
		id:         id,
		log:        log,
		partitions: make(map[string]*GraphPartition),
	}
	w.cond = sync.NewCond(&w.notifyMu)
	return w
}

// Notify wakes the worker. Safe for concurrent use; wakeups are latched in
// the notified flag so one is never lost while the worker is busy draining.
func (w *Worker) Notify() {
	w.notifyMu.Lock()
	w.notified = true
	w.notifyMu.Unlock()
	w.cond.Signal()
}

// MonitorChannel adds a channel to the worker's drain loop. Input channels
// are registered before exchange channels, so by the time the worker reaches
// exchange channels their peers have likely produced traffic already.
func (w *Worker) MonitorChannel(ch *channel.Channel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.channels = append(w.channels, ch)
}

// MonitorStopChannel sets the dedicated stop channel, checked after all data
// channels.
func (w *Worker) MonitorStopChannel(ch *channel.Channel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stop = ch
}

// AddPartition registers this worker's partition of a flow.
func (w *Worker) AddPartition(flow string, p *GraphPartition) {
	if p.ID() != w.id {
		w.log.Fatalf("worker %d cannot own partition %d", w.id, p.ID())
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partitions[flow] = p
}

// Start is the worker goroutine's entry point. It returns after a Stop
// message has been received and all remaining non-stop messages drained.
func (w *Worker) Start(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		w.wait()
		w.drainDataChannels()
		if w.stopRequested() {
			// Drain whatever peers enqueued while this worker was
			// processing, then terminate.
			w.drainDataChannels()
			w.log.WithField("partition", w.id).Debug("worker stopped")
			return
		}
	}
}

// wait blocks until a notification arrives, consuming all pending
// notifications at once.
func (w *Worker) wait() {
	w.notifyMu.Lock()
	for !w.notified {
		w.cond.Wait()
	}
	w.notified = false
	w.notifyMu.Unlock()
}

// drainDataChannels reads every monitored channel until all are empty and
// processes the batches. Looping until quiescence matters during shutdown:
// processing a batch may trigger exchange traffic back into this partition.
func (w *Worker) drainDataChannels() {
	for {
		moved := false
		for _, ch := range w.snapshotChannels() {
			for _, msg := range ch.Read() {
				moved = true
				w.handle(msg)
			}
		}
		if !moved {
			return
		}
	}
}

func (w *Worker) snapshotChannels() []*channel.Channel {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*channel.Channel(nil), w.channels...)
}

// handle processes one message. Stop messages never travel on data channels.
func (w *Worker) handle(msg channel.Message) {
	batch, ok := msg.(channel.Batch)
	if !ok {
		w.log.Fatalf("worker %d: unexpected message %T on data channel", w.id, msg)
	}
	w.mu.Lock()
	partition := w.partitions[batch.FlowName]
	w.mu.Unlock()
	if partition == nil {
		w.log.Fatalf("worker %d: batch for unknown flow %q", w.id, batch.FlowName)
	}

	positive, negative := 0, 0
	for _, r := range batch.Records {
		if r.IsPositive() {
			positive++
		} else {
			negative++
		}
	}

	partition.ProcessAt(batch.Target, batch.Source, batch.Records)

	metrics.BatchProcessed(batch.FlowName, w.id)
	metrics.RecordsProcessed(batch.FlowName, w.id, true, positive)
	metrics.RecordsProcessed(batch.FlowName, w.id, false, negative)
	for _, view := range partition.Outputs() {
		metrics.SetMatViewSize(batch.FlowName, w.id, view.Count())
	}
	metrics.SetChannelDepth(w.id, w.pendingMessages())
}

// pendingMessages sums the depth of all monitored channels.
func (w *Worker) pendingMessages() int {
	n := 0
	for _, ch := range w.snapshotChannels() {
		n += ch.Len()
	}
	return n
}

// stopRequested reads the stop channel; any message on it is a Stop.
func (w *Worker) stopRequested() bool {
	w.mu.Lock()
	stop := w.stop
	w.mu.Unlock()
	if stop == nil {
		return false
	}
	return len(stop.Read()) > 0
}
