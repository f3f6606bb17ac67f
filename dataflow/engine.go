package dataflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/brownsys/k9db/dataflow/channel"
	"github.com/brownsys/k9db/dataflow/record"
	"github.com/brownsys/k9db/internal/config"
	"github.com/brownsys/k9db/pkg/logger"
	"github.com/brownsys/k9db/pkg/metrics"
)

// drainWindow is how long shutdown waits before probing channels, giving
// batches enqueued just before shutdown a chance to reach their workers.
const drainWindow = 40 * time.Millisecond

// Engine owns the installed flows and the machinery that runs them: N
// partitions per flow, one worker goroutine per partition index shared
// across flows, input channels fanning client batches in, and exchange
// channels moving records between partitions.
//
// Lifecycle: New -> AddTableSchema -> AddFlow -> ProcessRecords/Lookup ->
// Shutdown. There is no process-wide state; multiple engines can coexist.
type Engine struct {
	log             *logger.Logger
	partitionCount  int
	channelCapacity int
	dataDir         string

	workers   []*Worker
	stopChans []*channel.Channel
	wg        sync.WaitGroup

	// mu guards the registries below against concurrent installation,
	// ingress, and lookup.
	mu            sync.RWMutex
	schemas       map[string]*record.Schema
	flows         map[string]*Graph
	flowsPerInput map[string][]string
	inputChans    map[string][]*channel.Channel
	down          bool
}

// New creates an engine from the given configuration and spawns one worker
// goroutine per partition. A nil config uses config.Default; a nil logger
// is constructed from the config's logging settings.
func New(cfg *config.Config, log *logger.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.New(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}
	e := &Engine{
		log:             log,
		partitionCount:  cfg.Partitions,
		channelCapacity: cfg.ChannelCapacity,
		dataDir:         cfg.DataDir,
		schemas:         make(map[string]*record.Schema),
		flows:           make(map[string]*Graph),
		flowsPerInput:   make(map[string][]string),
		inputChans:      make(map[string][]*channel.Channel),
	}
	for i := 0; i < e.partitionCount; i++ {
		w := NewWorker(record.PartitionIndex(i), log)
		stop := channel.New(0, w.Notify)
		w.MonitorStopChannel(stop)
		e.workers = append(e.workers, w)
		e.stopChans = append(e.stopChans, stop)
		e.wg.Add(1)
		go w.Start(&e.wg)
	}
	log.WithField("partitions", e.partitionCount).Info("dataflow engine started")
	return e
}

// PartitionCount returns the number of partitions per flow.
func (e *Engine) PartitionCount() int { return e.partitionCount }

// AddTableSchema registers a base table's schema. The first registration
// wins; re-registering an existing table is a no-op with a warning.
func (e *Engine) AddTableSchema(name string, schema *record.Schema) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.schemas[name]; ok {
		e.log.WithField("table", name).Warn("table schema already registered, keeping first")
		return
	}
	e.schemas[name] = schema
}

// GetTableSchema returns the registered schema of a table.
func (e *Engine) GetTableSchema(name string) (*record.Schema, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	schema, ok := e.schemas[name]
	if !ok {
		return nil, &UnknownTableError{Table: name}
	}
	return schema, nil
}

// Tables returns the registered table names.
func (e *Engine) Tables() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tables := make([]string, 0, len(e.schemas))
	for name := range e.schemas {
		tables = append(tables, name)
	}
	return tables
}

// AddFlow installs a flow from a planner-built partition blueprint: the
// blueprint is cloned into N partitions, the partitioning analysis pins
// ingress keys and splices exchange operators, per-partition input channels
// are allocated, and the partitions are handed to the workers.
func (e *Engine) AddFlow(name string, blueprint *GraphPartition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return ErrShutdown
	}
	if _, ok := e.flows[name]; ok {
		return &DuplicateFlowError{Flow: name}
	}
	for table := range blueprint.Inputs() {
		if _, ok := e.schemas[table]; !ok {
			return fmt.Errorf("installing flow %q: %w", name, &UnknownTableError{Table: table})
		}
	}

	g := newGraph(name, blueprint, e.partitionCount)

	chans := make([]*channel.Channel, e.partitionCount)
	for i := range chans {
		chans[i] = channel.New(e.partitionCount, e.workers[i].Notify)
	}

	// Register input channels ahead of the exchange channels the analysis
	// allocates, so workers drain ingress before inter-partition traffic.
	for i, w := range e.workers {
		w.AddPartition(name, g.Partition(record.PartitionIndex(i)))
		w.MonitorChannel(chans[i])
	}

	e.traverseBaseGraph(g)
	for table, key := range g.inputPartitionedBy {
		if len(key) == 0 {
			e.log.Fatalf("invalid plan: flow %q pinned no partitioning key for input %q",
				name, table)
		}
	}
	e.flows[name] = g
	e.inputChans[name] = chans
	for table := range blueprint.Inputs() {
		e.flowsPerInput[table] = append(e.flowsPerInput[table], name)
	}

	e.log.WithFlow(name).WithField("inputs", g.InputNames()).Info("flow installed")
	return nil
}

// HasFlow reports whether a flow is installed.
func (e *Engine) HasFlow(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.flows[name]
	return ok
}

// HasFlowsFor reports whether any flow reads the given table.
func (e *Engine) HasFlowsFor(table string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.flowsPerInput[table]) > 0
}

// ProcessRecords feeds a batch of records into every flow reading the table.
// Records are hash-partitioned on each flow's pinned ingress key and sent to
// the owning partitions' input channels. After shutdown the records are
// dropped and ErrShutdown returned.
func (e *Engine) ProcessRecords(table string, records []*record.Record) error {
	if len(records) == 0 {
		return nil
	}
	e.mu.RLock()
	if e.down {
		e.mu.RUnlock()
		return ErrShutdown
	}
	flowNames := append([]string(nil), e.flowsPerInput[table]...)
	flows := make([]*Graph, len(flowNames))
	chans := make([][]*channel.Channel, len(flowNames))
	for i, name := range flowNames {
		flows[i] = e.flows[name]
		chans[i] = e.inputChans[name]
	}
	e.mu.RUnlock()

	for i, g := range flows {
		batch := records
		if i > 0 {
			// Flows process concurrently on different workers; each flow
			// past the first gets its own copies.
			batch = make([]*record.Record, len(records))
			for j, r := range records {
				batch[j] = r.Copy()
			}
		}
		key := g.InputPartitionKey(table)
		input := g.Partition(0).GetInput(table)
		for p, bucket := range HashPartition(batch, key, e.partitionCount) {
			ch := chans[i][p]
			e.applyBackpressure(table, ch)
			ch.SendInput(channel.Batch{
				FlowName: g.Name(),
				Source:   record.UndefinedNodeIndex,
				Target:   input.Index(),
				Records:  bucket,
			})
		}
	}
	return nil
}

// applyBackpressure blocks the ingress caller while the destination channel
// is at capacity, waiting with exponential backoff for the worker to drain.
func (e *Engine) applyBackpressure(table string, ch *channel.Channel) {
	if e.channelCapacity <= 0 || ch.Len() < e.channelCapacity {
		return
	}
	full := fmt.Errorf("input channel for table %q is full", table)
	err := backoff.Retry(func() error {
		if ch.Len() >= e.channelCapacity {
			metrics.IngressBackpressure(table)
			return full
		}
		return nil
	}, backoff.NewExponentialBackOff())
	if err != nil {
		// The worker made no room within the backoff budget; send anyway
		// rather than dropping records.
		e.log.WithField("table", table).Warn("ingress backpressure budget exhausted")
	}
}

// flow returns an installed flow under the read lock.
func (e *Engine) flow(name string) (*Graph, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.flows[name]
	if !ok {
		return nil, &UnknownFlowError{Flow: name}
	}
	return g, nil
}

// Lookup reads the records stored under key in a flow's materialized view.
// The key is hashed to its owning partition; the read serializes against
// that partition's worker on the view's lock.
func (e *Engine) Lookup(flowName string, key record.Key) ([]*record.Record, error) {
	g, err := e.flow(flowName)
	if err != nil {
		return nil, err
	}
	p := PartitionOfKey(key, e.partitionCount)
	return g.MatView(p).Lookup(key), nil
}

// Contains reports whether a flow's view holds any record under key.
func (e *Engine) Contains(flowName string, key record.Key) (bool, error) {
	g, err := e.flow(flowName)
	if err != nil {
		return false, err
	}
	p := PartitionOfKey(key, e.partitionCount)
	return g.MatView(p).Contains(key), nil
}

// All returns every record of a flow's materialized view across partitions.
func (e *Engine) All(flowName string) ([]*record.Record, error) {
	g, err := e.flow(flowName)
	if err != nil {
		return nil, err
	}
	var out []*record.Record
	for _, view := range g.MatViews() {
		out = append(out, view.All()...)
	}
	return out, nil
}

// Size returns the total record count of a flow's materialized view.
func (e *Engine) Size(flowName string) (int, error) {
	g, err := e.flow(flowName)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, view := range g.MatViews() {
		n += view.Count()
	}
	return n, nil
}

// OutputSchema returns the schema of a flow's materialized view, useful for
// building lookup keys.
func (e *Engine) OutputSchema(flowName string) (*record.Schema, error) {
	g, err := e.flow(flowName)
	if err != nil {
		return nil, err
	}
	return g.OutputSchema(), nil
}

// MatViewKeyCols returns the key columns of a flow's materialized view.
func (e *Engine) MatViewKeyCols(flowName string) ([]record.ColumnID, error) {
	g, err := e.flow(flowName)
	if err != nil {
		return nil, err
	}
	return g.MatViewKeyCols(), nil
}

// SizeInMemory sums the operator state held by all flows.
func (e *Engine) SizeInMemory() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var size uint64
	for _, g := range e.flows {
		size += g.SizeInMemory()
	}
	return size
}

// Shutdown drains in-flight batches, stops all workers, and joins them.
// Idempotent; ingress attempted afterwards returns ErrShutdown.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.down {
		e.mu.Unlock()
		return
	}
	e.down = true
	e.mu.Unlock()

	// Let batches enqueued just before shutdown reach the workers, then
	// wait for the channels to quiesce before stopping anyone: a draining
	// worker may still trigger exchange traffic into its peers.
	time.Sleep(drainWindow)
	deadline := time.Now().Add(5 * time.Second)
	idle := 0
	for time.Now().Before(deadline) && idle < 3 {
		// A worker mid-batch can briefly leave every queue empty and then
		// emit exchange traffic; require a few consecutive empty probes.
		if e.pendingMessages() == 0 {
			idle++
		} else {
			idle = 0
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, stop := range e.stopChans {
		stop.SendInput(channel.Stop{})
	}
	e.wg.Wait()
	e.log.Info("dataflow engine shut down")
}

// pendingMessages sums the depth of every worker's channels.
func (e *Engine) pendingMessages() int {
	n := 0
	for _, w := range e.workers {
		n += w.pendingMessages()
	}
	return n
}
