package ops

import (
	"testing"

	"github.com/brownsys/k9db/dataflow/channel"
	"github.com/brownsys/k9db/dataflow/record"
)

// exchangeFixture builds an exchange for partition 0 of 3 with channels to
// partitions 1 and 2.
func exchangeFixture(t *testing.T) (*ExchangeOperator, map[record.PartitionIndex]*channel.Channel, *record.Schema) {
	t.Helper()
	peers := map[record.PartitionIndex]*channel.Channel{
		1: channel.New(3, func() {}),
		2: channel.New(3, func() {}),
	}
	schema := schemaIDName()
	ex := NewExchange("flow", []record.ColumnID{0}, 3, peers)
	wireUnary(ex, schema)
	ex.SetPartition(0)
	return ex, peers, schema
}

// TestExchangePartitionsBatch checks records split between the local bucket
// and peer channels by key hash.
func TestExchangePartitionsBatch(t *testing.T) {
	ex, peers, schema := exchangeFixture(t)

	var batch []*record.Record
	for id := uint64(0); id < 30; id++ {
		batch = append(batch, row(schema, true, u(id), txt("x")))
	}
	local := ex.Process(0, batch)

	forwarded := 0
	for p, ch := range peers {
		for _, msg := range ch.Read() {
			b := msg.(channel.Batch)
			if b.Source != ex.Index() || b.Target != ex.Index() {
				t.Errorf("peer batch must address the peer exchange, got %d->%d", b.Source, b.Target)
			}
			for _, r := range b.Records {
				want := record.PartitionIndex(r.Key([]record.ColumnID{0}).Hash() % 3)
				if want != p {
					t.Errorf("record %s routed to partition %d, belongs to %d", r, p, want)
				}
				forwarded++
			}
		}
	}
	for _, r := range local {
		want := record.PartitionIndex(r.Key([]record.ColumnID{0}).Hash() % 3)
		if want != 0 {
			t.Errorf("record %s kept locally, belongs to %d", r, want)
		}
	}
	if forwarded+len(local) != 30 {
		t.Fatalf("lost records: %d forwarded + %d local != 30", forwarded, len(local))
	}
}

// TestExchangeIdempotence checks no message is sent for records already on
// their home partition.
func TestExchangeIdempotence(t *testing.T) {
	ex, peers, schema := exchangeFixture(t)

	// Collect only records that hash to partition 0.
	var home []*record.Record
	for id := uint64(0); len(home) < 10; id++ {
		r := row(schema, true, u(id), txt("x"))
		if record.PartitionIndex(r.Key([]record.ColumnID{0}).Hash()%3) == 0 {
			home = append(home, r)
		}
	}
	local := ex.Process(0, home)
	if len(local) != 10 {
		t.Fatalf("expected all records local, got %d", len(local))
	}
	for p, ch := range peers {
		if msgs := ch.Read(); len(msgs) != 0 {
			t.Errorf("partition %d received %d unnecessary messages", p, len(msgs))
		}
	}
}

// TestExchangePassthroughFromPeer checks batches delivered by a peer
// exchange (source == own index) are not re-routed.
func TestExchangePassthroughFromPeer(t *testing.T) {
	ex, peers, schema := exchangeFixture(t)

	// Records that do NOT belong to partition 0; arriving from a peer they
	// must still pass through untouched.
	var foreign []*record.Record
	for id := uint64(0); len(foreign) < 5; id++ {
		r := row(schema, true, u(id), txt("x"))
		if record.PartitionIndex(r.Key([]record.ColumnID{0}).Hash()%3) != 0 {
			foreign = append(foreign, r)
		}
	}
	out := ex.Process(ex.Index(), foreign)
	if len(out) != 5 {
		t.Fatalf("expected passthrough of 5 records, got %d", len(out))
	}
	for _, ch := range peers {
		if msgs := ch.Read(); len(msgs) != 0 {
			t.Errorf("passthrough must not forward, got %d messages", len(msgs))
		}
	}
}

// TestExchangeSchemaPreserving checks the exchange keeps its input schema.
func TestExchangeSchemaPreserving(t *testing.T) {
	ex, _, schema := exchangeFixture(t)
	if ex.OutputSchema() != schema {
		t.Errorf("exchange must preserve its input schema handle")
	}
}
