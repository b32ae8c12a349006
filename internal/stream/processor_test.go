package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/incremental"
	sinkkafka "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/sink/kafka"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/metrics"
)

type recorder struct {
	events []kafka.Event
	err    error
}

func (r *recorder) PublishBatch(_ context.Context, events []kafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, events...)
	return nil
}

// runs groups published messages by run, in publication order.
func (r *recorder) runs() [][]sinkkafka.Message {
	var out [][]sinkkafka.Message
	var cur []sinkkafka.Message
	for _, e := range r.events {
		m := e.Value.(sinkkafka.Message)
		cur = append(cur, m)
		if m.Type == sinkkafka.TypeComplete {
			out = append(out, cur)
			cur = nil
		}
	}
	return out
}

func message(t *testing.T, b Batch) []byte {
	t.Helper()
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	return raw
}

func newProcessor(t *testing.T, cfg Config) (*Processor, *recorder, *metrics.Metrics) {
	t.Helper()
	m, err := incremental.New(miner.DefaultOptions(5))
	require.NoError(t, err)
	pub := &recorder{}
	met := metrics.NewWithRegistry(prometheus.NewRegistry())
	return NewProcessor(m, pub, met, cfg), pub, met
}

func TestBatchesAreFoldedAndMined(t *testing.T) {
	p, pub, met := newProcessor(t, Config{})
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, nil, message(t, Batch{BatchID: "b1", Data: "1 2 3:4:1 2 1\n"})))
	require.NoError(t, p.Handle(ctx, nil, message(t, Batch{BatchID: "b2", Data: "2 3:5:3 2\n1 3:5:2 3\n"})))

	runs := pub.runs()
	require.Len(t, runs, 2)
	assert.Equal(t, 0, runs[0][len(runs[0])-1].Count)

	last := runs[1]
	assert.Equal(t, 4, last[len(last)-1].Count)
	got := make(map[string]int64)
	for _, m := range last[:len(last)-1] {
		got[m.Itemset.Key()] = m.Itemset.Utility
	}
	assert.Equal(t, map[string]int64{"2": 5, "3": 6, "1 3": 7, "2 3": 8}, got)

	assert.Equal(t, 2.0, testutil.ToFloat64(met.BatchesAppended))
	assert.Equal(t, 3.0, testutil.ToFloat64(met.TransactionsAppended))
	assert.Equal(t, 2.0, testutil.ToFloat64(met.MiningRunsTotal.WithLabelValues("all", "ok")))
}

func TestRedeliveredBatchIsSkipped(t *testing.T) {
	p, pub, _ := newProcessor(t, Config{})
	ctx := context.Background()
	msg := message(t, Batch{BatchID: "b1", Data: "2 3:5:3 2\n"})

	require.NoError(t, p.Handle(ctx, nil, msg))
	require.NoError(t, p.Handle(ctx, nil, msg))
	assert.Equal(t, 1, p.miner.Len())
	assert.Len(t, pub.runs(), 1)
}

func TestRedeliveredBatchWithoutIDIsSkipped(t *testing.T) {
	p, _, met := newProcessor(t, Config{})
	ctx := context.Background()
	msg := message(t, Batch{Data: "1 2 3:4:1 2 1\n2 3:5:3 2\n"})

	require.NoError(t, p.Handle(ctx, nil, msg))
	require.NoError(t, p.Handle(ctx, nil, msg))
	assert.Equal(t, 2, p.miner.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(met.BatchesAppended))

	require.NoError(t, p.Handle(ctx, nil, message(t, Batch{Data: "1 3:5:2 3\n"})))
	assert.Equal(t, 3, p.miner.Len())
}

func TestRedeliveryRetriesFailedMiningPass(t *testing.T) {
	p, pub, _ := newProcessor(t, Config{})
	ctx := context.Background()
	msg := message(t, Batch{BatchID: "b1", Data: "2 3:5:3 2\n"})

	pub.err = errors.New("broker unavailable")
	require.Error(t, p.Handle(ctx, nil, msg))
	assert.Empty(t, pub.runs())

	pub.err = nil
	require.NoError(t, p.Handle(ctx, nil, msg))
	assert.Equal(t, 1, p.miner.Len())
	assert.Len(t, pub.runs(), 1)
}

func TestMalformedBatchesAreAcknowledged(t *testing.T) {
	p, pub, _ := newProcessor(t, Config{})
	ctx := context.Background()

	assert.NoError(t, p.Handle(ctx, nil, []byte("{")))
	assert.NoError(t, p.Handle(ctx, nil, message(t, Batch{Data: "1 2:x:1 2\n"})))
	assert.NoError(t, p.Handle(ctx, nil, message(t, Batch{Data: "1 2:1:3 -2\n"})))
	assert.Equal(t, 0, p.miner.Len())
	assert.Empty(t, pub.events)
}

func TestMineEveryAndFlush(t *testing.T) {
	p, pub, _ := newProcessor(t, Config{MineEvery: 3})
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, nil, message(t, Batch{Data: "1 2 3:4:1 2 1\n"})))
	require.NoError(t, p.Handle(ctx, nil, message(t, Batch{Data: "2 3:5:3 2\n"})))
	assert.Empty(t, pub.events)

	require.NoError(t, p.Flush(ctx))
	assert.Len(t, pub.runs(), 1)
	require.NoError(t, p.Flush(ctx))
	assert.Len(t, pub.runs(), 1)
}

func TestPublishFailureIsReturned(t *testing.T) {
	p, pub, met := newProcessor(t, Config{})
	pub.err = errors.New("broker unavailable")

	err := p.Handle(context.Background(), nil, message(t, Batch{Data: "2 3:5:3 2\n"}))
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(met.MiningRunsTotal.WithLabelValues("all", "error")))
}
