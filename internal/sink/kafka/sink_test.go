package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/kafka"
)

type recorder struct {
	calls  int
	events []kafka.Event
	err    error
}

func (r *recorder) PublishBatch(_ context.Context, events []kafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.calls++
	r.events = append(r.events, events...)
	return nil
}

func TestSinkPublishesRunInOrder(t *testing.T) {
	pub := &recorder{}
	s := NewSink(pub, "run-7", 2)
	ctx := context.Background()

	require.NoError(t, s.Emit(ctx, itemset.Itemset{Items: []int{2}, Utility: 5}))
	require.NoError(t, s.Emit(ctx, itemset.Itemset{Items: []int{3}, Utility: 6}))
	assert.Equal(t, 1, pub.calls)
	require.NoError(t, s.Emit(ctx, itemset.Itemset{Items: []int{2, 3}, Utility: 8}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.Len(t, pub.events, 4)
	for i, e := range pub.events {
		assert.Equal(t, "run-7", e.Key)
		m := e.Value.(Message)
		assert.Equal(t, "run-7", m.RunID)
		if i < 3 {
			assert.Equal(t, TypeItemset, m.Type)
			assert.Equal(t, i, m.Seq)
		}
	}
	last := pub.events[3].Value.(Message)
	assert.Equal(t, TypeComplete, last.Type)
	assert.Equal(t, 3, last.Count)
}

func TestSinkPublishFailureIsOutputError(t *testing.T) {
	pub := &recorder{err: errors.New("broker unavailable")}
	s := NewSink(pub, "run-8", 1)
	err := s.Emit(context.Background(), itemset.Itemset{Items: []int{1}})
	assert.ErrorIs(t, err, apperrors.ErrOutput)
}

func TestAbortDropsBufferedEvents(t *testing.T) {
	pub := &recorder{}
	s := NewSink(pub, "run-9", 10)
	require.NoError(t, s.Emit(context.Background(), itemset.Itemset{Items: []int{1}}))
	require.NoError(t, s.Abort())
	require.NoError(t, s.Close())
	assert.Empty(t, pub.events)
}
