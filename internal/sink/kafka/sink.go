// Package kafka publishes mined itemsets as JSON events. Every event of a
// run is keyed by the run id so the run stays ordered on one partition.
package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/kafka"
)

// Event types carried in Message.Type.
const (
	TypeItemset  = "itemset"
	TypeComplete = "complete"
)

// Message is the JSON payload of one event. A run is a sequence of itemset
// messages followed by one complete message carrying the count.
type Message struct {
	RunID   string           `json:"run_id"`
	Type    string           `json:"type"`
	Seq     int              `json:"seq"`
	Itemset *itemset.Itemset `json:"itemset,omitempty"`
	Count   int              `json:"count,omitempty"`
}

// Sink batches itemsets and publishes them through a kafka.Publisher.
type Sink struct {
	mu        sync.Mutex
	pub       kafka.Publisher
	runID     string
	batchSize int
	buf       []kafka.Event
	seq       int
	closed    bool
}

func NewSink(pub kafka.Publisher, runID string, batchSize int) *Sink {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sink{pub: pub, runID: runID, batchSize: batchSize}
}

func (s *Sink) Emit(ctx context.Context, rec itemset.Itemset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: result stream %s already closed", apperrors.ErrOutput, s.runID)
	}
	s.buf = append(s.buf, s.event(Message{Type: TypeItemset, Itemset: &rec}))
	if len(s.buf) >= s.batchSize {
		return s.flush(ctx)
	}
	return nil
}

// Close publishes the buffered itemsets and the completion marker.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	count := s.seq
	s.buf = append(s.buf, s.event(Message{Type: TypeComplete, Count: count}))
	return s.flush(context.Background())
}

// Abort drops buffered events. Published events cannot be recalled;
// consumers discard runs that never complete.
func (s *Sink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buf = nil
	return nil
}

func (s *Sink) event(m Message) kafka.Event {
	m.RunID = s.runID
	m.Seq = s.seq
	if m.Type == TypeItemset {
		s.seq++
	}
	return kafka.Event{Key: s.runID, Value: m}
}

func (s *Sink) flush(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	if err := s.pub.PublishBatch(ctx, s.buf); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrOutput, err)
	}
	s.buf = s.buf[:0]
	return nil
}
