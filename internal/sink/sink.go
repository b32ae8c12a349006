// Package sink provides destinations for mined itemsets: an in-memory store
// grouped by length, an atomically written result file and a fan-out over
// several sinks. Database and message-bus sinks live in subpackages.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
)

// Sink receives the itemsets of one run. Close finalises the output.
type Sink interface {
	Emit(ctx context.Context, rec itemset.Itemset) error
	Close() error
}

// Aborter is implemented by sinks that can discard partial output. After
// Abort, Close is a no-op. Abort after a successful Close retracts the output
// where the destination allows it.
type Aborter interface {
	Abort() error
}

// Memory accumulates itemsets in a Store.
type Memory struct {
	store *itemset.Store
}

func NewMemory() *Memory {
	return &Memory{store: itemset.NewStore()}
}

func (m *Memory) Emit(_ context.Context, rec itemset.Itemset) error {
	m.store.Add(rec)
	return nil
}

func (m *Memory) Close() error { return nil }

// Store exposes the accumulated itemsets for subset and superset queries.
func (m *Memory) Store() *itemset.Store {
	return m.store
}

// Itemsets returns the accumulated itemsets ordered by length, then items.
func (m *Memory) Itemsets() []itemset.Itemset {
	return m.store.All()
}

// Multi forwards every itemset to each of its sinks in order.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Emit(ctx context.Context, rec itemset.Itemset) error {
	for _, s := range m.sinks {
		if err := s.Emit(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close finalises the sinks in order. When one fails, the remaining sinks
// are never finalised and every sink is aborted, so sinks whose output
// cannot be retracted belong at the end of the list.
func (m *Multi) Close() error {
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			if abortErr := m.Abort(); abortErr != nil {
				err = errors.Join(err, abortErr)
			}
			return fmt.Errorf("%w: %w", apperrors.ErrOutput, err)
		}
	}
	return nil
}

// Abort aborts every sink that supports it.
func (m *Multi) Abort() error {
	var errs []error
	for _, s := range m.sinks {
		if a, ok := s.(Aborter); ok {
			if err := a.Abort(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
