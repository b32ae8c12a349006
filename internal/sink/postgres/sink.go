package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/resilience"
)

const defaultBatchSize = 500

// Sink buffers the itemsets of one run and writes them in batches. Close
// flushes the remainder and marks the run completed; Abort deletes the run,
// also after a completed Close.
type Sink struct {
	mu        sync.Mutex
	store     Store
	runID     string
	batchSize int
	buf       []itemset.Itemset
	count     int
	closed    bool
	aborted   bool
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

// Config configures a Sink.
type Config struct {
	RunID      string
	Mode       string
	MinUtility int64
	BatchSize  int
	Retry      resilience.RetryConfig
}

// NewSink registers the run and returns a sink writing to it.
func NewSink(ctx context.Context, store Store, cfg Config) (*Sink, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	run := RunInfo{
		ID:         cfg.RunID,
		Mode:       cfg.Mode,
		MinUtility: cfg.MinUtility,
		StartedAt:  time.Now().UTC(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrOutput, err)
	}
	return &Sink{
		store:     store,
		runID:     cfg.RunID,
		batchSize: cfg.BatchSize,
		buf:       make([]itemset.Itemset, 0, cfg.BatchSize),
		retry:     cfg.Retry,
		logger:    slog.Default().With("component", "postgres-sink", "run_id", cfg.RunID),
	}, nil
}

func (s *Sink) Emit(ctx context.Context, rec itemset.Itemset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.aborted {
		return fmt.Errorf("%w: run %s already finalised", apperrors.ErrOutput, s.runID)
	}
	s.buf = append(s.buf, rec)
	if len(s.buf) >= s.batchSize {
		return s.flush(ctx)
	}
	return nil
}

// Close flushes buffered itemsets and marks the run completed. On failure
// the run stays open and the caller is expected to Abort.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.aborted {
		return nil
	}
	ctx := context.Background()
	if err := s.flush(ctx); err != nil {
		return err
	}
	err := resilience.Retry(ctx, "finish_run", s.retry, func() error {
		return s.store.FinishRun(ctx, s.runID, s.count)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrOutput, err)
	}
	s.closed = true
	s.logger.Info("run persisted", "itemsets", s.count)
	return nil
}

// Abort deletes the run and everything written for it.
func (s *Sink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return nil
	}
	s.aborted = true
	s.buf = nil
	if err := s.store.DeleteRun(context.Background(), s.runID); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrOutput, err)
	}
	s.logger.Warn("run discarded", "written", s.count)
	return nil
}

// Count is the number of itemsets written so far.
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Sink) flush(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	batch := s.buf
	err := resilience.Retry(ctx, "insert_itemsets", s.retry, func() error {
		return s.store.InsertItemsets(ctx, s.runID, batch)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrOutput, err)
	}
	s.count += len(batch)
	s.buf = make([]itemset.Itemset, 0, s.batchSize)
	return nil
}
