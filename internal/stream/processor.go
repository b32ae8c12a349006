// Package stream turns a Kafka topic of transaction batches into a running
// mining job: each batch is folded into an incremental miner, the database
// is re-mined, and the result set is published as one keyed run.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/incremental"
	sinkkafka "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/sink/kafka"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/metrics"
)

// Batch is the JSON payload of a transaction-batch message. Data holds rows
// in the text input format. Redelivery is detected by BatchID, or by the
// content fingerprint when BatchID is empty; producers that send the same
// rows twice on purpose must set distinct batch ids.
type Batch struct {
	BatchID string `json:"batch_id"`
	Data    string `json:"data"`
}

// Config tunes a Processor.
type Config struct {
	// MineEvery re-mines after every MineEvery-th appended batch.
	MineEvery int
	// PublishBatchSize is the number of itemsets per produced write.
	PublishBatchSize int
}

// Processor is the MessageHandler of the batch consumer.
type Processor struct {
	mu      sync.Mutex
	miner   *incremental.Miner
	pub     kafka.Publisher
	metrics *metrics.Metrics
	cfg     Config
	applied map[string]struct{}
	pending int
	logger  *slog.Logger
}

// NewProcessor wraps m. pub receives the mined runs; met may be nil.
func NewProcessor(m *incremental.Miner, pub kafka.Publisher, met *metrics.Metrics, cfg Config) *Processor {
	if cfg.MineEvery <= 0 {
		cfg.MineEvery = 1
	}
	return &Processor{
		miner:   m,
		pub:     pub,
		metrics: met,
		cfg:     cfg,
		applied: make(map[string]struct{}),
		logger:  slog.Default().With("component", "stream-processor"),
	}
}

// Handle appends one batch and, when due, re-mines. Malformed batches are
// logged and acknowledged so they cannot block the partition; other
// failures are returned so the message is not committed.
func (p *Processor) Handle(ctx context.Context, key, value []byte) error {
	batch, err := kafka.DecodeJSON[Batch](value)
	if err != nil {
		p.logger.Warn("skipping undecodable batch", "key", string(key), "error", err)
		return nil
	}
	d, err := dataset.Parse(strings.NewReader(batch.Data))
	if err != nil {
		p.logger.Warn("skipping malformed batch", "batch_id", batch.BatchID, "error", err)
		return nil
	}

	id := batch.BatchID
	if id == "" {
		id = "sha256:" + d.Fingerprint()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.applied[id]; ok {
		p.logger.Info("skipping redelivered batch", "batch_id", id)
		return p.mineIfDue(ctx)
	}
	if err := p.miner.Append(ctx, d); err != nil {
		if errors.Is(err, apperrors.ErrMalformedInput) {
			p.logger.Warn("skipping rejected batch", "batch_id", id, "error", err)
			return nil
		}
		return fmt.Errorf("appending batch %s: %w", id, err)
	}
	p.applied[id] = struct{}{}
	if p.metrics != nil {
		p.metrics.BatchesAppended.Inc()
		p.metrics.TransactionsAppended.Add(float64(d.Len()))
	}

	p.pending++
	return p.mineIfDue(ctx)
}

// mineIfDue runs a mining pass once MineEvery batches are pending. A
// redelivered batch whose pass failed retries it here.
func (p *Processor) mineIfDue(ctx context.Context) error {
	if p.pending < p.cfg.MineEvery {
		return nil
	}
	if err := p.mine(ctx); err != nil {
		return err
	}
	p.pending = 0
	return nil
}

// Flush re-mines if batches were appended since the last run.
func (p *Processor) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == 0 {
		return nil
	}
	if err := p.mine(ctx); err != nil {
		return err
	}
	p.pending = 0
	return nil
}

func (p *Processor) mine(ctx context.Context) error {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	out := sinkkafka.NewSink(p.pub, runID, p.cfg.PublishBatchSize)

	res, err := p.miner.Mine(ctx, out)
	if err == nil {
		err = out.Close()
	}
	p.record(res, err)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidConfig) {
			// The database is still smaller than the partition count.
			p.logger.Info("deferring mining", "reason", err)
			return nil
		}
		return fmt.Errorf("mining run %s: %w", runID, err)
	}
	p.logger.Info("published mining run",
		"run_id", runID,
		"transactions", res.Transactions,
		"itemsets", res.Stats.Emitted,
	)
	return nil
}

func (p *Processor) record(res *miner.Result, err error) {
	if p.metrics == nil {
		return
	}
	sample := metrics.RunSample{
		Mode:   p.miner.Options().Mode.String(),
		Status: miner.RunStatus(err),
	}
	if res != nil {
		sample.Duration = res.Duration
		sample.Emitted = res.Stats.Emitted
		sample.Visited = res.Stats.Visited
		sample.Pruned = res.Stats.Pruned()
	}
	p.metrics.RecordRun(sample)
}
