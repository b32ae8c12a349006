package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/tracing"
)

// Sink receives the itemsets of a run.
type Sink interface {
	Emit(ctx context.Context, rec itemset.Itemset) error
}

// Aborter is implemented by sinks that can discard partial output.
type Aborter interface {
	Abort() error
}

// Result summarises a completed run.
type Result struct {
	RunID        string
	Mode         Mode
	Transactions int
	Items        int
	Stats        Stats
	Duration     time.Duration
}

// Run validates opts, builds the database from src and streams every
// selected itemset to sink. When the run fails after output started and
// sink is an Aborter, the partial output is discarded.
func Run(ctx context.Context, src dataset.Source, sink Sink, opts Options) (*Result, error) {
	start := time.Now()
	if err := opts.Validate(src.Len()); err != nil {
		return nil, err
	}

	runID := logger.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logger.WithRunID(ctx, runID)
	}
	log := logger.FromContext(ctx).With("component", "miner")

	ctx, span := tracing.StartSpan(ctx, "mine", runID)
	span.SetAttr("mode", opts.Mode.String())
	defer func() {
		span.End()
		if opts.Trace {
			span.Log()
		}
	}()

	log.Info("mining started",
		"transactions", src.Len(),
		"min_utility", opts.MinUtility,
		"mode", opts.Mode.String(),
		"workers", opts.Workers,
	)

	db, err := Build(ctx, src, opts)
	if err != nil {
		log.Error("building database failed", "error", err)
		return nil, err
	}

	stats, err := SearchSink(ctx, db, opts, sink)
	if err != nil {
		log.Error("mining failed", "error", err, "emitted", stats.Emitted)
		return nil, err
	}

	res := &Result{
		RunID:        runID,
		Mode:         opts.Mode,
		Transactions: src.Len(),
		Items:        len(db.Items),
		Stats:        stats,
		Duration:     time.Since(start),
	}
	log.Info("mining completed",
		"itemsets", stats.Emitted,
		"visited", stats.Visited,
		"joins", stats.Joins,
		"eucp_pruned", stats.EUCPPruned,
		"la_pruned", stats.LAPruned,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// SearchSink searches db and streams the results to sink. Emit failures
// wrap ErrOutput. On any failure a sink implementing Aborter is told to
// discard its partial output.
func SearchSink(ctx context.Context, db *Database, opts Options, sink Sink) (Stats, error) {
	searchCtx, span := tracing.StartChildSpan(ctx, "search")
	stats, err := Search(searchCtx, db, opts, func(rec itemset.Itemset) error {
		if err := sink.Emit(ctx, rec); err != nil {
			if errors.Is(err, apperrors.ErrOutput) {
				return err
			}
			return fmt.Errorf("%w: %w", apperrors.ErrOutput, err)
		}
		return nil
	})
	span.SetAttr("emitted", stats.Emitted)
	span.SetAttr("visited", stats.Visited)
	span.End()
	if err != nil {
		if a, ok := sink.(Aborter); ok {
			if abortErr := a.Abort(); abortErr != nil {
				logger.FromContext(ctx).Warn("discarding partial output failed", "error", abortErr)
			}
		}
		return stats, err
	}
	return stats, nil
}
