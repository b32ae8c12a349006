// Command huim mines the high-utility itemsets of a transaction file.
//
// Results are written to the configured output file and, when enabled, to
// the PostgreSQL result store and the Kafka results topic. A run that fails
// leaves no partial output behind.
//
// Usage:
//
//	go run ./cmd/huim -input data/retail.txt [-config configs/development.yaml] [-min-utility 5000] [-mode closed]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/sink"
	sinkkafka "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/sink/kafka"
	pgsink "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/sink/postgres"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	input := flag.String("input", "", "transaction file to mine")
	output := flag.String("output", "", "result file (overrides output.path)")
	minUtility := flag.Int64("min-utility", 0, "minimum utility (overrides miner.minUtility)")
	mode := flag.String("mode", "", "all, closed, generators or minimal (overrides miner.mode)")
	workers := flag.Int("workers", 0, "parallel subtree workers (overrides miner.workers)")
	trace := flag.Bool("trace", false, "log the span tree of the run phases")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: huim -input FILE [-config FILE] [-min-utility N] [-mode MODE]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		if errors.Is(err, apperrors.ErrInvalidConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	if *output != "" {
		cfg.Output.Path = *output
	}
	if *minUtility != 0 {
		cfg.Miner.MinUtility = *minUtility
	}
	if *mode != "" {
		cfg.Miner.Mode = *mode
	}
	if *workers != 0 {
		cfg.Miner.Workers = *workers
	}

	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Miner.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Miner.Timeout)
		defer cancel()
	}

	res, err := run(ctx, cfg, *input, *trace || cfg.Tracing.Enabled)
	if err != nil {
		slog.Error("mining failed", "error", err)
		if errors.Is(err, apperrors.ErrMalformedInput) || errors.Is(err, apperrors.ErrInvalidConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	fmt.Printf("run:          %s\n", res.RunID)
	fmt.Printf("mode:         %s\n", res.Mode)
	fmt.Printf("transactions: %d\n", res.Transactions)
	fmt.Printf("items:        %d\n", res.Items)
	fmt.Printf("itemsets:     %d\n", res.Stats.Emitted)
	fmt.Printf("candidates:   %d (joins %d)\n", res.Stats.Visited, res.Stats.Joins)
	for _, rule := range []string{"eucp", "lookahead", "partition", "bound", "policy", "certify"} {
		if n := res.Stats.Pruned()[rule]; n > 0 {
			fmt.Printf("pruned %-9s %d\n", rule+":", n)
		}
	}
	fmt.Printf("duration:     %s\n", res.Duration)
	fmt.Printf("output:       %s\n", cfg.Output.Path)
}

func run(ctx context.Context, cfg *config.Config, input string, trace bool) (*miner.Result, error) {
	opts, err := miner.OptionsFromConfig(cfg.Miner)
	if err != nil {
		return nil, err
	}
	opts.Trace = trace

	d, err := dataset.ParseFile(input)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(d.Len()); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)

	file, err := sink.NewFile(cfg.Output.Path)
	if err != nil {
		return nil, err
	}
	var sinks []sink.Sink

	if cfg.Output.Postgres {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			file.Abort()
			return nil, fmt.Errorf("%w: %w", apperrors.ErrOutput, err)
		}
		defer db.Close()
		repo := pgsink.NewRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			file.Abort()
			return nil, fmt.Errorf("%w: %w", apperrors.ErrOutput, err)
		}
		pg, err := pgsink.NewSink(ctx, repo, pgsink.Config{
			RunID:      runID,
			Mode:       opts.Mode.String(),
			MinUtility: opts.MinUtility,
			BatchSize:  cfg.Postgres.BatchSize,
		})
		if err != nil {
			file.Abort()
			return nil, err
		}
		sinks = append(sinks, pg)
	}
	if cfg.Output.Kafka {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.MiningResults)
		defer producer.Close()
		sinks = append(sinks, sinkkafka.NewSink(producer, runID, 0))
	}

	// The result file is renamed into place last, once every other
	// destination has accepted the run.
	out := sink.NewMulti(append(sinks, file)...)
	res, err := miner.Run(ctx, d, out, opts)
	if err == nil {
		err = out.Close()
	}
	if err != nil {
		if abortErr := out.Abort(); abortErr != nil {
			slog.Warn("discarding partial output failed", "run_id", runID, "error", abortErr)
		}
		return nil, err
	}
	return res, nil
}
