// Command streamminer mines a stream of transaction batches.
//
// Batches are consumed from the transaction-batches topic, folded into an
// incremental miner and re-mined; every run is published to the
// mining-results topic as itemset events keyed by run id, closed by a
// completion event.
//
// Usage:
//
//	go run ./cmd/streamminer [-config configs/development.yaml] [-mine-every 1]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/incremental"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/stream"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	mineEvery := flag.Int("mine-every", 1, "re-mine after this many batches")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting stream miner",
		"batches_topic", cfg.Kafka.Topics.TransactionBatches,
		"results_topic", cfg.Kafka.Topics.MiningResults,
		"min_utility", cfg.Miner.MinUtility,
	)

	opts, err := miner.OptionsFromConfig(cfg.Miner)
	if err != nil {
		slog.Error("invalid miner configuration", "error", err)
		os.Exit(1)
	}
	inc, err := incremental.New(opts)
	if err != nil {
		slog.Error("invalid miner configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.MiningResults)
	defer producer.Close()

	processor := stream.NewProcessor(inc, producer, m, stream.Config{MineEvery: *mineEvery})
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.TransactionBatches, processor.Handle)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsDone <-chan struct{}
	if cfg.Metrics.Enabled {
		metricsDone = metrics.Serve(ctx, cfg.Metrics.Port)
	}

	slog.Info("stream miner ready", "group", cfg.Kafka.ConsumerGroup)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	if err := processor.Flush(context.Background()); err != nil {
		slog.Error("final mining run failed", "error", err)
	}
	stop()
	if metricsDone != nil {
		<-metricsDone
	}
	slog.Info("stream miner stopped",
		"transactions", inc.Len(),
		"batches", inc.Batches(),
	)
}
