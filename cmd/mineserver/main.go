// Command mineserver serves the mining HTTP API.
//
// Clients upload a transaction database with thresholds and receive the
// selected itemsets. Results are cached in Redis keyed by dataset content
// and options; runs can optionally be persisted to PostgreSQL. Redis and
// PostgreSQL are optional: the service starts without them and reports
// degraded readiness.
//
// Usage:
//
//	go run ./cmd/mineserver [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/server/handler"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/server/router"
	pgsink "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/sink/postgres"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting mining service", "port", cfg.Server.Port)

	m := metrics.New()
	checker := health.NewChecker()

	var resultCache *cache.Cache
	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, result cache disabled", "error", err)
	} else {
		defer rdb.Close()
		resultCache = cache.New(rdb, cache.Config{
			TTL: cfg.Redis.CacheTTL,
			Breaker: resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			},
			OnLookup: func(hit bool) {
				if hit {
					m.CacheHitsTotal.Inc()
				} else {
					m.CacheMissesTotal.Inc()
				}
			},
		})
		checker.Register("redis", health.Ping(rdb.Ping, true))
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	var runs handler.RunStore
	if cfg.Output.Postgres {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repo := pgsink.NewRepository(db)
		if err := repo.Migrate(context.Background()); err != nil {
			slog.Error("failed to migrate result schema", "error", err)
			os.Exit(1)
		}
		runs = repo
		checker.Register("postgres", health.Ping(db.Ping, false))
		slog.Info("connected to postgres")
	}

	h := handler.New(handler.Config{
		Miner:        cfg.Miner,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		BatchSize:    cfg.Postgres.BatchSize,
	}, resultCache, runs, m)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)
	chain := router.New(h, router.Options{
		Health:         checker,
		Metrics:        m,
		Limiter:        limiter,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Prune(); n > 0 {
					slog.Debug("pruned idle rate limiters", "count", n)
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("mining service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("mining service stopped")
}
