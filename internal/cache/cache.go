// Package cache stores mining results in Redis, keyed by the dataset
// content and the options that affect the result set. Concurrent requests
// for the same key share one computation, and a circuit breaker bypasses
// Redis while it is failing.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/resilience"
)

const defaultPrefix = "huim:result:"

// Backend is the key-value store behind the cache. Get returns redis.Nil
// for a missing key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Summary describes the run that produced a cached result.
type Summary struct {
	RunID        string           `json:"run_id"`
	Mode         string           `json:"mode"`
	Transactions int              `json:"transactions"`
	Items        int              `json:"items"`
	Itemsets     int              `json:"itemsets"`
	Visited      int64            `json:"visited"`
	Pruned       map[string]int64 `json:"pruned"`
	DurationMS   int64            `json:"duration_ms"`
}

// SummaryOf converts a miner result.
func SummaryOf(res *miner.Result) Summary {
	return Summary{
		RunID:        res.RunID,
		Mode:         res.Mode.String(),
		Transactions: res.Transactions,
		Items:        res.Items,
		Itemsets:     int(res.Stats.Emitted),
		Visited:      res.Stats.Visited,
		Pruned:       res.Stats.Pruned(),
		DurationMS:   res.Duration.Milliseconds(),
	}
}

// Entry is one cached result.
type Entry struct {
	Summary  Summary           `json:"summary"`
	Itemsets []itemset.Itemset `json:"itemsets"`
}

// Config configures a Cache.
type Config struct {
	TTL     time.Duration
	Prefix  string
	Breaker resilience.CircuitBreakerConfig
	// OnLookup observes every lookup, e.g. to feed hit and miss counters.
	OnLookup func(hit bool)
}

// Stats are the lookup counters since start.
type Stats struct {
	Hits     int64  `json:"hits"`
	Misses   int64  `json:"misses"`
	Errors   int64  `json:"errors"`
	Computes int64  `json:"computes"`
	Breaker  string `json:"breaker"`
}

// Cache is a read-through result cache.
type Cache struct {
	backend  Backend
	ttl      time.Duration
	prefix   string
	group    singleflight.Group
	breaker  *resilience.CircuitBreaker
	onLookup func(bool)
	logger   *slog.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	errors   atomic.Int64
	computes atomic.Int64
}

func New(backend Backend, cfg Config) *Cache {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	return &Cache{
		backend:  backend,
		ttl:      cfg.TTL,
		prefix:   cfg.Prefix,
		breaker:  resilience.NewCircuitBreaker("result-cache", cfg.Breaker),
		onLookup: cfg.OnLookup,
		logger:   slog.Default().With("component", "result-cache"),
	}
}

// Key derives the cache key of mining a dataset with the given fingerprint
// under opts. Options that cannot change the result set are ignored.
func (c *Cache) Key(fingerprint string, opts miner.Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|u=%d|s=%d|len=%d-%d|p=%d|neg=%t|mode=%s|gen=%t",
		fingerprint, opts.MinUtility, opts.MinSupport, opts.MinLength, opts.MaxLength,
		opts.Partitions, opts.AllowNegative, opts.Mode, opts.FlagGenerators)
	if p := opts.Periodicity; p != nil {
		fmt.Fprintf(h, "|per=%d-%d|avg=%g-%g", p.MinPer, p.MaxPer, p.MinAvg, p.MaxAvg)
	}
	return fmt.Sprintf("%s%x", c.prefix, h.Sum(nil))
}

// GetOrCompute returns the cached entry for key, or runs compute and stores
// its result. The bool reports a cache hit. Backend failures degrade to
// computing without the cache.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (*Entry, error)) (*Entry, bool, error) {
	if e, ok := c.lookup(ctx, key); ok {
		return e, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		c.computes.Add(1)
		e, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, e)
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}

// Invalidate removes every cached result and returns how many were removed.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	var n int64
	err := c.breaker.Execute(func() error {
		var err error
		n, err = c.backend.FlushByPattern(ctx, c.prefix+"*")
		return err
	})
	if err != nil {
		return n, fmt.Errorf("invalidating result cache: %w", err)
	}
	c.logger.Info("result cache invalidated", "keys", n)
	return n, nil
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Errors:   c.errors.Load(),
		Computes: c.computes.Load(),
		Breaker:  c.breaker.GetState().String(),
	}
}

// Breaker exposes the circuit breaker guarding the backend.
func (c *Cache) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

func (c *Cache) lookup(ctx context.Context, key string) (*Entry, bool) {
	var raw []byte
	err := c.breaker.Execute(func() error {
		var err error
		raw, err = c.backend.Get(ctx, key)
		if redis.IsNilError(err) {
			raw = nil
			return nil
		}
		return err
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache lookup failed", "error", err)
		c.observe(false)
		return nil, false
	}
	if raw == nil {
		c.observe(false)
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.errors.Add(1)
		c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		c.observe(false)
		return nil, false
	}
	c.observe(true)
	return &e, true
}

func (c *Cache) store(ctx context.Context, key string, e *Entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("encoding cache entry failed", "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, raw, c.ttl)
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache store failed", "error", err)
	}
}

func (c *Cache) observe(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}
