// Package handler implements the HTTP endpoints of the mining service:
// synchronous mining of an uploaded database, the result cache and, when a
// result database is configured, lookups of persisted runs.
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/sink"
	pgsink "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/sink/postgres"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/resilience"
)

// RunStore persists runs and reads them back.
type RunStore interface {
	pgsink.Store
	GetRun(ctx context.Context, runID string) (*pgsink.RunInfo, error)
	ListItemsets(ctx context.Context, runID string, limit int) ([]itemset.Itemset, error)
}

// Config holds the request limits and the miner defaults that requests
// override.
type Config struct {
	Miner        config.MinerConfig
	MaxBodyBytes int64
	BatchSize    int
}

// Handler serves the mining API. Cache, Runs and Metrics are optional.
type Handler struct {
	cfg     Config
	cache   *cache.Cache
	runs    RunStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(cfg Config, c *cache.Cache, runs RunStore, m *metrics.Metrics) *Handler {
	return &Handler{
		cfg:     cfg,
		cache:   c,
		runs:    runs,
		metrics: m,
		logger:  slog.Default().With("component", "mine-handler"),
	}
}

// MineRequest is the body of POST /api/v1/mine. Data holds transaction rows
// in the text input format.
type MineRequest struct {
	Data    string          `json:"data"`
	Options *RequestOptions `json:"options,omitempty"`
}

// RequestOptions override the configured miner defaults. Nil fields keep
// the default.
type RequestOptions struct {
	MinUtility     *int64       `json:"min_utility,omitempty"`
	MinSupport     *int         `json:"min_support,omitempty"`
	MinLength      *int         `json:"min_length,omitempty"`
	MaxLength      *int         `json:"max_length,omitempty"`
	Partitions     *int         `json:"partitions,omitempty"`
	AllowNegative  *bool        `json:"allow_negative,omitempty"`
	Mode           *string      `json:"mode,omitempty"`
	FlagGenerators *bool        `json:"flag_generators,omitempty"`
	Periodicity    *Periodicity `json:"periodicity,omitempty"`
	Persist        bool         `json:"persist,omitempty"`
}

// Periodicity enables periodic mining for one request.
type Periodicity struct {
	MinPer int     `json:"min_per"`
	MaxPer int     `json:"max_per"`
	MinAvg float64 `json:"min_avg"`
	MaxAvg float64 `json:"max_avg"`
}

// MineResponse is the result of a mining request.
type MineResponse struct {
	cache.Entry
	Cached    bool `json:"cached"`
	Persisted bool `json:"persisted"`
}

// Mine parses the uploaded database, validates the options and returns
// every selected itemset, serving repeated requests from the cache.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	}
	var req MineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeMessage(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.writeError(w, fmt.Errorf("%w: decoding request body: %w", apperrors.ErrMalformedInput, err))
		return
	}
	d, err := dataset.Parse(strings.NewReader(req.Data))
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts, persist, err := h.options(req.Options)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := opts.Validate(d.Len()); err != nil {
		h.record(opts, nil, err)
		h.writeError(w, err)
		return
	}
	persist = persist && h.runs != nil

	compute := func(ctx context.Context) (*cache.Entry, error) {
		return h.mine(ctx, d, opts, persist)
	}
	var resp MineResponse
	if h.cache != nil && !persist {
		key := h.cache.Key(d.Fingerprint(), opts)
		e, hit, err := h.cache.GetOrCompute(r.Context(), key, compute)
		if err != nil {
			h.writeError(w, err)
			return
		}
		resp = MineResponse{Entry: *e, Cached: hit}
	} else {
		e, err := compute(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		resp = MineResponse{Entry: *e, Persisted: persist}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) mine(ctx context.Context, d *dataset.Dataset, opts miner.Options, persist bool) (*cache.Entry, error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	h.logger.Info("mining request", "run_id", runID, "request_id", middleware.GetRequestID(ctx), "transactions", d.Len())

	mem := sink.NewMemory()
	sinks := []sink.Sink{mem}
	if persist {
		pg, err := pgsink.NewSink(ctx, h.runs, pgsink.Config{
			RunID:      runID,
			Mode:       opts.Mode.String(),
			MinUtility: opts.MinUtility,
			BatchSize:  h.cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, pg)
	}
	out := sink.NewMulti(sinks...)

	var res *miner.Result
	err := resilience.WithTimeout(ctx, h.cfg.Miner.Timeout, "mine", func(ctx context.Context) error {
		var err error
		res, err = miner.Run(ctx, d, out, opts)
		return err
	})
	if err == nil {
		err = out.Close()
	}
	if err != nil {
		if abortErr := out.Abort(); abortErr != nil {
			h.logger.Warn("discarding partial output failed", "run_id", runID, "error", abortErr)
		}
	}
	h.record(opts, res, err)
	if err != nil {
		return nil, err
	}
	return &cache.Entry{Summary: cache.SummaryOf(res), Itemsets: mem.Itemsets()}, nil
}

// GetRun returns a persisted run with its top itemsets.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeMessage(w, http.StatusNotFound, "run persistence is not configured")
		return
	}
	id := r.PathValue("id")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 10000 {
			limit = parsed
		}
	}
	run, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		h.writeMessage(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load run", "run_id", id, "error", err)
		h.writeMessage(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	items, err := h.runs.ListItemsets(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to list itemsets", "run_id", id, "error", err)
		h.writeMessage(w, http.StatusInternalServerError, "failed to list itemsets")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"run":      run,
		"itemsets": items,
	})
}

// CacheStats reports cache counters.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled": true,
		"stats":   h.cache.Stats(),
	})
}

// CacheInvalidate drops every cached result.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"removed": 0})
		return
	}
	n, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeMessage(w, http.StatusServiceUnavailable, "cache unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"removed": n})
}

func (h *Handler) options(ro *RequestOptions) (miner.Options, bool, error) {
	cfg := h.cfg.Miner
	if ro == nil {
		opts, err := miner.OptionsFromConfig(cfg)
		return opts, false, err
	}
	if ro.MinUtility != nil {
		cfg.MinUtility = *ro.MinUtility
	}
	if ro.MinSupport != nil {
		cfg.MinSupport = *ro.MinSupport
	}
	if ro.MinLength != nil {
		cfg.MinLength = *ro.MinLength
	}
	if ro.MaxLength != nil {
		cfg.MaxLength = *ro.MaxLength
	}
	if ro.Partitions != nil {
		cfg.Partitions = *ro.Partitions
	}
	if ro.AllowNegative != nil {
		cfg.AllowNegative = *ro.AllowNegative
	}
	if ro.Mode != nil {
		cfg.Mode = *ro.Mode
	}
	if ro.FlagGenerators != nil {
		cfg.FlagGenerators = *ro.FlagGenerators
	}
	if p := ro.Periodicity; p != nil {
		cfg.Periodicity = config.PeriodicityConfig{
			Enabled:           true,
			MinPeriodicity:    p.MinPer,
			MaxPeriodicity:    p.MaxPer,
			MinAvgPeriodicity: p.MinAvg,
			MaxAvgPeriodicity: p.MaxAvg,
		}
	}
	opts, err := miner.OptionsFromConfig(cfg)
	return opts, ro.Persist, err
}

func (h *Handler) record(opts miner.Options, res *miner.Result, err error) {
	if h.metrics == nil {
		return
	}
	sample := metrics.RunSample{Mode: opts.Mode.String(), Status: miner.RunStatus(err)}
	if res != nil {
		sample.Duration = res.Duration
		sample.Emitted = res.Stats.Emitted
		sample.Visited = res.Stats.Visited
		sample.Pruned = res.Stats.Pruned()
	}
	h.metrics.RecordRun(sample)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("mining request failed", "error", err)
	}
	h.writeMessage(w, status, err.Error())
}

func (h *Handler) writeMessage(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{
		"error":     msg,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
