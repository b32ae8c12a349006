package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/itemset"
	pgsink "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/sink/postgres"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/redis"
)

const scenarioData = "1 2 3:4:1 2 1\n2 3:5:3 2\n1 3:5:2 3\n"

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = make(map[string][]byte)
	return n, nil
}

type memRuns struct {
	mu        sync.Mutex
	runs      map[string]*pgsink.RunInfo
	itemsets  map[string][]itemset.Itemset
	insertErr error
}

func newMemRuns() *memRuns {
	return &memRuns{runs: make(map[string]*pgsink.RunInfo), itemsets: make(map[string][]itemset.Itemset)}
}

func (m *memRuns) CreateRun(_ context.Context, run pgsink.RunInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.Status = pgsink.StatusRunning
	m.runs[run.ID] = &run
	return nil
}

func (m *memRuns) InsertItemsets(_ context.Context, runID string, recs []itemset.Itemset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.itemsets[runID] = append(m.itemsets[runID], recs...)
	return nil
}

func (m *memRuns) FinishRun(_ context.Context, runID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID].Status = pgsink.StatusCompleted
	m.runs[runID].Itemsets = count
	return nil
}

func (m *memRuns) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	delete(m.itemsets, runID)
	return nil
}

func (m *memRuns) GetRun(_ context.Context, runID string) (*pgsink.RunInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("loading run %s: %w", runID, sql.ErrNoRows)
	}
	return run, nil
}

func (m *memRuns) ListItemsets(_ context.Context, runID string, limit int) ([]itemset.Itemset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.itemsets[runID]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testConfig() Config {
	mc := config.Default().Miner
	mc.MinUtility = 5
	return Config{Miner: mc, MaxBodyBytes: 1 << 20}
}

func newTestHandler(runs RunStore) (*Handler, *metrics.Metrics) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := cache.New(&memBackend{data: make(map[string][]byte)}, cache.Config{TTL: time.Minute})
	return New(testConfig(), c, runs, m), m
}

func post(t *testing.T, h http.HandlerFunc, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mine", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestMineReturnsItemsetsAndCaches(t *testing.T) {
	h, m := newTestHandler(nil)

	rec, out := post(t, h.Mine, MineRequest{Data: scenarioData})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["cached"])
	assert.Len(t, out["itemsets"], 4)
	summary := out["summary"].(map[string]any)
	assert.Equal(t, "all", summary["mode"])
	assert.Equal(t, 3.0, summary["transactions"])

	rec, out = post(t, h.Mine, MineRequest{Data: scenarioData})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["cached"])
	assert.Len(t, out["itemsets"], 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MiningRunsTotal.WithLabelValues("all", "ok")))
}

func TestMineHonoursRequestOptions(t *testing.T) {
	h, _ := newTestHandler(nil)
	mode := "closed"
	_, out := post(t, h.Mine, MineRequest{Data: scenarioData, Options: &RequestOptions{Mode: &mode}})
	items := out["itemsets"].([]any)
	require.Len(t, items, 3)
	var keys []string
	for _, it := range items {
		keys = append(keys, fmt.Sprint(it.(map[string]any)["items"]))
	}
	assert.ElementsMatch(t, []string{"[3]", "[1 3]", "[2 3]"}, keys)

	minU := int64(8)
	_, out = post(t, h.Mine, MineRequest{Data: scenarioData, Options: &RequestOptions{MinUtility: &minU}})
	assert.Len(t, out["itemsets"], 1)
}

func TestMineRejectsBadInput(t *testing.T) {
	h, m := newTestHandler(nil)

	rec, out := post(t, h.Mine, MineRequest{Data: "1 2:x:1 2\n"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "line 1")

	zero := int64(0)
	rec, _ = post(t, h.Mine, MineRequest{Data: scenarioData, Options: &RequestOptions{MinUtility: &zero}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mode := "maximal"
	rec, _ = post(t, h.Mine, MineRequest{Data: scenarioData, Options: &RequestOptions{Mode: &mode}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	parts := 10
	rec, _ = post(t, h.Mine, MineRequest{Data: scenarioData, Options: &RequestOptions{Partitions: &parts}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mine", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.Mine(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MiningRunsTotal.WithLabelValues("all", "invalid")))
}

func TestMineRejectsOversizedBody(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 16
	h := New(cfg, nil, nil, nil)
	rec, _ := post(t, h.Mine, MineRequest{Data: scenarioData})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMinePersistsRun(t *testing.T) {
	runs := newMemRuns()
	h, _ := newTestHandler(runs)

	rec, out := post(t, h.Mine, MineRequest{Data: scenarioData, Options: &RequestOptions{Persist: true}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["persisted"])
	runID := out["summary"].(map[string]any)["run_id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+runID, nil)
	req.SetPathValue("id", runID)
	w := httptest.NewRecorder()
	h.GetRun(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Run      pgsink.RunInfo    `json:"run"`
		Itemsets []itemset.Itemset `json:"itemsets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, pgsink.StatusCompleted, got.Run.Status)
	assert.Equal(t, 4, got.Run.Itemsets)
	assert.Len(t, got.Itemsets, 4)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil)
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	h.GetRun(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMineDiscardsRunWhenPersistFails(t *testing.T) {
	runs := newMemRuns()
	runs.insertErr = errors.New("connection reset")
	h, m := newTestHandler(runs)

	rec, _ := post(t, h.Mine, MineRequest{Data: scenarioData, Options: &RequestOptions{Persist: true}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	runs.mu.Lock()
	defer runs.mu.Unlock()
	assert.Empty(t, runs.runs)
	assert.Empty(t, runs.itemsets)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MiningRunsTotal.WithLabelValues("all", "ok")))
}

func TestCacheEndpoints(t *testing.T) {
	h, _ := newTestHandler(nil)
	post(t, h.Mine, MineRequest{Data: scenarioData})

	w := httptest.NewRecorder()
	h.CacheStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.Contains(t, w.Body.String(), `"misses":1`)

	w = httptest.NewRecorder()
	h.CacheInvalidate(w, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.JSONEq(t, `{"removed":1}`, w.Body.String())

	noCache := New(testConfig(), nil, nil, nil)
	w = httptest.NewRecorder()
	noCache.CacheStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.JSONEq(t, `{"enabled":false}`, w.Body.String())
}
