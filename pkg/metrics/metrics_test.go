package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRun(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.RecordRun(RunSample{
		Mode:     "closed",
		Status:   "ok",
		Duration: 20 * time.Millisecond,
		Emitted:  12,
		Visited:  40,
		Pruned:   map[string]int64{"eucp": 3, "lookahead": 0},
	})
	m.RecordRun(RunSample{Mode: "closed", Status: "invalid", Emitted: 99})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MiningRunsTotal.WithLabelValues("closed", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MiningRunsTotal.WithLabelValues("closed", "invalid")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ItemsetsEmitted.WithLabelValues("closed")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.CandidatesVisited))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CandidatesPruned.WithLabelValues("eucp")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CandidatesPruned))
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := Serve(ctx, 0)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not shut down")
	}
}
