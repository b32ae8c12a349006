// Command loadtest drives the mining API with synthetic transaction
// databases and reports throughput, latency percentiles and the cache hit
// ratio. Each worker cycles through a fixed pool of databases, so repeated
// requests exercise the result cache.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 8] [-duration 30s] [-datasets 16]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	MinUtility  int64
	Mode        string
	Bodies      [][]byte
}

type Stats struct {
	total     atomic.Int64
	success   atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64
	itemsets  atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 1<<14),
		codes:     make(map[int]int64),
	}
}

type mineResponse struct {
	Cached   bool              `json:"cached"`
	Itemsets []json.RawMessage `json:"itemsets"`
}

func (s *Stats) Record(d time.Duration, code int, resp *mineResponse, err error) {
	s.total.Add(1)
	if err != nil {
		s.failures.Add(1)
		return
	}
	if code == http.StatusOK {
		s.success.Add(1)
		if resp != nil {
			if resp.Cached {
				s.cacheHits.Add(1)
			}
			s.itemsets.Add(int64(len(resp.Itemsets)))
		}
	} else {
		s.failures.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the mining service")
	concurrency := flag.Int("concurrency", 8, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	datasets := flag.Int("datasets", 16, "number of distinct synthetic databases")
	transactions := flag.Int("transactions", 200, "transactions per database")
	items := flag.Int("items", 40, "distinct items per database")
	minUtility := flag.Int64("min-utility", 400, "minimum utility sent with each request")
	mode := flag.String("mode", "all", "mining mode sent with each request")
	seed := flag.Int64("seed", 1, "generator seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		MinUtility:  *minUtility,
		Mode:        *mode,
	}
	for range *datasets {
		body, err := json.Marshal(map[string]any{
			"data": synthesize(rng, *transactions, *items),
			"options": map[string]any{
				"min_utility": cfg.MinUtility,
				"mode":        cfg.Mode,
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "encoding request: %v\n", err)
			os.Exit(1)
		}
		cfg.Bodies = append(cfg.Bodies, body)
	}

	fmt.Println("=== Mining Service Load Test ===")
	fmt.Printf("Target:       %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency:  %d\n", cfg.Concurrency)
	fmt.Printf("Duration:     %s\n", cfg.Duration)
	fmt.Printf("Databases:    %d x %d transactions over %d items\n", *datasets, *transactions, *items)
	fmt.Printf("Min utility:  %d (%s)\n", cfg.MinUtility, cfg.Mode)
	fmt.Println()

	stats := run(cfg)
	report(stats, cfg.Duration)
}

// synthesize renders n random transactions over items 1..m in the text
// input format, with utilities between 1 and 10 per occurrence.
func synthesize(rng *rand.Rand, n, m int) string {
	var b strings.Builder
	for range n {
		k := 1 + rng.Intn(min(m, 8))
		perm := rng.Perm(m)[:k]
		sort.Ints(perm)
		items := make([]string, k)
		utils := make([]string, k)
		var tu int
		for i, p := range perm {
			u := 1 + rng.Intn(10)
			tu += u
			items[i] = fmt.Sprint(p + 1)
			utils[i] = fmt.Sprint(u)
		}
		fmt.Fprintf(&b, "%s:%d:%s\n", strings.Join(items, " "), tu, strings.Join(utils, " "))
	}
	return b.String()
}

func run(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; ctx.Err() == nil; i++ {
				body := cfg.Bodies[i%len(cfg.Bodies)]
				start := time.Now()
				code, resp, err := post(ctx, client, cfg.BaseURL+"/api/v1/mine", body)
				if ctx.Err() != nil {
					return
				}
				stats.Record(time.Since(start), code, resp, err)
			}
		}()
	}

	wg.Wait()
	return stats
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (int, *mineResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, nil
	}
	var out mineResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, &out, nil
}

func report(stats *Stats, duration time.Duration) {
	total := stats.total.Load()
	success := stats.success.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Requests:     %d\n", total)
	fmt.Printf("Successful:   %d\n", success)
	fmt.Printf("Failed:       %d\n", stats.failures.Load())
	if total > 0 {
		fmt.Printf("Requests/sec: %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Printf("Cache hits:   %.1f%%\n", 100*float64(stats.cacheHits.Load())/float64(success))
		fmt.Printf("Itemsets/req: %.1f\n", float64(stats.itemsets.Load())/float64(success))
	}

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	codes := make([]int, 0, len(stats.codes))
	for code := range stats.codes {
		codes = append(codes, code)
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min: %s\n", latencies[0])
		fmt.Printf("Avg: %s\n", sum/time.Duration(len(latencies)))
		for _, p := range []float64{50, 90, 99} {
			fmt.Printf("P%g: %s\n", p, percentile(latencies, p))
		}
		fmt.Printf("Max: %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.codes[code])
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: no requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
