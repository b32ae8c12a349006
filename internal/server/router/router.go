// Package router wires the mining API routes and applies the middleware
// chain (RequestID → CORS → RateLimit → Metrics → Timeout).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/server/handler"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/middleware"
)

// Options holds the cross-cutting dependencies of the chain. Nil fields
// disable the corresponding middleware.
type Options struct {
	Health  *health.Checker
	Metrics *metrics.Metrics
	Limiter *middleware.RateLimiter
	// RequestTimeout bounds every request; zero disables it.
	RequestTimeout time.Duration
}

// New builds the service handler.
//
// Route table:
//
//	POST   /api/v1/mine              → mine an uploaded database
//	GET    /api/v1/runs/{id}         → persisted run and its itemsets
//	GET    /api/v1/cache/stats       → cache counters
//	POST   /api/v1/cache/invalidate  → drop cached results
//	GET    /health/live              → liveness
//	GET    /health/ready             → readiness
func New(h *handler.Handler, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/mine", h.Mine)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	if opts.Health != nil {
		mux.HandleFunc("GET /health/live", opts.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	if opts.RequestTimeout > 0 {
		chain = middleware.Timeout(opts.RequestTimeout)(chain)
	}
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	if opts.Limiter != nil {
		chain = middleware.RateLimit(opts.Limiter)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)
	return chain
}
