package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/server/handler"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/middleware"
)

func newRouter(limiter *middleware.RateLimiter) http.Handler {
	mc := config.Default().Miner
	mc.MinUtility = 5
	h := handler.New(handler.Config{Miner: mc}, nil, nil, nil)
	checker := health.NewChecker()
	checker.Register("noop", health.Ping(func(context.Context) error { return nil }, false))
	return New(h, Options{
		Health:  checker,
		Metrics: metrics.NewWithRegistry(prometheus.NewRegistry()),
		Limiter: limiter,
	})
}

func TestRoutes(t *testing.T) {
	r := newRouter(nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mine", strings.NewReader(`{"data":"1 2:3:1 2\n"}`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/mine", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	r := newRouter(middleware.NewRateLimiter(60, 1))
	codes := make([]int, 0, 2)
	for range 2 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
