package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "flush", fastRetry(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "flush", fastRetry(), func() error {
		calls++
		return fmt.Errorf("row 3: %w", apperrors.ErrMalformedInput)
	})
	assert.True(t, errors.Is(err, apperrors.ErrMalformedInput))
	assert.Equal(t, 1, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "flush", fastRetry(), func() error {
		calls++
		return errors.New("unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed for flush")
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "mine", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))

	err = WithTimeout(context.Background(), time.Second, "mine", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)

	err = WithTimeout(context.Background(), 0, "mine", func(ctx context.Context) error {
		return errors.New("direct")
	})
	assert.EqualError(t, err, "direct")
}

func TestCircuitBreakerTransitions(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})
	fail := func() error { return errors.New("down") }

	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(func() error { return nil })
	assert.True(t, errors.Is(err, ErrCircuitOpen))

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
	assert.Equal(t, "cache", cb.Name())
}

func TestCircuitBreakerIgnoresCancelledCallers(t *testing.T) {
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	err := cb.Execute(func() error { return fmt.Errorf("get: %w", context.Canceled) })
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateClosed, cb.GetState())

	assert.Error(t, cb.Execute(func() error { return errors.New("dial tcp: refused") }))
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreakerReopensOnFailedTrial(t *testing.T) {
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	fail := func() error { return errors.New("down") }

	assert.Error(t, cb.Execute(fail))
	time.Sleep(20 * time.Millisecond)
	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateOpen, cb.GetState())
	assert.True(t, errors.Is(cb.Execute(fail), ErrCircuitOpen))
	assert.Equal(t, "unknown", State(7).String())
}

func TestRetryDelayGrowsUpToCap(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}.withDefaults()
	assert.InDelta(t, float64(10*time.Millisecond), float64(cfg.delay(1)), float64(time.Millisecond))
	assert.InDelta(t, float64(40*time.Millisecond), float64(cfg.delay(3)), float64(4*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, cfg.delay(30))
}

func TestRetryAbandonedWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, "flush", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		calls++
		cancel()
		return errors.New("unavailable")
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}
