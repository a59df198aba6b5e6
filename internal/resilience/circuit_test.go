package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProvider = errors.New("provider unavailable")

func tripBreaker(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error { return errProvider })
	}
}

// fakeClock returns a breaker whose clock is advanced by the returned func.
func fakeClock(cb *CircuitBreaker) func(time.Duration) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	cb.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	return func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	tripBreaker(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State())

	tripBreaker(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Fatal("call must be rejected while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	tripBreaker(cb, 2)
	require.NoError(t, cb.Execute(context.Background(), func(_ context.Context) error { return nil }))
	tripBreaker(cb, 2)

	snap := cb.Snapshot()
	assert.Equal(t, 2, snap.Failures)
	assert.Equal(t, CircuitClosed, snap.State)
}

func TestCircuitBreaker_HalfOpenTrialCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	advance := fakeClock(cb)

	tripBreaker(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.False(t, cb.Snapshot().OpenedAt.IsZero())

	advance(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func(_ context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Zero(t, cb.Snapshot().Failures)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	advance := fakeClock(cb)

	tripBreaker(cb, 1)
	advance(11 * time.Second)
	tripBreaker(cb, 1)

	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	advance := fakeClock(cb)

	tripBreaker(cb, 1)
	advance(11 * time.Second)

	inTrial := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(_ context.Context) error {
			close(inTrial)
			<-release
			return nil
		})
	}()
	<-inTrial

	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Fatal("second call must be rejected while the trial is in flight")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_CancelledTrialKeepsHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	advance := fakeClock(cb)

	tripBreaker(cb, 1)
	advance(11 * time.Second)

	err := cb.Execute(context.Background(), func(_ context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func(_ context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_ShouldTripAndStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		ShouldTrip:       IsTransient,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	advance := fakeClock(cb)

	// A malformed-output error is not an availability problem.
	_ = cb.Execute(context.Background(), func(_ context.Context) error { return errors.New("invalid json") })
	assert.Equal(t, CircuitClosed, cb.State())

	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return NewTransientError(errProvider, 529)
	})
	assert.Equal(t, CircuitOpen, cb.State())

	advance(2 * time.Minute)
	require.NoError(t, cb.Execute(context.Background(), func(_ context.Context) error { return nil }))
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestExecuteVal(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "SELECT 1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", val)

	tripBreaker(cb, 1)
	val, err = ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "unreachable", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Empty(t, val)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1000, ResetTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Execute(context.Background(), func(_ context.Context) error {
				if i%2 == 0 {
					return errProvider
				}
				return nil
			})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakers(t *testing.T) {
	b := NewBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	assert.True(t, b.Healthy())

	a := b.For("anthropic")
	assert.Same(t, a, b.For("anthropic"))
	b.For("ollama")
	assert.Equal(t, []string{"anthropic", "ollama"}, b.Providers())

	tripBreaker(a, 1)
	states := b.States()
	assert.Equal(t, CircuitOpen, states["anthropic"])
	assert.Equal(t, CircuitClosed, states["ollama"])
	assert.False(t, b.Healthy())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}
