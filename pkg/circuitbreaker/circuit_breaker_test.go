package circuitbreaker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("dial tcp 10.0.0.5:3306: connection refused")

func newTestBreaker(config Config) (*CircuitBreaker, *time.Time) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("mysql", config, logger)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func fail(ctx context.Context) error    { return errDown }
func succeed(ctx context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 3, Timeout: 10 * time.Second})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	stats := cb.Statistics()
	assert.Equal(t, int64(3), stats.FailedRequests)
	assert.Equal(t, int64(1), stats.RejectedRequests)
	assert.Equal(t, "open", stats.State)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 3})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Second})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())
	assert.Equal(t, now.Add(10*time.Second), cb.NextAttempt())

	*now = now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.NextAttempt().IsZero())
}

func TestCircuitBreaker_FailedProbeBacksOff(t *testing.T) {
	cb, now := newTestBreaker(Config{FailureThreshold: 1, Timeout: 10 * time.Second, MaxTimeout: 25 * time.Second})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	*now = now.Add(11 * time.Second)

	// the probe fails, so the circuit reopens for twice as long
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, now.Add(20*time.Second), cb.NextAttempt())

	*now = now.Add(21 * time.Second)
	cb.Execute(ctx, fail)
	assert.Equal(t, now.Add(25*time.Second), cb.NextAttempt(), "capped at MaxTimeout")
}

func TestCircuitBreaker_SingleProbeWhileHalfOpen(t *testing.T) {
	cb, now := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Second})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	*now = now.Add(2 * time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		// a concurrent caller arriving during the probe is rejected
		assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrOpen)
		return nil
	})
	assert.NoError(t, err)
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1})

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, int64(0), cb.Statistics().FailedRequests)
}

func TestOpenErrorMessage(t *testing.T) {
	err := &OpenError{Name: "mysql", RetryAt: time.Date(2024, 3, 15, 9, 0, 30, 0, time.UTC)}
	assert.Equal(t, "circuit breaker 'mysql' is open until 2024-03-15T09:00:30Z", err.Error())
	assert.True(t, errors.Is(err, ErrOpen))
}
