package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func throttled() error {
	return NewTransientError(errors.New("service unavailable"), 503)
}

func TestBreakerTripsAfterFailureRun(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Hour})

	calls := 0
	for range 3 {
		err := b.Do(func() error { calls++; return throttled() })
		require.Error(t, err)
	}
	assert.Equal(t, BreakerOpen, b.State())

	// Open breaker fails fast without touching the endpoint.
	err := b.Do(func() error { calls++; return nil })
	require.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 3, calls)
}

func TestBreakerIgnoresCallerErrors(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	for range 5 {
		err := b.Do(func() error { return errors.New("esign: at least one template id required") })
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrBreakerOpen)
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	require.Error(t, b.Do(throttled))
	require.NoError(t, b.Do(func() error { return nil }))
	require.Error(t, b.Do(throttled))
	assert.Equal(t, BreakerClosed, b.State(), "interleaved successes keep the run below the threshold")
}

func TestBreakerProbeAfterCooldown(t *testing.T) {
	t.Parallel()

	trip := func(b *Breaker) {
		for range 2 {
			_ = b.Do(throttled) //nolint:errcheck
		}
	}

	t.Run("successful probe closes the breaker", func(t *testing.T) {
		t.Parallel()
		now := time.Now()
		b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
		b.now = func() time.Time { return now }

		trip(b)
		require.ErrorIs(t, b.Do(func() error { return nil }), ErrBreakerOpen)

		now = now.Add(2 * time.Minute)
		assert.Equal(t, BreakerHalfOpen, b.State())
		require.NoError(t, b.Do(func() error { return nil }))
		assert.Equal(t, BreakerClosed, b.State())
	})

	t.Run("failed probe reopens immediately", func(t *testing.T) {
		t.Parallel()
		now := time.Now()
		b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
		b.now = func() time.Time { return now }

		trip(b)
		now = now.Add(2 * time.Minute)
		require.Error(t, b.Do(throttled))
		assert.Equal(t, BreakerOpen, b.State())
		require.ErrorIs(t, b.Do(func() error { return nil }), ErrBreakerOpen)
	})
}

func TestBreakerStateStrings(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
}
