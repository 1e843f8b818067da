package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock drives the tracker's lazy cooldown checks without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTrackerWithClock() (*HealthTracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewHealthTracker()
	tracker.now = clock.Now
	return tracker, clock
}

func TestHealthTracker_RateLimit(t *testing.T) {
	t.Run("should enter cooldown on rate limit failure", func(t *testing.T) {
		tracker, _ := newTrackerWithClock()
		require.True(t, tracker.Available())

		tracker.RecordFailure(ErrorKindRateLimit, errors.New("429 too many requests"), 10*time.Millisecond)

		require.False(t, tracker.Available())
		require.Equal(t, StatusRateLimited, tracker.Snapshot().Status)
	})

	t.Run("should recover after cooldown elapses", func(t *testing.T) {
		tracker, clock := newTrackerWithClock()
		tracker.RecordFailure(ErrorKindRateLimit, errors.New("429"), 0)

		clock.Advance(59 * time.Second)
		require.False(t, tracker.Available())

		clock.Advance(2 * time.Second)
		require.True(t, tracker.Available())
		require.Equal(t, StatusAvailable, tracker.Status())
	})

	t.Run("should take precedence over consecutive failure threshold", func(t *testing.T) {
		tracker, _ := newTrackerWithClock()
		for i := 0; i < 10; i++ {
			tracker.RecordFailure(ErrorKindRateLimit, errors.New("429"), 0)
		}

		// Even past the threshold, a rate-limit failure keeps the shorter
		// rate-limit cooldown.
		require.Equal(t, StatusRateLimited, tracker.Snapshot().Status)
	})
}

func TestHealthTracker_ConsecutiveFailures(t *testing.T) {
	t.Run("should stay available below the threshold", func(t *testing.T) {
		tracker, _ := newTrackerWithClock()
		for i := 0; i < failureThreshold-1; i++ {
			tracker.RecordFailure(ErrorKindTransient, errors.New("connection reset"), 0)
		}

		require.True(t, tracker.Available())
	})

	t.Run("should trip to errored at the threshold", func(t *testing.T) {
		tracker, clock := newTrackerWithClock()
		for i := 0; i < failureThreshold; i++ {
			tracker.RecordFailure(ErrorKindTransient, errors.New("connection reset"), 0)
		}

		require.False(t, tracker.Available())
		require.Equal(t, StatusErrored, tracker.Snapshot().Status)

		clock.Advance(errorCooldown - time.Second)
		require.False(t, tracker.Available())

		clock.Advance(2 * time.Second)
		require.True(t, tracker.Available())
	})

	t.Run("should reset the streak on success but keep totals", func(t *testing.T) {
		tracker, _ := newTrackerWithClock()
		tracker.RecordFailure(ErrorKindTransient, errors.New("boom"), 0)
		tracker.RecordFailure(ErrorKindTransient, errors.New("boom"), 0)
		tracker.RecordSuccess(20*time.Millisecond, TokenUsage{TotalTokens: 30}, 0.01)

		snap := tracker.Snapshot()
		require.Equal(t, 0, snap.ConsecutiveFailures)
		require.Equal(t, int64(2), snap.FailureCount)
		require.Equal(t, int64(1), snap.SuccessCount)
		require.Equal(t, int64(3), snap.TotalRequests)
		require.Equal(t, StatusAvailable, snap.Status)
	})

	t.Run("should restore availability on success during cooldown", func(t *testing.T) {
		tracker, _ := newTrackerWithClock()
		for i := 0; i < failureThreshold; i++ {
			tracker.RecordFailure(ErrorKindTransient, errors.New("boom"), 0)
		}
		require.False(t, tracker.Available())

		// A cancelled in-flight call can still complete successfully after
		// the tracker tripped; that success ends the cooldown early.
		tracker.RecordSuccess(time.Millisecond, TokenUsage{}, 0)
		require.True(t, tracker.Available())
	})
}

func TestHealthTracker_Probe(t *testing.T) {
	t.Run("should re-arm cooldown when probe fails", func(t *testing.T) {
		tracker, clock := newTrackerWithClock()
		probeCalls := 0
		tracker.SetProbe(func() bool {
			probeCalls++
			return false
		})

		tracker.RecordFailure(ErrorKindRateLimit, errors.New("429"), 0)
		clock.Advance(rateLimitCooldown + time.Second)

		require.False(t, tracker.Available())
		require.Equal(t, 1, probeCalls)

		// The failed probe re-armed the window; no second probe runs until
		// it elapses again.
		require.False(t, tracker.Available())
		require.Equal(t, 1, probeCalls)
	})

	t.Run("should resume traffic when probe succeeds", func(t *testing.T) {
		tracker, clock := newTrackerWithClock()
		tracker.SetProbe(func() bool { return true })

		tracker.RecordFailure(ErrorKindRateLimit, errors.New("429"), 0)
		clock.Advance(rateLimitCooldown + time.Second)

		require.True(t, tracker.Available())
		require.Equal(t, StatusAvailable, tracker.Snapshot().Status)
	})
}

func TestHealthTracker_Disable(t *testing.T) {
	t.Run("should never self-heal from disabled", func(t *testing.T) {
		tracker, clock := newTrackerWithClock()
		tracker.Disable("invalid api key")

		require.False(t, tracker.Available())

		clock.Advance(24 * time.Hour)
		tracker.RecordSuccess(time.Millisecond, TokenUsage{}, 0)

		require.False(t, tracker.Available())
		require.Equal(t, StatusDisabled, tracker.Snapshot().Status)
	})

	t.Run("should keep disabled through reset", func(t *testing.T) {
		tracker, _ := newTrackerWithClock()
		tracker.Disable("operator action")
		tracker.Reset()

		require.Equal(t, StatusDisabled, tracker.Snapshot().Status)
		require.False(t, tracker.Available())
	})
}

func TestHealthTracker_Counters(t *testing.T) {
	t.Run("should accumulate usage and average latency", func(t *testing.T) {
		tracker, _ := newTrackerWithClock()
		tracker.RecordSuccess(100*time.Millisecond, TokenUsage{TotalTokens: 100}, 0.02)
		tracker.RecordSuccess(200*time.Millisecond, TokenUsage{TotalTokens: 50}, 0.01)

		snap := tracker.Snapshot()
		require.Equal(t, int64(150), snap.TotalTokens)
		require.InDelta(t, 0.03, snap.TotalCost, 0.0001)
		require.InDelta(t, 150, snap.AverageLatencyMs, 0.1)
	})

	t.Run("should zero counters on reset", func(t *testing.T) {
		tracker, _ := newTrackerWithClock()
		tracker.RecordSuccess(time.Millisecond, TokenUsage{TotalTokens: 10}, 0.5)
		tracker.RecordFailure(ErrorKindTransient, errors.New("boom"), 0)
		tracker.Reset()

		snap := tracker.Snapshot()
		require.Equal(t, int64(0), snap.TotalRequests)
		require.Equal(t, int64(0), snap.FailureCount)
		require.Equal(t, 0, snap.ConsecutiveFailures)
		require.Empty(t, snap.LastFailureMessage)
		require.Equal(t, StatusAvailable, snap.Status)
	})
}
