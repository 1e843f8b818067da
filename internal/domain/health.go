package domain

import (
	"sync"
	"time"
)

// ProviderStatus is the health state of one provider.
type ProviderStatus string

const (
	StatusAvailable   ProviderStatus = "available"
	StatusRateLimited ProviderStatus = "rate_limited"
	StatusErrored     ProviderStatus = "errored"
	StatusDisabled    ProviderStatus = "disabled"
)

const (
	// rateLimitCooldown is how long a provider sits out after a
	// rate-limit rejection.
	rateLimitCooldown = 60 * time.Second

	// errorCooldown is how long a provider sits out after tripping the
	// consecutive-failure threshold.
	errorCooldown = 5 * time.Minute

	// failureThreshold is the number of consecutive failures that flips a
	// provider to StatusErrored.
	failureThreshold = 5
)

// HealthSnapshot is a point-in-time copy of a provider's health state.
type HealthSnapshot struct {
	Status              ProviderStatus `json:"status"`
	TotalRequests       int64          `json:"total_requests"`
	SuccessCount        int64          `json:"success_count"`
	FailureCount        int64          `json:"failure_count"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	TotalTokens         int64          `json:"total_tokens"`
	TotalCost           float64        `json:"total_cost"`
	AverageLatencyMs    float64        `json:"average_latency_ms"`
	LastFailureAt       time.Time      `json:"last_failure_at,omitzero"`
	LastFailureMessage  string         `json:"last_failure_message,omitempty"`
}

// HealthTracker holds one provider's health state. All transitions are
// driven by call outcomes on that provider's own path; cooldown exits are
// checked lazily on the next availability query, so no background timer is
// needed. Safe for concurrent use.
//
// State machine: a rate-limit failure flips AVAILABLE to RATE_LIMITED for
// rateLimitCooldown; crossing failureThreshold consecutive failures flips to
// ERRORED for errorCooldown; any success from a non-disabled state restores
// AVAILABLE. Counters are monotonic and survive status transitions. DISABLED
// is entered only through Disable and never self-heals.
type HealthTracker struct {
	mu sync.Mutex

	status        ProviderStatus
	cooldownUntil time.Time

	totalRequests       int64
	successCount        int64
	failureCount        int64
	consecutiveFailures int
	totalTokens         int64
	totalCost           float64
	avgLatencyMs        float64
	lastFailureAt       time.Time
	lastFailureMessage  string

	// probe, when set, is consulted once while leaving a cooldown window.
	// A failed probe extends the cooldown instead of resuming traffic.
	probe func() bool

	now func() time.Time
}

// NewHealthTracker creates a tracker in StatusAvailable.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		status: StatusAvailable,
		now:    time.Now,
	}
}

// SetProbe installs the live probe used when exiting a cooldown.
func (t *HealthTracker) SetProbe(probe func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probe = probe
}

// Disable moves the tracker to StatusDisabled. Only explicit configuration
// invalidity at construction or operator action calls this; the state never
// self-heals.
func (t *HealthTracker) Disable(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusDisabled
	t.lastFailureAt = t.now()
	t.lastFailureMessage = reason
}

// RecordSuccess applies a successful call outcome. Status returns to
// AVAILABLE from any non-disabled state; counters stay monotonic.
func (t *HealthTracker) RecordSuccess(latency time.Duration, usage TokenUsage, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalRequests++
	t.successCount++
	t.consecutiveFailures = 0
	t.totalTokens += int64(usage.TotalTokens)
	t.totalCost += cost
	t.recordLatencyLocked(latency)

	if t.status != StatusDisabled {
		t.status = StatusAvailable
		t.cooldownUntil = time.Time{}
	}
}

// RecordFailure applies a failed call outcome and drives the status
// transitions for the failure's classification.
func (t *HealthTracker) RecordFailure(kind ErrorKind, err error, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalRequests++
	t.failureCount++
	t.consecutiveFailures++
	t.recordLatencyLocked(latency)
	t.lastFailureAt = t.now()
	if err != nil {
		t.lastFailureMessage = err.Error()
	}

	if t.status == StatusDisabled {
		return
	}

	switch {
	case kind == ErrorKindRateLimit:
		t.status = StatusRateLimited
		t.cooldownUntil = t.now().Add(rateLimitCooldown)
	case t.consecutiveFailures >= failureThreshold:
		t.status = StatusErrored
		t.cooldownUntil = t.now().Add(errorCooldown)
	}
}

// Available reports whether the provider should receive traffic. Cooldown
// exits happen here, lazily, on the first query after the window elapses.
func (t *HealthTracker) Available() bool {
	t.mu.Lock()

	switch t.status {
	case StatusDisabled:
		t.mu.Unlock()
		return false
	case StatusAvailable:
		t.mu.Unlock()
		return true
	}

	if t.now().Before(t.cooldownUntil) {
		t.mu.Unlock()
		return false
	}

	// Cooldown elapsed. Run the live probe without holding the lock; a
	// failed probe re-arms the same cooldown window.
	probe := t.probe
	prior := t.status
	t.mu.Unlock()

	if probe != nil && !probe() {
		t.mu.Lock()
		if t.status == prior {
			if prior == StatusRateLimited {
				t.cooldownUntil = t.now().Add(rateLimitCooldown)
			} else {
				t.cooldownUntil = t.now().Add(errorCooldown)
			}
		}
		t.mu.Unlock()
		return false
	}

	t.mu.Lock()
	if t.status == prior {
		t.status = StatusAvailable
		t.cooldownUntil = time.Time{}
	}
	available := t.status == StatusAvailable
	t.mu.Unlock()
	return available
}

// Status returns the current status after applying lazy cooldown exits.
func (t *HealthTracker) Status() ProviderStatus {
	t.Available()

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Snapshot returns a copy of the current state.
func (t *HealthTracker) Snapshot() HealthSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return HealthSnapshot{
		Status:              t.status,
		TotalRequests:       t.totalRequests,
		SuccessCount:        t.successCount,
		FailureCount:        t.failureCount,
		ConsecutiveFailures: t.consecutiveFailures,
		TotalTokens:         t.totalTokens,
		TotalCost:           t.totalCost,
		AverageLatencyMs:    t.avgLatencyMs,
		LastFailureAt:       t.lastFailureAt,
		LastFailureMessage:  t.lastFailureMessage,
	}
}

// Reset zeroes all counters and, unless disabled, restores StatusAvailable.
// Operator action only.
func (t *HealthTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalRequests = 0
	t.successCount = 0
	t.failureCount = 0
	t.consecutiveFailures = 0
	t.totalTokens = 0
	t.totalCost = 0
	t.avgLatencyMs = 0
	t.lastFailureAt = time.Time{}
	t.lastFailureMessage = ""

	if t.status != StatusDisabled {
		t.status = StatusAvailable
		t.cooldownUntil = time.Time{}
	}
}

// recordLatencyLocked folds one observation into the running average.
func (t *HealthTracker) recordLatencyLocked(latency time.Duration) {
	ms := float64(latency.Milliseconds())
	n := float64(t.totalRequests)
	t.avgLatencyMs += (ms - t.avgLatencyMs) / n
}
