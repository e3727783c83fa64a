package emagapi

import (
	"sync"
	"time"
)

// breaker is a per-account consecutive-failure circuit breaker (spec §4.2):
// N consecutive failures opens it for a cooldown window; one probe call is
// allowed through once the cooldown elapses.
type breaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration
	now              func() time.Time

	consecutiveFailures int
	open                bool
	openedAt            time.Time
	probing             bool
}

func newBreaker(threshold int, openDuration time.Duration, now func() time.Time) *breaker {
	return &breaker{
		failureThreshold: threshold,
		openDuration:     openDuration,
		now:              now,
	}
}

// Allow reports whether a call may proceed, and if the breaker is open but
// its cooldown has elapsed, marks this call as the single probe attempt.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if b.now().Sub(b.openedAt) < b.openDuration {
		return false
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.open = false
	b.probing = false
}

func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.probing {
		// Probe failed: stay open for another full cooldown.
		b.probing = false
		b.openedAt = b.now()
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.failureThreshold {
		b.open = true
		b.openedAt = b.now()
	}
}

func (b *breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && b.now().Sub(b.openedAt) < b.openDuration
}
