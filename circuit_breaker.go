package tangguh

import (
	"sync"
	"time"
)

// CircuitBreaker gates every dispatch on recent failure history. After a
// configured number of consecutive failures it opens and rejects requests
// until the cooldown has elapsed, at which point it closes again and lets
// the next request through (half-open-by-timeout, no probing state).
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	open      bool
	openedAt  time.Time
}

// NewCircuitBreaker creates a breaker with the given consecutive-failure
// threshold and cooldown. Zero values fall back to 5 failures / 60s.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a dispatch may proceed. When the breaker is open and
// the cooldown has elapsed it self-closes, resets the failure count and
// allows the call.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return true
	}
	if time.Since(cb.openedAt) > cb.cooldown {
		cb.open = false
		cb.failures = 0
		return true
	}
	return false
}

// RecordSuccess resets the consecutive-failure count. It does not close an
// open breaker; closing only happens via the cooldown path in Allow.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.failures = 0
	cb.mu.Unlock()
}

// RecordFailure increments the consecutive-failure count and opens the
// breaker once the threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if !cb.open && cb.failures >= cb.threshold {
		cb.open = true
		cb.openedAt = time.Now()
	}
}

// State returns the current open flag and consecutive-failure count.
func (cb *CircuitBreaker) State() (open bool, failures int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open, cb.failures
}
