package notify

import (
	"sync"
	"time"
)

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = time.Minute
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker stops delivery attempts to a sink that keeps failing.
// After threshold consecutive failures it opens for cooldown. The first
// Allow after the cooldown takes the single trial slot (half-open); every
// other Allow is refused until that trial is recorded.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state     breakerState
	failures  int
	openUntil time.Time
}

// NewCircuitBreaker creates a breaker. Non-positive arguments fall back to
// 5 failures and one minute.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether an attempt may be made.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateClosed:
		return true
	case stateOpen:
		if !cb.now().After(cb.openUntil) {
			return false
		}
		cb.state = stateHalfOpen
		return true
	default:
		// Trial in flight.
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = stateClosed
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == stateHalfOpen {
		cb.trip()
		return
	}
	cb.failures++
	if cb.failures >= cb.threshold {
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = stateOpen
	cb.openUntil = cb.now().Add(cb.cooldown)
}

// IsOpen reports whether attempts are currently being held back, including
// while a half-open trial is outstanding.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state != stateClosed
}
