package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(threshold, cooldown)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.Allow())
	assert.False(t, cb.IsOpen())

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.Allow())
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerHalfOpenAfterCooldown(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()
	assert.False(t, cb.Allow())

	clock.t = clock.t.Add(time.Minute + time.Millisecond)
	assert.True(t, cb.Allow(), "one trial is let through after the cooldown")

	t.Run("trial failure reopens immediately", func(t *testing.T) {
		cb.RecordFailure()
		assert.True(t, cb.IsOpen())
		assert.False(t, cb.Allow())
	})

	t.Run("trial success closes", func(t *testing.T) {
		clock.t = clock.t.Add(2 * time.Minute)
		assert.True(t, cb.Allow())
		cb.RecordSuccess()
		cb.RecordFailure()
		assert.False(t, cb.IsOpen())
	})
}

func TestCircuitBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)
	cb.RecordFailure()
	clock.t = clock.t.Add(2 * time.Minute)

	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow(), "only one attempt while the trial is outstanding")
	assert.False(t, cb.Allow())
	assert.True(t, cb.IsOpen())

	cb.RecordSuccess()
	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(0, -time.Second)
	assert.Equal(t, defaultBreakerThreshold, cb.threshold)
	assert.Equal(t, defaultBreakerCooldown, cb.cooldown)
}
