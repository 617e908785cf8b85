// Package gate decides whether an identity may act again, given when it last acted.
//
// Evaluation is pure: the same (now, last, cooldown) always yields the same
// Decision, and nothing is read or written outside the arguments.
package gate

import "time"

// DefaultCooldown is the policy window between two accepted applications.
const DefaultCooldown = 7 * 24 * time.Hour

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// Decision is the outcome of a gate evaluation.
type Decision struct {
	Eligible bool
	// RemainingDays is the whole number of days left, rounded up. Zero when Eligible.
	RemainingDays int
	// AvailableAt is when the identity becomes eligible again. Zero when Eligible.
	AvailableAt time.Time
}

// Evaluator applies a fixed cooldown policy.
type Evaluator struct {
	cooldownMillis int64
}

// New returns an Evaluator for cooldown. Non-positive values fall back to DefaultCooldown.
func New(cooldown time.Duration) *Evaluator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Evaluator{cooldownMillis: cooldown.Milliseconds()}
}

// Cooldown returns the configured window.
func (e *Evaluator) Cooldown() time.Duration {
	return time.Duration(e.cooldownMillis) * time.Millisecond
}

// Evaluate computes eligibility at now for an identity whose last accepted
// action was at last (nil when it has never acted). The window is closed on
// the left: exactly one cooldown after last is eligible.
func (e *Evaluator) Evaluate(now time.Time, last *time.Time) Decision {
	if last == nil || last.IsZero() {
		return Decision{Eligible: true}
	}

	lastMillis := last.UnixMilli()
	elapsed := now.UnixMilli() - lastMillis
	if elapsed >= e.cooldownMillis {
		return Decision{Eligible: true}
	}

	nowMillis := lastMillis + elapsed
	remaining := e.cooldownMillis - elapsed
	if elapsed < 0 {
		// last is in the future (clock skew): block for the full window, never longer.
		remaining = e.cooldownMillis
	}
	return Decision{
		Eligible:      false,
		RemainingDays: int(ceilDiv(remaining, dayMillis)),
		AvailableAt:   time.UnixMilli(nowMillis + remaining).UTC(),
	}
}

func ceilDiv(x, d int64) int64 {
	return (x + d - 1) / d
}
