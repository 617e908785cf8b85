package gate

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(t time.Time) *time.Time { return &t }

func TestEvaluate(t *testing.T) {
	e := New(DefaultCooldown)

	tests := []struct {
		name          string
		now           time.Time
		last          *time.Time
		wantEligible  bool
		wantRemaining int
	}{
		{"never acted", t0, nil, true, 0},
		{"zero timestamp counts as never acted", t0, &time.Time{}, true, 0},
		{"just acted", t0, at(t0), false, 7},
		{"one millisecond after acting", t0.Add(time.Millisecond), at(t0), false, 7},
		{"three days later", t0.Add(72 * time.Hour), at(t0), false, 4},
		{"three days and a second later", t0.Add(72*time.Hour + time.Second), at(t0), false, 4},
		{"one millisecond before the boundary", t0.Add(DefaultCooldown - time.Millisecond), at(t0), false, 1},
		{"exact boundary is eligible", t0.Add(DefaultCooldown), at(t0), true, 0},
		{"seven days and a second later", t0.Add(DefaultCooldown + time.Second), at(t0), true, 0},
		{"future timestamp clamps to the full window", t0, at(t0.Add(48 * time.Hour)), false, 7},
		{"far future timestamp clamps to the full window", t0, at(t0.AddDate(5, 0, 0)), false, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Evaluate(tt.now, tt.last)
			assert.Equal(t, tt.wantEligible, d.Eligible)
			assert.Equal(t, tt.wantRemaining, d.RemainingDays)
			if tt.wantEligible {
				assert.True(t, d.AvailableAt.IsZero())
			} else {
				// Clock skew blocks for one window from now, the same bound as RemainingDays.
				from := *tt.last
				if from.After(tt.now) {
					from = tt.now
				}
				assert.Equal(t, from.Add(DefaultCooldown).UTC(), d.AvailableAt)
			}
		})
	}
}

func TestEvaluateSkewKeepsAvailableAtWithinOneWindow(t *testing.T) {
	e := New(DefaultCooldown)
	last := t0.AddDate(0, 0, 30)

	d := e.Evaluate(t0, &last)

	require.False(t, d.Eligible)
	assert.Equal(t, 7, d.RemainingDays)
	assert.Equal(t, t0.Add(DefaultCooldown), d.AvailableAt)
}

func TestEvaluateIgnoresSubMillisecondPrecision(t *testing.T) {
	e := New(DefaultCooldown)
	last := t0.Add(400 * time.Microsecond)
	d := e.Evaluate(t0.Add(DefaultCooldown), &last)
	assert.True(t, d.Eligible, "timestamps are compared at millisecond precision")
}

func TestNewFallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultCooldown, New(0).Cooldown())
	assert.Equal(t, DefaultCooldown, New(-time.Hour).Cooldown())
	assert.Equal(t, 36*time.Hour, New(36*time.Hour).Cooldown())
}

func TestEvaluateShortCooldownRoundsUpToOneDay(t *testing.T) {
	e := New(time.Hour)
	d := e.Evaluate(t0.Add(59*time.Minute), at(t0))
	require.False(t, d.Eligible)
	assert.Equal(t, 1, d.RemainingDays)
}

// Randomised check of the gate properties: blocked results always carry
// r = ceil((cooldown - elapsed) / day) >= 1 and an AvailableAt that agrees
// with r, eligible ones carry nothing, and repeated evaluation is stable.
func TestEvaluateProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	e := New(DefaultCooldown)
	window := DefaultCooldown.Milliseconds()

	for range 5000 {
		elapsed := rng.Int64N(2*window) - window/2
		now := t0
		last := now.Add(-time.Duration(elapsed) * time.Millisecond)

		first := e.Evaluate(now, &last)
		second := e.Evaluate(now, &last)
		require.Equal(t, first, second, "evaluation must be deterministic")

		switch {
		case elapsed >= window:
			require.True(t, first.Eligible, "elapsed=%d", elapsed)
			require.Zero(t, first.RemainingDays)
		case elapsed < 0:
			require.False(t, first.Eligible)
			require.Equal(t, 7, first.RemainingDays)
		default:
			require.False(t, first.Eligible, "elapsed=%d", elapsed)
			want := (window - elapsed + dayMillis - 1) / dayMillis
			require.EqualValues(t, want, first.RemainingDays)
			require.GreaterOrEqual(t, first.RemainingDays, 1)
			require.LessOrEqual(t, first.RemainingDays, 7)
		}

		if !first.Eligible {
			until := first.AvailableAt.Sub(now).Milliseconds()
			require.Positive(t, until)
			require.LessOrEqual(t, until, window, "available_at never lies beyond one window")
			require.EqualValues(t, (until+dayMillis-1)/dayMillis, first.RemainingDays,
				"remaining days and available_at describe the same instant")
		}
	}
}
