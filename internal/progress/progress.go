// Package progress derives display figures from cached state. Every function
// here is pure: no I/O, no mutation, deterministic for a given input.
package progress

import (
	"time"

	"github.com/savemate/ledgersync/internal/domain/challenge"
	"github.com/savemate/ledgersync/internal/domain/participation"
)

// Percentage returns the personal progress of a participation, clamped to
// [0, 100]. A non-positive target yields 0.
func Percentage(p participation.Participation) float64 {
	return clamp(Raw(p))
}

// Raw returns the unclamped progress percentage, for callers that want to
// display overshoot past a reached target.
func Raw(p participation.Participation) float64 {
	if p.TargetAmount <= 0 {
		return 0
	}
	return float64(p.CurrentAmount) / float64(p.TargetAmount) * 100
}

// Remaining returns the amount still to save, floored at zero.
func Remaining(p participation.Participation) int64 {
	if r := p.TargetAmount - p.CurrentAmount; r > 0 {
		return r
	}
	return 0
}

// IsCompleted reports whether the participation has reached its target.
func IsCompleted(p participation.Participation) bool {
	return Percentage(p) >= 100
}

// Collective returns the challenge-wide progress, clamped to [0, 100].
// Collective figures are server-aggregated, never summed locally from
// individual transactions, so participants the client cannot see are never
// double-counted or missed.
func Collective(c challenge.Challenge) float64 {
	if c.TargetAmount <= 0 {
		return 0
	}
	return clamp(float64(c.CurrentAmount) / float64(c.TargetAmount) * 100)
}

// CanTransact reports whether a deposit or withdrawal is currently
// permitted: the participation is ACTIVE, the challenge is ACTIVE, and now
// falls within the challenge window (open-ended when EndDate is nil).
func CanTransact(p participation.Participation, c challenge.Challenge, now time.Time) bool {
	if p.Status != participation.StatusActive {
		return false
	}
	if c.EffectiveStatus(now) != challenge.StatusActive {
		return false
	}
	return c.InWindow(now)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
