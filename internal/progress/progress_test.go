package progress

import (
	"testing"
	"time"

	"github.com/savemate/ledgersync/internal/domain/challenge"
	"github.com/savemate/ledgersync/internal/domain/participation"
)

func part(current, target int64) participation.Participation {
	return participation.Participation{
		CurrentAmount: current,
		TargetAmount:  target,
		Status:        participation.StatusActive,
	}
}

func TestPercentage(t *testing.T) {
	cases := []struct {
		name            string
		current, target int64
		want            float64
	}{
		{"zero balance", 0, 50_000, 0},
		{"partial", 20_000, 50_000, 40},
		{"exact target", 50_000, 50_000, 100},
		{"overshoot clamps", 75_000, 50_000, 100},
		{"zero target", 10_000, 0, 0},
		{"negative target", 10_000, -5, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Percentage(part(tc.current, tc.target)); got != tc.want {
				t.Fatalf("Percentage(%d/%d) = %v, want %v", tc.current, tc.target, got, tc.want)
			}
		})
	}
}

func TestRawAllowsOvershoot(t *testing.T) {
	if got := Raw(part(75_000, 50_000)); got != 150 {
		t.Fatalf("Raw = %v, want 150", got)
	}
}

func TestRemaining(t *testing.T) {
	if got := Remaining(part(20_000, 50_000)); got != 30_000 {
		t.Fatalf("Remaining = %d, want 30000", got)
	}
	if got := Remaining(part(60_000, 50_000)); got != 0 {
		t.Fatalf("Remaining past target = %d, want 0", got)
	}
}

func TestIsCompleted(t *testing.T) {
	if IsCompleted(part(49_999, 50_000)) {
		t.Fatal("one short of target must not be completed")
	}
	if !IsCompleted(part(50_000, 50_000)) {
		t.Fatal("target reached must be completed")
	}
}

func TestMonotonicUnderDeposits(t *testing.T) {
	last := 0.0
	balance := int64(0)
	for _, d := range []int64{1, 999, 24_000, 25_000, 10_000} {
		balance += d
		pct := Percentage(part(balance, 50_000))
		if pct < last {
			t.Fatalf("progress decreased: %v after %v", pct, last)
		}
		last = pct
	}
}

func TestCollective(t *testing.T) {
	ch := challenge.Challenge{TargetAmount: 1_000_000, CurrentAmount: 250_000}
	if got := Collective(ch); got != 25 {
		t.Fatalf("Collective = %v, want 25", got)
	}
	if got := Collective(challenge.Challenge{}); got != 0 {
		t.Fatalf("Collective with zero target = %v, want 0", got)
	}
}

func TestCanTransact(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	end := now.Add(10 * 24 * time.Hour)
	ch := challenge.Challenge{
		Status:    challenge.StatusActive,
		StartDate: now.Add(-10 * 24 * time.Hour),
		EndDate:   &end,
	}
	p := part(0, 50_000)

	if !CanTransact(p, ch, now) {
		t.Fatal("active participation in active window must transact")
	}

	abandoned := p
	abandoned.Status = participation.StatusAbandoned
	if CanTransact(abandoned, ch, now) {
		t.Fatal("abandoned participation must not transact")
	}

	completed := p
	completed.Status = participation.StatusCompleted
	if CanTransact(completed, ch, now) {
		t.Fatal("completed participation must not transact")
	}

	if CanTransact(p, ch, end.Add(time.Hour)) {
		t.Fatal("past the end date must not transact")
	}
	if CanTransact(p, ch, ch.StartDate.Add(-time.Hour)) {
		t.Fatal("before the start date must not transact")
	}

	openEnded := ch
	openEnded.EndDate = nil
	if !CanTransact(p, openEnded, now.Add(365*24*time.Hour)) {
		t.Fatal("open-ended challenge must accept transactions indefinitely")
	}
}
