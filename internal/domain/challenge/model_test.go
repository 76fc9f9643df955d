package challenge

import (
	"testing"
	"time"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	end := now.Add(5 * 24 * time.Hour)

	ch := Challenge{
		Status:    StatusActive,
		StartDate: now.Add(-5 * 24 * time.Hour),
		EndDate:   &end,
	}

	if got := ch.EffectiveStatus(now); got != StatusActive {
		t.Fatalf("within window: %s, want ACTIVE", got)
	}
	if got := ch.EffectiveStatus(ch.StartDate.Add(-time.Hour)); got != StatusUpcoming {
		t.Fatalf("before start: %s, want UPCOMING", got)
	}
	if got := ch.EffectiveStatus(end.Add(time.Hour)); got != StatusCompleted {
		t.Fatalf("after end: %s, want COMPLETED", got)
	}

	cancelled := ch
	cancelled.Status = StatusCancelled
	if got := cancelled.EffectiveStatus(now); got != StatusCancelled {
		t.Fatalf("cancelled is server-authoritative, got %s", got)
	}

	openEnded := ch
	openEnded.EndDate = nil
	if got := openEnded.EffectiveStatus(now.Add(400 * 24 * time.Hour)); got != StatusActive {
		t.Fatalf("open-ended challenge stays active, got %s", got)
	}
}

func TestInWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	end := now.Add(24 * time.Hour)
	ch := Challenge{StartDate: now.Add(-24 * time.Hour), EndDate: &end}

	if !ch.InWindow(now) {
		t.Fatal("now is inside the window")
	}
	if ch.InWindow(end.Add(time.Minute)) {
		t.Fatal("past end is outside the window")
	}

	ch.EndDate = nil
	if !ch.InWindow(now.Add(1000 * time.Hour)) {
		t.Fatal("nil end date is open-ended")
	}
}
