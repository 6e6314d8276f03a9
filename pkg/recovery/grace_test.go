package recovery

import (
	"testing"
	"time"
)

func TestGracePeriodTrackerMarksOfflineAfterGraceElapses(t *testing.T) {
	tr := NewGracePeriodTracker(10 * time.Second)
	start := time.Now()

	if tr.RecordError(start) {
		t.Fatal("expected grace period not yet elapsed on first error")
	}
	if tr.ShouldMarkOffline(start) {
		t.Fatal("should not mark offline immediately")
	}

	later := start.Add(11 * time.Second)
	if !tr.RecordError(later) {
		t.Fatal("expected grace period elapsed after 11s")
	}
	if !tr.ShouldMarkOffline(later) {
		t.Fatal("expected ShouldMarkOffline true once grace period elapsed")
	}

	tr.MarkedOffline()
	if tr.ShouldMarkOffline(later) {
		t.Fatal("expected ShouldMarkOffline false once already marked")
	}
}

func TestGracePeriodTrackerResetsOnSuccess(t *testing.T) {
	tr := NewGracePeriodTracker(5 * time.Second)
	now := time.Now()
	tr.RecordError(now)
	tr.RecordError(now.Add(1 * time.Second))
	if tr.ConsecutiveErrors() != 2 {
		t.Fatalf("consecutive errors = %d, want 2", tr.ConsecutiveErrors())
	}

	tr.RecordSuccess()
	if tr.ConsecutiveErrors() != 0 {
		t.Fatalf("consecutive errors after success = %d, want 0", tr.ConsecutiveErrors())
	}
	if tr.ShouldMarkOffline(now.Add(10 * time.Second)) {
		t.Fatal("expected no offline marking after reset")
	}
}

func TestGracePeriodTrackerDefaultsTo15Seconds(t *testing.T) {
	tr := NewGracePeriodTracker(0)
	if tr.gracePeriod != 15*time.Second {
		t.Fatalf("default grace period = %v, want 15s", tr.gracePeriod)
	}
}
