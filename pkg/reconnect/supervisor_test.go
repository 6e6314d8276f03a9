package reconnect

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDelayFollowsScheduleThenCaps(t *testing.T) {
	schedule := []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 15 * time.Second},
		{4, 15 * time.Second}, // capped at last element
		{100, 15 * time.Second},
	}
	for _, c := range cases {
		if got := BackoffDelay(schedule, c.attempt); got != c.want {
			t.Errorf("BackoffDelay(attempt=%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDefaultBackoffScheduleMatchesSpec(t *testing.T) {
	want := []time.Duration{
		5 * time.Second, 10 * time.Second, 15 * time.Second,
		30 * time.Second, 45 * time.Second, 60 * time.Second,
	}
	if len(DefaultBackoffSchedule) != len(want) {
		t.Fatalf("schedule length = %d, want %d", len(DefaultBackoffSchedule), len(want))
	}
	for i := range want {
		if DefaultBackoffSchedule[i] != want[i] {
			t.Errorf("schedule[%d] = %v, want %v", i, DefaultBackoffSchedule[i], want[i])
		}
	}
}

func TestRecoverSucceedsOnFirstSimpleReconnect(t *testing.T) {
	actions := Actions{
		SimpleReconnect: func(ctx context.Context) error { return nil },
		FullReauth:      func(ctx context.Context) error { return errors.New("should not be called") },
	}
	s := New(actions, 10, nil)
	s.schedule = []time.Duration{time.Millisecond}

	if err := s.Recover(context.Background(), Reason{}); err != nil {
		t.Fatal(err)
	}
}

func TestRecoverEscalatesToFullReauthAfterSimpleFailure(t *testing.T) {
	var simpleCalls, reauthCalls int
	actions := Actions{
		SimpleReconnect: func(ctx context.Context) error {
			simpleCalls++
			return errors.New("simple failed")
		},
		FullReauth: func(ctx context.Context) error {
			reauthCalls++
			return nil
		},
	}
	s := New(actions, 10, nil)
	s.schedule = []time.Duration{time.Millisecond}

	if err := s.Recover(context.Background(), Reason{}); err != nil {
		t.Fatal(err)
	}
	if simpleCalls != 1 || reauthCalls != 1 {
		t.Fatalf("expected 1 simple + 1 reauth call, got simple=%d reauth=%d", simpleCalls, reauthCalls)
	}
}

func TestRecoverConnackRejectionForcesFullReauthAndInvalidation(t *testing.T) {
	var invalidated, reauthCalls int
	actions := Actions{
		SimpleReconnect: func(ctx context.Context) error { return errors.New("should not be called") },
		FullReauth: func(ctx context.Context) error {
			reauthCalls++
			return nil
		},
		InvalidateCache: func(ctx context.Context) error {
			invalidated++
			return nil
		},
	}
	s := New(actions, 10, nil)
	s.schedule = []time.Duration{time.Millisecond}

	if err := s.Recover(context.Background(), Reason{ConnackRejected: true}); err != nil {
		t.Fatal(err)
	}
	if invalidated != 1 {
		t.Fatalf("expected cache invalidation exactly once, got %d", invalidated)
	}
	if reauthCalls != 1 {
		t.Fatalf("expected full reauth exactly once, got %d", reauthCalls)
	}
}

func TestRecoverEmitsTerminalAfterMaxAttempts(t *testing.T) {
	actions := Actions{
		SimpleReconnect: func(ctx context.Context) error { return errors.New("down") },
		FullReauth:      func(ctx context.Context) error { return errors.New("down") },
	}
	s := New(actions, 2, nil)
	s.schedule = []time.Duration{time.Millisecond}

	err := s.Recover(context.Background(), Reason{})
	if err == nil {
		t.Fatal("expected terminal error after exhausting attempts")
	}

	select {
	case <-s.Terminal():
	default:
		t.Fatal("expected Terminal() channel to be closed")
	}
}

func TestRecoverRespectsContextCancellation(t *testing.T) {
	actions := Actions{
		SimpleReconnect: func(ctx context.Context) error { return errors.New("down") },
		FullReauth:      func(ctx context.Context) error { return errors.New("down") },
	}
	s := New(actions, 10, nil)
	s.schedule = []time.Duration{time.Hour} // long enough that cancellation wins the race

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := s.Recover(ctx, Reason{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
