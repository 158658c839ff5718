package quota

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTracker_DailyBudgetExhausted(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Config{RequestsPerDay: 2})
	ctx := context.Background()

	if err := tracker.Acquire(ctx); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := tracker.Acquire(ctx); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if err := tracker.Acquire(ctx); !errors.Is(err, ErrDailyBudgetExhausted) {
		t.Fatalf("expected daily budget exhausted, got=%v", err)
	}

	if used := tracker.Used(); used != 2 {
		t.Fatalf("expected used=2, got=%d", used)
	}
	if remaining := tracker.Remaining(); remaining != 0 {
		t.Fatalf("expected remaining=0, got=%d", remaining)
	}
}

func TestTracker_NoBudgetConfigured(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Config{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := tracker.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	if remaining := tracker.Remaining(); remaining != -1 {
		t.Fatalf("expected unlimited sentinel -1, got=%d", remaining)
	}
}

func TestTracker_DayRollsOverAtUTCMidnight(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Config{RequestsPerDay: 1})
	current := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	tracker.now = func() time.Time { return current }

	ctx := context.Background()
	if err := tracker.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := tracker.Acquire(ctx); !errors.Is(err, ErrDailyBudgetExhausted) {
		t.Fatalf("expected budget exhausted, got=%v", err)
	}

	current = current.Add(2 * time.Minute)
	if err := tracker.Acquire(ctx); err != nil {
		t.Fatalf("expected fresh budget after midnight, got=%v", err)
	}
	if used := tracker.Used(); used != 1 {
		t.Fatalf("expected used=1 on new day, got=%d", used)
	}
}

func TestTracker_ReleasesBudgetOnContextCancel(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Config{
		RequestsPerDay:       10,
		DelayBetweenRequests: time.Hour,
	})

	if err := tracker.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tracker.Acquire(ctx); err == nil {
		t.Fatalf("expected context timeout while waiting on spacing")
	}

	// The reserved daily unit must come back when spacing rejects.
	if used := tracker.Used(); used != 1 {
		t.Fatalf("expected used=1 after release, got=%d", used)
	}
}

func TestTracker_WaitBeyondDeadlineReturnsSentinel(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Config{RequestsPerMinute: 1})
	if err := tracker.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	// The next minute token is ~60s away, far past this deadline, so
	// the limiter rejects without suspending and without the ctx ever
	// expiring.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := tracker.Acquire(ctx)
	if !errors.Is(err, ErrWaitDeadline) {
		t.Fatalf("expected ErrWaitDeadline, got=%v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("limiter rejection must stay distinct from a ctx deadline: %v", err)
	}
}

func TestTracker_NilIsNoop(t *testing.T) {
	t.Parallel()

	var tracker *Tracker
	if err := tracker.Acquire(context.Background()); err != nil {
		t.Fatalf("nil tracker should admit calls, got=%v", err)
	}
}
