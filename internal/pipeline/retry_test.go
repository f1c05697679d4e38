package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/balizero/reasoning-gateway/internal/domain"
)

// fakeClock fires every scheduled wait immediately and records the requested
// delays.
type fakeClock struct {
	now    time.Time
	delays []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func transient() error {
	return &domain.TransientProviderError{Provider: "p", Reason: "rate_limit"}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	clock := newFakeClock()
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

	calls := 0
	err := policy.Run(context.Background(), clock, func(attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(clock.delays) != 0 {
		t.Errorf("unexpected backoff waits: %v", clock.delays)
	}
}

func TestRetry_BacksOffExponentially(t *testing.T) {
	clock := newFakeClock()
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

	calls := 0
	err := policy.Run(context.Background(), clock, func(attempt int) error {
		calls++
		if calls < 3 {
			return transient()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(clock.delays) != 2 || clock.delays[0] != want[0] || clock.delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", clock.delays, want)
	}
}

func TestRetry_ExhaustsAfterMaxAttempts(t *testing.T) {
	clock := newFakeClock()
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

	calls := 0
	err := policy.Run(context.Background(), clock, func(attempt int) error {
		calls++
		return transient()
	})
	if !domain.IsTransient(err) {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_PermanentFailureStopsImmediately(t *testing.T) {
	clock := newFakeClock()
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

	calls := 0
	err := policy.Run(context.Background(), clock, func(attempt int) error {
		calls++
		return &domain.PermanentProviderError{Provider: "p", Reason: "bad_request"}
	})
	if !domain.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent failure)", calls)
	}
	if len(clock.delays) != 0 {
		t.Errorf("unexpected backoff waits: %v", clock.delays)
	}
}

func TestRetry_StageTimeoutIsRetried(t *testing.T) {
	clock := newFakeClock()
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second}

	calls := 0
	err := policy.Run(context.Background(), clock, func(attempt int) error {
		calls++
		if calls == 1 {
			return &domain.StageTimeoutError{Stage: "giant", Timeout: time.Minute}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_CancellationAbortsWait(t *testing.T) {
	// A clock whose waits never fire, so only cancellation can finish the
	// waiting state.
	blocked := &blockedClock{}
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	err := policy.Run(ctx, blocked, func(attempt int) error {
		return transient()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type blockedClock struct{}

func (blockedClock) Now() time.Time                       { return time.Unix(0, 0) }
func (blockedClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }
