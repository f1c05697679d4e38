package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/balizero/reasoning-gateway/internal/domain"
)

// fakeClock advances only when told to.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(threshold int, reset time.Duration) (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r := NewRegistry(Options{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
		Clock:            clock,
	})
	return r, clock
}

func transientErr() error {
	return &domain.TransientProviderError{Provider: "p", Reason: "rate_limit"}
}

func TestRegistry_OpensAfterThreshold(t *testing.T) {
	r, _ := newTestRegistry(3, time.Minute)

	for i := 0; i < 2; i++ {
		r.RecordFailure("haiku", transientErr())
		if !r.Allow("haiku") {
			t.Fatalf("breaker should stay closed after %d failures", i+1)
		}
	}

	r.RecordFailure("haiku", transientErr())
	if r.Allow("haiku") {
		t.Fatal("breaker should be open after reaching threshold")
	}
	if r.Available("haiku") {
		t.Fatal("open breaker should not be available")
	}
}

func TestRegistry_PermanentErrorsDoNotCount(t *testing.T) {
	r, _ := newTestRegistry(2, time.Minute)

	perm := &domain.PermanentProviderError{Provider: "p", Reason: "bad_request"}
	for i := 0; i < 10; i++ {
		r.RecordFailure("haiku", perm)
	}
	if !r.Allow("haiku") {
		t.Fatal("permanent errors must not trip the breaker")
	}
}

func TestRegistry_HalfOpenSingleProbe(t *testing.T) {
	r, clock := newTestRegistry(1, time.Minute)

	r.RecordFailure("opus", transientErr())
	if r.Allow("opus") {
		t.Fatal("expected open breaker")
	}

	clock.Advance(time.Minute)

	if !r.Allow("opus") {
		t.Fatal("first caller after reset timeout should get the probe")
	}
	if r.Allow("opus") {
		t.Fatal("second concurrent caller must be rejected while probe in flight")
	}
}

func TestRegistry_ProbeSuccessCloses(t *testing.T) {
	r, clock := newTestRegistry(1, time.Minute)

	r.RecordFailure("opus", transientErr())
	clock.Advance(time.Minute)
	if !r.Allow("opus") {
		t.Fatal("expected probe")
	}

	r.RecordSuccess("opus")
	if !r.Allow("opus") {
		t.Fatal("breaker should be closed after successful probe")
	}
}

func TestRegistry_PermanentProbeOutcomeReleasesProbe(t *testing.T) {
	r, clock := newTestRegistry(1, time.Minute)

	r.RecordFailure("opus", transientErr())
	clock.Advance(2 * time.Minute)
	if !r.Allow("opus") {
		t.Fatal("expected probe after reset timeout")
	}

	// The probe call came back with a permanent error. The provider is
	// reachable, so the breaker must resolve the probe and close rather
	// than stay half-open with the token held forever.
	r.RecordFailure("opus", &domain.PermanentProviderError{Provider: "opus", Reason: "auth"})

	clock.Advance(24 * time.Hour)
	if !r.Available("opus") {
		t.Fatal("breaker still unavailable after permanent probe outcome")
	}
	if !r.Allow("opus") {
		t.Fatal("breaker still rejecting calls after permanent probe outcome")
	}
}

func TestRegistry_SuccessResetsFailureCount(t *testing.T) {
	r, _ := newTestRegistry(3, time.Minute)

	r.RecordFailure("p", transientErr())
	r.RecordFailure("p", transientErr())
	r.RecordSuccess("p")
	r.RecordFailure("p", transientErr())
	r.RecordFailure("p", transientErr())
	if !r.Allow("p") {
		t.Fatal("success should have reset the consecutive failure count")
	}
}

func TestRegistry_ProbeFailureReopens(t *testing.T) {
	r, clock := newTestRegistry(1, time.Minute)

	r.RecordFailure("opus", transientErr())
	clock.Advance(time.Minute)
	if !r.Allow("opus") {
		t.Fatal("expected probe")
	}

	r.RecordFailure("opus", transientErr())
	if r.Allow("opus") {
		t.Fatal("failed probe should reopen the breaker")
	}

	// The openedAt timestamp must be refreshed on reopen.
	clock.Advance(30 * time.Second)
	if r.Allow("opus") {
		t.Fatal("reopened breaker should wait a full reset timeout again")
	}
	clock.Advance(30 * time.Second)
	if !r.Allow("opus") {
		t.Fatal("expected a new probe after the refreshed reset timeout")
	}
}

func TestRegistry_ConcurrentFailuresAllCounted(t *testing.T) {
	r, _ := newTestRegistry(100, time.Minute)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				r.RecordFailure("shared", transientErr())
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if r.Allow("shared") {
		t.Fatal("100 concurrent failures with threshold 100 should open the breaker")
	}
}

func TestRegistry_SnapshotStates(t *testing.T) {
	r, _ := newTestRegistry(1, time.Minute)
	r.RecordFailure("a", transientErr())
	r.RecordSuccess("b")

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	states := make(map[string]string)
	for _, s := range snap {
		states[s.Provider] = s.State
	}
	if states["a"] != "open" {
		t.Errorf("expected provider a open, got %s", states["a"])
	}
	if states["b"] != "closed" {
		t.Errorf("expected provider b closed, got %s", states["b"])
	}
}

func TestIsTransientClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", transientErr(), true},
		{"permanent", &domain.PermanentProviderError{Provider: "p"}, false},
		{"stage timeout", &domain.StageTimeoutError{Stage: "giant"}, true},
		{"chain exhausted", &domain.ChainExhaustedError{Tier: domain.TierBalanced}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
