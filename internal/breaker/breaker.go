// Package breaker implements a per-provider circuit breaker registry.
//
// The registry is an explicit dependency injected into the gateway rather
// than process-global state. It is the only state shared across concurrent
// requests, so all transitions happen under one mutex.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/balizero/reasoning-gateway/internal/domain"
)

// State is the circuit breaker state for one provider.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Clock abstracts time so breaker transitions are testable without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Options configures a breaker registry.
type Options struct {
	// FailureThreshold is the consecutive transient failure count that trips
	// a closed breaker open.
	FailureThreshold int
	// ResetTimeout is how long an open breaker waits before allowing a
	// half-open probe.
	ResetTimeout time.Duration
	Clock        Clock
	Logger       *slog.Logger
}

type entry struct {
	state               State
	consecutiveFailures int
	openedAt            time.Time
	// probing is set while a half-open probe is in flight. Concurrent
	// requests that arrive during the probe are treated as if the breaker
	// were still open.
	probing bool
}

// Registry tracks one circuit breaker per provider identifier. Entries are
// created lazily on first use and live for the process lifetime.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	threshold int
	reset     time.Duration
	clock     Clock
	logger    *slog.Logger
}

// NewRegistry creates a registry with the given options.
func NewRegistry(opts Options) *Registry {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 60 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		entries:   make(map[string]*entry),
		threshold: opts.FailureThreshold,
		reset:     opts.ResetTimeout,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
}

func (r *Registry) get(provider string) *entry {
	e, ok := r.entries[provider]
	if !ok {
		e = &entry{state: StateClosed}
		r.entries[provider] = e
	}
	return e
}

// Available reports whether a provider is worth including in a fallback
// chain. It is false only while the breaker is strictly open and the reset
// timeout has not elapsed. Available never mutates state; use Allow at call
// time to acquire the half-open probe.
func (r *Registry) Available(provider string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.get(provider)
	switch e.state {
	case StateOpen:
		return r.clock.Now().Sub(e.openedAt) >= r.reset
	case StateHalfOpen:
		return !e.probing
	default:
		return true
	}
}

// Allow gates an actual provider call. For an open breaker whose reset
// timeout has elapsed it transitions to half-open and grants exactly one
// probe; further callers are rejected until the probe's outcome is recorded.
func (r *Registry) Allow(provider string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.get(provider)
	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if r.clock.Now().Sub(e.openedAt) < r.reset {
			return false
		}
		e.state = StateHalfOpen
		e.probing = true
		r.logger.Info("breaker half-open, allowing probe", slog.String("provider", provider))
		return true
	case StateHalfOpen:
		if e.probing {
			return false
		}
		e.probing = true
		return true
	default:
		return true
	}
}

// RecordSuccess resets the provider's failure count and closes the breaker.
func (r *Registry) RecordSuccess(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.get(provider)
	if e.state != StateClosed {
		r.logger.Info("breaker closed", slog.String("provider", provider))
	}
	e.state = StateClosed
	e.consecutiveFailures = 0
	e.openedAt = time.Time{}
	e.probing = false
}

// RecordFailure records a call failure. Only transient failures count toward
// the threshold; permanent errors (bad request, auth) pass through without
// penalizing the breaker. A failed half-open probe reopens immediately.
func (r *Registry) RecordFailure(provider string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.get(provider)

	if domain.IsPermanent(err) {
		// A permanent error proves the provider is reachable, so it never
		// counts toward the threshold. If it resolved a half-open probe the
		// probe token must still be released, otherwise the breaker would
		// stay half-open with no way forward; the upstream answered, so the
		// breaker closes.
		if e.state == StateHalfOpen {
			e.state = StateClosed
			e.consecutiveFailures = 0
			e.openedAt = time.Time{}
			e.probing = false
			r.logger.Info("breaker closed, probe drew a permanent error",
				slog.String("provider", provider))
		}
		return
	}

	switch e.state {
	case StateHalfOpen:
		e.state = StateOpen
		e.openedAt = r.clock.Now()
		e.probing = false
		r.logger.Warn("breaker probe failed, reopening", slog.String("provider", provider))
	case StateClosed:
		e.consecutiveFailures++
		if e.consecutiveFailures >= r.threshold {
			e.state = StateOpen
			e.openedAt = r.clock.Now()
			r.logger.Warn("breaker opened",
				slog.String("provider", provider),
				slog.Int("consecutive_failures", e.consecutiveFailures))
		}
	case StateOpen:
		// Already open; nothing to count.
	}
}

// Status is a point-in-time view of one breaker, used by health and metrics.
type Status struct {
	Provider            string `json:"provider"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// Snapshot returns the current state of every known breaker.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, Status{
			Provider:            name,
			State:               e.state.String(),
			ConsecutiveFailures: e.consecutiveFailures,
		})
	}
	return out
}
