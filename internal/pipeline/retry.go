package pipeline

import (
	"context"
	"time"

	"github.com/balizero/reasoning-gateway/internal/domain"
)

// RetryPolicy retries transient failures with exponential backoff. The base
// delay doubles after every failed attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// retryPhase is the explicit state of one retry run. Driving the loop through
// named states keeps the policy testable with a fake clock instead of
// sleeping through real backoff windows.
type retryPhase int

const (
	phaseAttempting retryPhase = iota
	phaseWaiting
	phaseSucceeded
	phaseFailed
)

// Run drives fn through the policy. Transient failures (including stage
// timeouts) schedule a backoff wait and re-attempt; anything else fails the
// run immediately. Context cancellation aborts a pending wait.
func (p RetryPolicy) Run(ctx context.Context, clock Clock, fn func(attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	phase := phaseAttempting
	attempt := 0
	var lastErr error
	var wait <-chan time.Time

	for {
		switch phase {
		case phaseAttempting:
			attempt++
			err := fn(attempt)
			switch {
			case err == nil:
				phase = phaseSucceeded
			case !domain.IsTransient(err) || attempt >= maxAttempts:
				lastErr = err
				phase = phaseFailed
			default:
				lastErr = err
				wait = clock.After(delay)
				delay *= 2
				phase = phaseWaiting
			}
		case phaseWaiting:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
				phase = phaseAttempting
			}
		case phaseSucceeded:
			return nil
		case phaseFailed:
			return lastErr
		}
	}
}
