// Package domain provides the canonical types and error taxonomy for the
// reasoning gateway.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TransientProviderError marks a provider failure that is expected to clear
// on its own (rate limit, overload, network blip). Transient failures are
// retried and increment the provider's circuit breaker.
type TransientProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *TransientProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s transient failure (%s): %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s transient failure: %s", e.Provider, e.Reason)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// PermanentProviderError marks a provider failure that retrying cannot fix
// (bad request, auth failure). It is surfaced immediately and does not
// penalize the circuit breaker.
type PermanentProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *PermanentProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s permanent failure (%s): %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s permanent failure: %s", e.Provider, e.Reason)
}

func (e *PermanentProviderError) Unwrap() error { return e.Err }

// CircuitOpenError indicates a provider was skipped because its breaker is
// open. It is chain-internal: the gateway records it in the attempt trail but
// never surfaces it to callers.
type CircuitOpenError struct {
	Provider string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for provider %s", e.Provider)
}

// ChainExhaustedError is returned when every provider in the resolved chain,
// plus the secondary aggregator network, has failed for one request.
type ChainExhaustedError struct {
	Tier     Tier
	Attempts []error
}

func (e *ChainExhaustedError) Error() string {
	msgs := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("fallback chain exhausted for tier %s after %d attempts: %s",
		e.Tier, len(e.Attempts), strings.Join(msgs, "; "))
}

func (e *ChainExhaustedError) Unwrap() []error { return e.Attempts }

// StageTimeoutError indicates a pipeline stage exceeded its deadline. It is
// classified as transient for retry purposes.
type StageTimeoutError struct {
	Stage   string
	Timeout time.Duration
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out after %s", e.Stage, e.Timeout)
}

// ValidationError rejects a malformed request before any provider call. It is
// the only error class surfaced directly to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ErrValidation constructs a ValidationError.
func ErrValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsTransient reports whether err should be retried. Stage timeouts count as
// transient; a chain exhaustion counts as transient because the conditions
// that emptied the chain (open breakers, rate limits) are themselves
// transient.
func IsTransient(err error) bool {
	var te *TransientProviderError
	if errors.As(err, &te) {
		return true
	}
	var ste *StageTimeoutError
	if errors.As(err, &ste) {
		return true
	}
	var ce *ChainExhaustedError
	return errors.As(err, &ce)
}

// IsPermanent reports whether err is a non-retriable provider failure.
func IsPermanent(err error) bool {
	var pe *PermanentProviderError
	return errors.As(err, &pe)
}
