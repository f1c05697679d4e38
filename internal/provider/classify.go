package provider

import (
	"context"
	"errors"
	"net"

	openai "github.com/sashabaranov/go-openai"

	"github.com/balizero/reasoning-gateway/internal/domain"
)

// Classify maps an upstream SDK error onto the gateway's error taxonomy.
// Rate limits, overload, server errors, and network failures are transient;
// malformed requests and auth failures are permanent.
func Classify(providerName string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &domain.TransientProviderError{Provider: providerName, Reason: "timeout", Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return &domain.TransientProviderError{Provider: providerName, Reason: "rate_limit", Err: err}
		case apiErr.HTTPStatusCode >= 500:
			return &domain.TransientProviderError{Provider: providerName, Reason: "server_error", Err: err}
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return &domain.PermanentProviderError{Provider: providerName, Reason: "auth", Err: err}
		case apiErr.HTTPStatusCode >= 400:
			return &domain.PermanentProviderError{Provider: providerName, Reason: "bad_request", Err: err}
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500 {
			return &domain.TransientProviderError{Provider: providerName, Reason: "server_error", Err: err}
		}
		if reqErr.HTTPStatusCode >= 400 {
			return &domain.PermanentProviderError{Provider: providerName, Reason: "bad_request", Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &domain.TransientProviderError{Provider: providerName, Reason: "network", Err: err}
	}

	// Unknown errors are treated as transient so a flaky upstream can still
	// trip the breaker rather than silently bypassing it.
	return &domain.TransientProviderError{Provider: providerName, Reason: "unknown", Err: err}
}
