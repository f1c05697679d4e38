package domain

import "context"

// Provider is the uniform contract wrapping one concrete model endpoint.
// Implementations translate between the gateway's canonical shapes and the
// upstream SDK, and classify upstream failures as transient or permanent.
type Provider interface {
	Name() string

	// Invoke handles unary requests.
	Invoke(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// Stream returns a channel of events.
	// The channel MUST be closed by the provider when done.
	Stream(ctx context.Context, req *ProviderRequest) (<-chan StreamEvent, error)

	// Ping performs a lightweight reachability check.
	Ping(ctx context.Context) error
}
