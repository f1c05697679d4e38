// Package gateway provides the public API for embedding the reasoning
// gateway. This is the stable API for external consumers.
package gateway

import (
	"github.com/balizero/reasoning-gateway/internal/runtime"
)

// Gateway is the main entry point for running the reasoning gateway.
// See internal/runtime.Runtime for full documentation.
type Gateway = runtime.Runtime

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// New creates a new Gateway with the given options.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithConfigFile("config.yaml"),
//	    gateway.WithLogger(logger),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile

	// Collaborator injection
	WithProviders      = runtime.WithProviders
	WithSecondary      = runtime.WithSecondary
	WithKnowledgeStore = runtime.WithKnowledgeStore

	// Advanced options
	WithLogger          = runtime.WithLogger
	WithMetricsRegistry = runtime.WithMetricsRegistry
	WithClock           = runtime.WithClock
)
