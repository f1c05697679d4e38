// Package runtime assembles the reasoning gateway from configuration and
// manages its lifecycle. Runtime can be embedded in larger applications or
// run standalone from cmd/gateway.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/balizero/reasoning-gateway/internal/breaker"
	"github.com/balizero/reasoning-gateway/internal/config"
	"github.com/balizero/reasoning-gateway/internal/domain"
	"github.com/balizero/reasoning-gateway/internal/gateway"
	"github.com/balizero/reasoning-gateway/internal/health"
	"github.com/balizero/reasoning-gateway/internal/knowledge"
	"github.com/balizero/reasoning-gateway/internal/pipeline"
	"github.com/balizero/reasoning-gateway/internal/provider"
	"github.com/balizero/reasoning-gateway/internal/router"
	"github.com/balizero/reasoning-gateway/internal/server"
	"github.com/balizero/reasoning-gateway/internal/telemetry"
	"github.com/balizero/reasoning-gateway/internal/tokens"
)

// Runtime wires configuration into the provider adapters, breaker registry,
// gateway, pipeline, and HTTP surface.
type Runtime struct {
	// Dependencies (injected via options)
	cfg       *config.Config
	logger    *slog.Logger
	kb        *knowledge.Store
	providers map[string]domain.Provider
	secondary domain.Provider
	registry  *prometheus.Registry
	clock     pipeline.Clock

	// Built state
	breakers *breaker.Registry
	pipeline *pipeline.Pipeline
	server   *server.Server

	mu      sync.Mutex
	started bool
	serveCh chan error
}

// New creates a Runtime with the given options. A config is required; every
// other collaborator has a config-derived default.
func New(opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if rt.cfg == nil {
		return nil, fmt.Errorf("config required (use WithConfig or WithConfigFile)")
	}
	if rt.registry == nil {
		rt.registry = prometheus.NewRegistry()
	}
	if rt.clock == nil {
		rt.clock = pipeline.SystemClock()
	}
	return rt, nil
}

// Start builds all components and begins serving HTTP. It returns once the
// listener is running; serve errors surface on Wait.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runtime already started")
	}

	cfg := r.cfg
	metrics := telemetry.NewMetrics(r.registry)

	if r.providers == nil {
		registry := provider.NewRegistry(r.logger)
		providers, err := registry.CreateProviders(cfg.Providers)
		if err != nil {
			return fmt.Errorf("create providers: %w", err)
		}
		r.providers = providers
	}
	if r.secondary == nil && cfg.Secondary.APIKey != "" {
		registry := provider.NewRegistry(r.logger)
		secondary, err := registry.CreateProvider(cfg.Secondary)
		if err != nil {
			return fmt.Errorf("create secondary provider: %w", err)
		}
		r.secondary = secondary
	}

	if r.kb == nil {
		kb, err := knowledge.Open(ctx, cfg.Knowledge.Path, r.logger)
		if err != nil {
			return fmt.Errorf("open knowledge store: %w", err)
		}
		r.kb = kb
	}

	r.breakers = breaker.NewRegistry(breaker.Options{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout(),
		Logger:           r.logger,
	})
	rt := router.New(cfg.Tiers, r.breakers)

	synthTier, err := domain.ParseTier(cfg.Pipeline.SynthesisTier)
	if err != nil {
		return fmt.Errorf("resolve synthesis tier: %w", err)
	}

	gw := gateway.New(gateway.Config{
		Providers:   r.providers,
		Secondary:   r.secondary,
		Router:      rt,
		Breakers:    r.breakers,
		Estimator:   tokens.NewEstimator(),
		Metrics:     metrics,
		Logger:      r.logger,
		CallTimeout: cfg.Gateway.CallTimeout(),
		DepthBudget: cfg.Gateway.DepthBudget,
		CostBudget:  cfg.Gateway.CostBudget,
	})

	r.pipeline = pipeline.New(pipeline.Config{
		Gateway:   gw,
		Knowledge: r.kb,
		Shaper:    newShaper(cfg.Shaper),
		Clock:     r.clock,
		Logger:    r.logger,
		Metrics:   metrics,

		GiantTimeout:   cfg.Pipeline.GiantTimeout(),
		CellTimeout:    cfg.Pipeline.CellTimeout(),
		ZantaraTimeout: cfg.Pipeline.ZantaraTimeout(),
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.Pipeline.RetryMaxAttempts,
			BaseDelay:   cfg.Pipeline.RetryBaseDelay(),
		},
		SynthesisTier: synthTier,
		PersonaPrompt: cfg.Pipeline.PersonaPrompt,
	})

	aggregator := health.New(health.Config{
		Providers:     r.providers,
		Knowledge:     r.kb,
		Router:        rt,
		Breakers:      r.breakers,
		Logger:        r.logger,
		SynthesisTier: synthTier,
	})

	handler := server.NewHandler(r.pipeline, aggregator, cfg.Limits, r.logger)
	r.server = server.New(cfg.Server.Port,
		time.Duration(cfg.Server.RequestTimeout)*time.Second,
		r.logger, handler, r.registry)

	r.serveCh = make(chan error, 1)
	go func() {
		r.serveCh <- r.server.Start()
	}()
	r.started = true

	r.logger.Info("runtime started",
		slog.Int("port", cfg.Server.Port),
		slog.Int("providers", len(r.providers)),
		slog.Int("knowledge_entries", r.kb.Len()))
	return nil
}

// Wait blocks until the HTTP listener exits.
func (r *Runtime) Wait() error {
	r.mu.Lock()
	ch := r.serveCh
	r.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("runtime not started")
	}
	return <-ch
}

// Shutdown drains in-flight requests and stops the server.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.logger.Info("shutting down runtime")
	if err := r.server.Shutdown(ctx); err != nil {
		r.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		return err
	}
	r.started = false
	r.logger.Info("runtime shutdown complete")
	return nil
}

// Pipeline exposes the assembled pipeline for embedding callers.
func (r *Runtime) Pipeline() *pipeline.Pipeline { return r.pipeline }

// Breakers exposes the breaker registry, mainly for diagnostics.
func (r *Runtime) Breakers() *breaker.Registry { return r.breakers }
