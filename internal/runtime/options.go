package runtime

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/balizero/reasoning-gateway/internal/config"
	"github.com/balizero/reasoning-gateway/internal/domain"
	"github.com/balizero/reasoning-gateway/internal/knowledge"
	"github.com/balizero/reasoning-gateway/internal/pipeline"
	"github.com/balizero/reasoning-gateway/internal/shaper"
)

// Option is a functional option for configuring a Runtime.
type Option func(*Runtime) error

// WithConfig uses an already-loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(r *Runtime) error {
		r.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file, with environment
// variables layered on top.
func WithConfigFile(path string) Option {
	return func(r *Runtime) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		r.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) error {
		r.logger = logger
		return nil
	}
}

// WithKnowledgeStore injects a pre-built knowledge store instead of opening
// the configured sqlite path.
func WithKnowledgeStore(kb *knowledge.Store) Option {
	return func(r *Runtime) error {
		r.kb = kb
		return nil
	}
}

// WithProviders injects pre-built provider adapters, bypassing config-driven
// adapter creation. Useful for embedding and tests.
func WithProviders(providers map[string]domain.Provider) Option {
	return func(r *Runtime) error {
		r.providers = providers
		return nil
	}
}

// WithSecondary injects the aggregator-network provider tried after native
// chain exhaustion.
func WithSecondary(p domain.Provider) Option {
	return func(r *Runtime) error {
		r.secondary = p
		return nil
	}
}

// WithMetricsRegistry uses an external prometheus registry so embedding
// applications can merge collectors.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(r *Runtime) error {
		r.registry = reg
		return nil
	}
}

// WithClock overrides the pipeline clock. Tests use this to make retry
// backoff instantaneous.
func WithClock(clock pipeline.Clock) Option {
	return func(r *Runtime) error {
		r.clock = clock
		return nil
	}
}

func newShaper(cfg config.ShaperConfig) *shaper.Shaper {
	return shaper.New(cfg.MinWords, cfg.MaxWords)
}
