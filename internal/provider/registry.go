package provider

import (
	"fmt"
	"log/slog"

	"github.com/balizero/reasoning-gateway/internal/config"
	"github.com/balizero/reasoning-gateway/internal/domain"
)

// Registry creates provider adapters from configuration.
type Registry struct {
	logger *slog.Logger
}

// NewRegistry creates a provider registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// CreateProvider builds one adapter for the configured type.
func (r *Registry) CreateProvider(cfg config.ProviderConfig) (domain.Provider, error) {
	switch cfg.Type {
	case "openai", "":
		return NewOpenAIAdapter(cfg, r.logger), nil
	case "openrouter":
		return NewOpenRouterAdapter(cfg, r.logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for provider %s", cfg.Type, cfg.Name)
	}
}

// CreateProviders builds the full provider map keyed by identifier.
func (r *Registry) CreateProviders(configs []config.ProviderConfig) (map[string]domain.Provider, error) {
	providers := make(map[string]domain.Provider)
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("provider config missing name (type %s)", cfg.Type)
		}
		p, err := r.CreateProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("create provider %s: %w", cfg.Name, err)
		}
		providers[cfg.Name] = p
	}
	return providers, nil
}

// PriceFor looks up the configured prices for a provider identifier. Adapters
// without configured prices report zero, which disables cost budgeting for
// that provider.
func PriceFor(p domain.Provider) Prices {
	type priced interface{ Pricing() Prices }
	if pp, ok := p.(priced); ok {
		return pp.Pricing()
	}
	return Prices{}
}
