package provider

import (
	"context"
	"log/slog"
	"sync"

	"github.com/balizero/reasoning-gateway/internal/config"
	"github.com/balizero/reasoning-gateway/internal/domain"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterAdapter wraps the secondary aggregator network. The endpoint is
// OpenAI-compatible, so it reuses the SDK adapter internally, but the client
// is built lazily: the aggregator is a last resort and most processes never
// touch it.
type OpenRouterAdapter struct {
	cfg    config.ProviderConfig
	logger *slog.Logger

	once  sync.Once
	inner *OpenAIAdapter
}

// NewOpenRouterAdapter creates the lazy aggregator adapter.
func NewOpenRouterAdapter(cfg config.ProviderConfig, logger *slog.Logger) *OpenRouterAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouterBaseURL
	}
	if cfg.Name == "" {
		cfg.Name = "openrouter"
	}
	return &OpenRouterAdapter{cfg: cfg, logger: logger}
}

func (a *OpenRouterAdapter) adapter() *OpenAIAdapter {
	a.once.Do(func() {
		a.logger.Info("initializing aggregator network client",
			slog.String("provider", a.cfg.Name),
			slog.String("model", a.cfg.Model))
		a.inner = NewOpenAIAdapter(a.cfg, a.logger)
	})
	return a.inner
}

func (a *OpenRouterAdapter) Name() string { return a.cfg.Name }

// Pricing returns the configured token prices.
func (a *OpenRouterAdapter) Pricing() Prices {
	return Prices{
		PromptPer1K:     a.cfg.PromptCostPer1K,
		CompletionPer1K: a.cfg.CompletionCostPer1K,
	}
}

func (a *OpenRouterAdapter) Invoke(ctx context.Context, req *domain.ProviderRequest) (*domain.ProviderResponse, error) {
	return a.adapter().Invoke(ctx, req)
}

func (a *OpenRouterAdapter) Stream(ctx context.Context, req *domain.ProviderRequest) (<-chan domain.StreamEvent, error) {
	return a.adapter().Stream(ctx, req)
}

func (a *OpenRouterAdapter) Ping(ctx context.Context) error {
	return a.adapter().Ping(ctx)
}

var _ domain.Provider = (*OpenRouterAdapter)(nil)
