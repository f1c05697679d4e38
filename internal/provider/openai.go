// Package provider wraps concrete model endpoints behind the uniform
// domain.Provider contract. Each adapter translates canonical requests to its
// SDK's shapes and classifies upstream failures as transient or permanent.
package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/balizero/reasoning-gateway/internal/config"
	"github.com/balizero/reasoning-gateway/internal/domain"
)

// OpenAIAdapter calls an OpenAI-compatible chat completion endpoint through
// the native SDK.
type OpenAIAdapter struct {
	name   string
	model  string
	client *openai.Client
	prices Prices
	logger *slog.Logger
}

// Prices holds the USD-per-1K-token rates used for cost estimates.
type Prices struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// NewOpenAIAdapter creates an adapter from provider configuration. A custom
// BaseURL points the SDK at any OpenAI-compatible endpoint.
func NewOpenAIAdapter(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIAdapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIAdapter{
		name:   cfg.Name,
		model:  cfg.Model,
		client: openai.NewClientWithConfig(clientCfg),
		prices: Prices{
			PromptPer1K:     cfg.PromptCostPer1K,
			CompletionPer1K: cfg.CompletionCostPer1K,
		},
		logger: logger.With(slog.String("provider", cfg.Name)),
	}
}

func (a *OpenAIAdapter) Name() string { return a.name }

// Model returns the upstream model identifier this adapter is pinned to.
func (a *OpenAIAdapter) Model() string { return a.model }

// Pricing returns the configured token prices.
func (a *OpenAIAdapter) Pricing() Prices { return a.prices }

func (a *OpenAIAdapter) Invoke(ctx context.Context, req *domain.ProviderRequest) (*domain.ProviderResponse, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.buildRequest(req))
	if err != nil {
		return nil, Classify(a.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.TransientProviderError{Provider: a.name, Reason: "empty_choices"}
	}

	choice := resp.Choices[0]
	a.logger.Debug("completion received",
		slog.String("finish_reason", string(choice.FinishReason)),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens))

	return &domain.ProviderResponse{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (a *OpenAIAdapter) Stream(ctx context.Context, req *domain.ProviderRequest) (<-chan domain.StreamEvent, error) {
	sdkReq := a.buildRequest(req)
	sdkReq.Stream = true
	sdkReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := a.client.CreateChatCompletionStream(ctx, sdkReq)
	if err != nil {
		return nil, Classify(a.name, err)
	}

	events := make(chan domain.StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case events <- domain.StreamEvent{Err: Classify(a.name, err)}:
				case <-ctx.Done():
				}
				return
			}

			ev := domain.StreamEvent{}
			if len(chunk.Choices) > 0 {
				ev.ContentDelta = chunk.Choices[0].Delta.Content
			}
			if chunk.Usage != nil {
				ev.Usage = &domain.Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
				}
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// Ping lists models as a lightweight reachability check.
func (a *OpenAIAdapter) Ping(ctx context.Context) error {
	if _, err := a.client.ListModels(ctx); err != nil {
		return Classify(a.name, err)
	}
	return nil
}

func (a *OpenAIAdapter) buildRequest(req *domain.ProviderRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	sdkReq := openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		sdkReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		sdkReq.Temperature = req.Temperature
	}
	return sdkReq
}

var _ domain.Provider = (*OpenAIAdapter)(nil)
