package gateway

import (
	"context"
	"log/slog"
	"strings"

	"github.com/balizero/reasoning-gateway/internal/domain"
)

// ExecuteStream traverses the chain like Execute but streams the winning
// provider's output, forwarding each content delta to emit. Failover covers
// only the connection attempt: once a provider has produced content, a
// mid-stream error fails the whole call rather than restarting on another
// provider with a half-duplicated answer.
func (g *Gateway) ExecuteStream(ctx context.Context, req *domain.ReasoningRequest, emit func(delta string)) (*domain.ReasoningResult, error) {
	chain, err := g.router.Chain(req.Tier)
	if err != nil {
		return nil, err
	}

	depth := req.DepthBudget
	if depth <= 0 || depth > g.depthBudget {
		depth = g.depthBudget
	}

	var attempts []error
	used := 0

	candidates := chain
	if g.secondary != nil {
		candidates = append(append([]string{}, chain...), g.secondary.Name())
	}

	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		isSecondary := g.secondary != nil && id == g.secondary.Name()
		if !isSecondary && used >= depth {
			continue
		}

		p := g.lookup(id)
		if p == nil {
			continue
		}
		if !isSecondary && !g.breakers.Allow(id) {
			attempts = append(attempts, &domain.CircuitOpenError{Provider: id})
			continue
		}
		if !isSecondary {
			used++
		}

		result, flowed, err := g.streamOne(ctx, id, p, req, emit)
		if err == nil {
			g.breakers.RecordSuccess(id)
			g.recordOutcome(id, "success", nil)
			return result, nil
		}
		if ctx.Err() != nil {
			// The caller gave up; the provider did not fail.
			return nil, ctx.Err()
		}

		g.breakers.RecordFailure(id, err)
		g.recordOutcome(id, "failure", err)
		attempts = append(attempts, err)
		if flowed {
			// The caller has already seen this provider's output; restarting
			// on another provider would duplicate half an answer.
			return nil, err
		}
		if domain.IsPermanent(err) {
			return nil, err
		}
	}

	return nil, &domain.ChainExhaustedError{Tier: req.Tier, Attempts: attempts}
}

func (g *Gateway) lookup(id string) domain.Provider {
	if p, ok := g.providers[id]; ok {
		return p
	}
	if g.secondary != nil && g.secondary.Name() == id {
		return g.secondary
	}
	g.logger.Error("chain references unknown provider", slog.String("provider", id))
	return nil
}

// streamOne runs a single provider stream. The returned flag reports whether
// any content delta reached emit before the error, which makes the error
// terminal for the whole chain.
func (g *Gateway) streamOne(ctx context.Context, id string, p domain.Provider, req *domain.ReasoningRequest, emit func(delta string)) (*domain.ReasoningResult, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	preq := buildProviderRequest(req)
	events, err := p.Stream(callCtx, preq)
	if err != nil {
		return nil, false, err
	}

	var text strings.Builder
	var usage domain.Usage
	flowed := false
	for ev := range events {
		if ev.Err != nil {
			return nil, flowed, ev.Err
		}
		if ev.ContentDelta != "" {
			flowed = true
			text.WriteString(ev.ContentDelta)
			emit(ev.ContentDelta)
		}
		if ev.Usage != nil {
			usage = *ev.Usage
		}
	}

	if usage.PromptTokens == 0 {
		usage.PromptTokens = g.estimator.CountRequest(modelOf(p), preq)
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = g.estimator.Count(modelOf(p), text.String())
	}

	return &domain.ReasoningResult{
		Text:         text.String(),
		ModelUsed:    id,
		TokensIn:     usage.PromptTokens,
		TokensOut:    usage.CompletionTokens,
		CostEstimate: g.cost(p, usage.PromptTokens, usage.CompletionTokens),
		QualityScore: baseQuality("stop"),
	}, flowed, nil
}
