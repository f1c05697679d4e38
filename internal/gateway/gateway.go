// Package gateway orchestrates fallback-chain traversal across providers.
package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/balizero/reasoning-gateway/internal/breaker"
	"github.com/balizero/reasoning-gateway/internal/domain"
	"github.com/balizero/reasoning-gateway/internal/provider"
	"github.com/balizero/reasoning-gateway/internal/router"
	"github.com/balizero/reasoning-gateway/internal/telemetry"
	"github.com/balizero/reasoning-gateway/internal/tokens"
)

// Config assembles a Gateway from its collaborators.
type Config struct {
	Providers map[string]domain.Provider
	// Secondary is the aggregator network tried once after the native chain
	// is exhausted. Optional.
	Secondary domain.Provider
	Router    *router.Router
	Breakers  *breaker.Registry
	Estimator *tokens.Estimator
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger

	// CallTimeout bounds each individual provider call.
	CallTimeout time.Duration
	// DepthBudget is the default maximum number of provider attempts when a
	// request does not carry its own.
	DepthBudget int
	// CostBudget is the default USD cap per request; zero disables it.
	CostBudget float64
}

// Gateway executes reasoning requests against an ordered provider chain,
// advancing on failure and recording every outcome on the breaker registry.
// Attempts are strictly sequential to bound cost.
type Gateway struct {
	providers   map[string]domain.Provider
	secondary   domain.Provider
	router      *router.Router
	breakers    *breaker.Registry
	estimator   *tokens.Estimator
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	callTimeout time.Duration
	depthBudget int
	costBudget  float64
}

// New creates a gateway.
func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 45 * time.Second
	}
	if cfg.DepthBudget <= 0 {
		cfg.DepthBudget = 4
	}
	if cfg.Estimator == nil {
		cfg.Estimator = tokens.NewEstimator()
	}
	return &Gateway{
		providers:   cfg.Providers,
		secondary:   cfg.Secondary,
		router:      cfg.Router,
		breakers:    cfg.Breakers,
		estimator:   cfg.Estimator,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		tracer:      otel.Tracer("reasoning-gateway"),
		callTimeout: cfg.CallTimeout,
		depthBudget: cfg.DepthBudget,
		costBudget:  cfg.CostBudget,
	}
}

// Execute traverses the request's resolved chain: call, on failure advance,
// then one attempt against the secondary network. It fails with
// ChainExhaustedError only after every eligible provider has failed. A
// permanent provider error aborts the traversal immediately; retrying a bad
// request against more providers cannot fix it.
func (g *Gateway) Execute(ctx context.Context, req *domain.ReasoningRequest) (*domain.ReasoningResult, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.execute",
		trace.WithAttributes(attribute.String("tier", string(req.Tier))))
	defer span.End()

	chain, err := g.router.Chain(req.Tier)
	if err != nil {
		return nil, err
	}

	depth := req.DepthBudget
	if depth <= 0 || depth > g.depthBudget {
		depth = g.depthBudget
	}
	costBudget := req.CostBudget
	if costBudget <= 0 {
		costBudget = g.costBudget
	}

	var attempts []error
	var spent float64
	used := 0

	for _, id := range chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if used >= depth {
			break
		}
		if costBudget > 0 && spent >= costBudget {
			g.logger.Warn("cost budget exhausted, stopping chain traversal",
				slog.Float64("spent", spent), slog.Float64("budget", costBudget))
			break
		}

		p, ok := g.providers[id]
		if !ok {
			g.logger.Error("chain references unknown provider", slog.String("provider", id))
			continue
		}
		// Skipping an open circuit costs nothing and consumes no depth.
		if !g.breakers.Allow(id) {
			attempts = append(attempts, &domain.CircuitOpenError{Provider: id})
			continue
		}

		used++
		result, cost, err := g.attempt(ctx, id, p, req)
		spent += cost
		if err == nil {
			g.breakers.RecordSuccess(id)
			g.recordOutcome(id, "success", nil)
			return result, nil
		}
		if ctx.Err() != nil {
			// The caller gave up, not the provider; the breaker must not be
			// penalized and the rest of the chain must not be burned through
			// with a dead context.
			return nil, ctx.Err()
		}

		g.breakers.RecordFailure(id, err)
		g.recordOutcome(id, "failure", err)
		attempts = append(attempts, err)

		if domain.IsPermanent(err) {
			return nil, err
		}
	}

	// The native chain is done; the aggregator network gets exactly one shot.
	if g.secondary != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := g.secondary.Name()
		result, _, err := g.attempt(ctx, id, g.secondary, req)
		if err == nil {
			g.breakers.RecordSuccess(id)
			g.recordOutcome(id, "success", nil)
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.breakers.RecordFailure(id, err)
		g.recordOutcome(id, "failure", err)
		attempts = append(attempts, err)
	}

	if g.metrics != nil {
		g.metrics.ChainExhaustions.WithLabelValues(string(req.Tier)).Inc()
	}
	return nil, &domain.ChainExhaustedError{Tier: req.Tier, Attempts: attempts}
}

// attempt runs one provider call under the per-call timeout and converts the
// response into a ReasoningResult with usage and cost filled in.
func (g *Gateway) attempt(ctx context.Context, id string, p domain.Provider, req *domain.ReasoningRequest) (*domain.ReasoningResult, float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	preq := buildProviderRequest(req)

	start := time.Now()
	resp, err := p.Invoke(callCtx, preq)
	elapsed := time.Since(start)

	if err != nil {
		g.logger.Warn("provider attempt failed",
			slog.String("provider", id),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		// A failed round trip still consumed the prompt upstream; charge it
		// against the budget.
		cost := g.cost(p, g.estimator.CountRequest(modelOf(p), preq), 0)
		return nil, cost, err
	}

	usage := resp.Usage
	if usage.PromptTokens == 0 {
		usage.PromptTokens = g.estimator.CountRequest(modelOf(p), preq)
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = g.estimator.Count(modelOf(p), resp.Text)
	}
	cost := g.cost(p, usage.PromptTokens, usage.CompletionTokens)

	g.logger.Info("provider attempt succeeded",
		slog.String("provider", id),
		slog.Duration("elapsed", elapsed),
		slog.Int("tokens_out", usage.CompletionTokens))

	return &domain.ReasoningResult{
		Text:         resp.Text,
		ModelUsed:    id,
		TokensIn:     usage.PromptTokens,
		TokensOut:    usage.CompletionTokens,
		CostEstimate: cost,
		QualityScore: baseQuality(resp.FinishReason),
	}, cost, nil
}

func (g *Gateway) cost(p domain.Provider, promptTokens, completionTokens int) float64 {
	prices := provider.PriceFor(p)
	return float64(promptTokens)/1000*prices.PromptPer1K +
		float64(completionTokens)/1000*prices.CompletionPer1K
}

func (g *Gateway) recordOutcome(id, outcome string, err error) {
	if g.metrics == nil {
		return
	}
	g.metrics.ProviderAttempts.WithLabelValues(id, outcome).Inc()
	if err != nil {
		class := "transient"
		if domain.IsPermanent(err) {
			class = "permanent"
		}
		g.metrics.ProviderFailures.WithLabelValues(id, class).Inc()
	}
	for _, st := range g.breakers.Snapshot() {
		g.metrics.SetBreakerState(st.Provider, st.State)
	}
}

func buildProviderRequest(req *domain.ReasoningRequest) *domain.ProviderRequest {
	messages := make([]domain.Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, domain.Message{Role: "user", Content: req.Query})

	system := req.SystemPrompt
	if system == "" && len(req.UserFacts) > 0 {
		system = "Known facts about this user:\n- " + strings.Join(req.UserFacts, "\n- ")
	}

	return &domain.ProviderRequest{
		System:   system,
		Messages: messages,
	}
}

func modelOf(p domain.Provider) string {
	type modeled interface{ Model() string }
	if m, ok := p.(modeled); ok {
		return m.Model()
	}
	return p.Name()
}

// baseQuality maps the finish reason onto an initial quality score. The
// pipeline adjusts it downstream for corrections and shaping.
func baseQuality(finishReason string) float64 {
	switch finishReason {
	case "stop", "end_turn", "":
		return 0.85
	case "length":
		return 0.7
	default:
		return 0.6
	}
}
