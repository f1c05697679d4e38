// Package pipeline composes the three sequential reasoning stages: primary
// generation (Giant), static-knowledge calibration (Cell), and persona
// synthesis (Zantara). The pipeline contract is that a response is always
// produced; reasoning failures degrade, they never error.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/balizero/reasoning-gateway/internal/domain"
	"github.com/balizero/reasoning-gateway/internal/gateway"
	"github.com/balizero/reasoning-gateway/internal/knowledge"
	"github.com/balizero/reasoning-gateway/internal/shaper"
	"github.com/balizero/reasoning-gateway/internal/telemetry"
)

// Config assembles a Pipeline.
type Config struct {
	Gateway   *gateway.Gateway
	Knowledge *knowledge.Store
	Shaper    *shaper.Shaper
	Clock     Clock
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics

	GiantTimeout   time.Duration
	CellTimeout    time.Duration
	ZantaraTimeout time.Duration
	Retry          RetryPolicy

	// SynthesisTier routes the Zantara rewrite call.
	SynthesisTier domain.Tier
	// PersonaPrompt is the system prompt for the synthesis rewrite.
	PersonaPrompt string
}

// Pipeline runs one request through Giant, Cell, and Zantara in order. The
// stages are strictly sequential within a request; independent requests run
// fully in parallel.
type Pipeline struct {
	gw        *gateway.Gateway
	kb        *knowledge.Store
	shaper    *shaper.Shaper
	clock     Clock
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	giantTO   time.Duration
	cellTO    time.Duration
	zantaraTO time.Duration
	retry     RetryPolicy
	synthTier domain.Tier
	persona   string
}

const defaultPersonaPrompt = "You are Zantara, the Bali Zero assistant. Rewrite the draft answer " +
	"below in a warm, professional voice. Keep every fact, figure, and caveat exactly as given; " +
	"change only tone and phrasing."

// New creates a pipeline with defaults applied.
func New(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.GiantTimeout <= 0 {
		cfg.GiantTimeout = 60 * time.Second
	}
	if cfg.CellTimeout <= 0 {
		cfg.CellTimeout = 10 * time.Second
	}
	if cfg.ZantaraTimeout <= 0 {
		cfg.ZantaraTimeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.SynthesisTier == "" {
		cfg.SynthesisTier = domain.TierEconomy
	}
	if cfg.PersonaPrompt == "" {
		cfg.PersonaPrompt = defaultPersonaPrompt
	}
	if cfg.Knowledge == nil {
		cfg.Knowledge = knowledge.NewStore(nil)
	}
	if cfg.Shaper == nil {
		cfg.Shaper = shaper.New(0, 0)
	}
	return &Pipeline{
		gw:        cfg.Gateway,
		kb:        cfg.Knowledge,
		shaper:    cfg.Shaper,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer("reasoning-pipeline"),
		giantTO:   cfg.GiantTimeout,
		cellTO:    cfg.CellTimeout,
		zantaraTO: cfg.ZantaraTimeout,
		retry:     cfg.Retry,
		synthTier: cfg.SynthesisTier,
		persona:   cfg.PersonaPrompt,
	}
}

// Process runs the full pipeline. It always returns a result: when reasoning
// itself is unavailable the result is the templated fallback with
// Degraded=true.
func (p *Pipeline) Process(ctx context.Context, req *domain.ReasoningRequest) *domain.ReasoningResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	defer span.End()

	result := p.runGiant(ctx, req)

	calibrated := p.runCell(ctx, result)

	final := p.runZantara(ctx, calibrated, req)

	shaped := p.shaper.Shape(final.Text)
	if shaped != final.Text {
		final.Text = shaped
		final.QualityScore = clampQuality(final.QualityScore - 0.05)
	}
	return final
}

// runGiant executes the primary reasoning stage under its retry policy. On
// exhaustion it returns the deterministic templated fallback rather than an
// error: Cell and Zantara still run over the fallback text.
func (p *Pipeline) runGiant(ctx context.Context, req *domain.ReasoningRequest) *domain.ReasoningResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.giant")
	defer span.End()
	defer p.observeStage("giant", p.clock.Now())

	var result *domain.ReasoningResult
	err := p.retry.Run(ctx, p.clock, func(attempt int) error {
		stageCtx, cancel := context.WithTimeout(ctx, p.giantTO)
		defer cancel()

		r, err := p.gw.Execute(stageCtx, req)
		if err != nil {
			// A deadline hit on the stage context is the stage's own
			// timeout; report it as such so the retry policy backs off.
			if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				err = &domain.StageTimeoutError{Stage: "giant", Timeout: p.giantTO}
			}
			if attempt > 1 || domain.IsTransient(err) {
				p.logger.Warn("giant attempt failed",
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()))
			}
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		p.logger.Error("giant stage exhausted, serving templated fallback",
			slog.String("error", err.Error()))
		if p.metrics != nil {
			p.metrics.DegradedResponses.Inc()
		}
		return fallbackResult(req)
	}
	return result
}

// runCell applies static-knowledge calibration. The stage is deterministic
// and in-memory; its only failure mode is an unloaded knowledge base, which
// degrades silently to "no corrections applied".
func (p *Pipeline) runCell(ctx context.Context, result *domain.ReasoningResult) *domain.ReasoningResult {
	_, span := p.tracer.Start(ctx, "pipeline.cell")
	defer span.End()
	defer p.observeStage("cell", p.clock.Now())

	if ctx.Err() != nil {
		return result
	}

	cal := p.kb.Calibrate(result.Text)
	if len(cal.Applied) > 0 {
		p.logger.Info("calibration applied corrections",
			slog.Int("count", len(cal.Applied)))
		result.Text = cal.Text
		result.Corrections = cal.Applied
		// Corrected answers are more trustworthy than the raw draft.
		result.QualityScore = clampQuality(result.QualityScore + 0.05)
	}
	return result
}

// runZantara rewrites the calibrated answer in the product voice. On any
// failure the pre-synthesis text is returned verbatim; persona polish is
// never worth failing the request.
func (p *Pipeline) runZantara(ctx context.Context, result *domain.ReasoningResult, req *domain.ReasoningRequest) *domain.ReasoningResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.zantara")
	defer span.End()
	defer p.observeStage("zantara", p.clock.Now())

	if ctx.Err() != nil {
		return result
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.zantaraTO)
	defer cancel()

	synthReq := &domain.ReasoningRequest{
		Query:        "Original question: " + req.Query + "\n\nDraft answer:\n" + result.Text,
		Tier:         p.synthTier,
		SystemPrompt: p.persona,
	}
	synth, err := p.gw.Execute(stageCtx, synthReq)
	if err != nil || synth.Text == "" {
		if err != nil {
			p.logger.Warn("zantara synthesis failed, returning calibrated text",
				slog.String("error", err.Error()))
		}
		return result
	}

	result.Text = synth.Text
	result.TokensIn += synth.TokensIn
	result.TokensOut += synth.TokensOut
	result.CostEstimate += synth.CostEstimate
	return result
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.StageDuration.WithLabelValues(stage).Observe(p.clock.Now().Sub(start).Seconds())
}

func clampQuality(q float64) float64 {
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}
