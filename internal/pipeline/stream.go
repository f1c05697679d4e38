package pipeline

import (
	"context"
	"log/slog"

	"github.com/balizero/reasoning-gateway/internal/domain"
)

// StreamEvent is one event emitted by ProcessStream: either an incremental
// token delta from the primary generation, or the final shaped result.
type StreamEvent struct {
	Delta string
	Final *domain.ReasoningResult
}

// ProcessStream runs the pipeline with incremental output. Tokens stream
// from the Giant stage as they arrive; calibration and synthesis run on the
// accumulated text, and only the final event carries the shaped answer. When
// streaming fails before any content flowed the pipeline falls back to the
// non-streaming retry path; after content has flowed it serves the templated
// fallback as the final event instead of restarting, so the caller never
// sees two half answers spliced together.
func (p *Pipeline) ProcessStream(ctx context.Context, req *domain.ReasoningRequest, emit func(StreamEvent)) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process_stream")
	defer span.End()

	streamed := false
	stageCtx, cancel := context.WithTimeout(ctx, p.giantTO)
	result, err := p.gw.ExecuteStream(stageCtx, req, func(delta string) {
		streamed = true
		emit(StreamEvent{Delta: delta})
	})
	cancel()

	if err != nil {
		if streamed {
			// Content already reached the caller; a unary retry would hand
			// back a second, unrelated answer on top of the half-streamed
			// one. The templated fallback becomes the authoritative final.
			p.logger.Warn("stream broke after content flowed, serving templated fallback",
				slog.String("error", err.Error()))
			result = fallbackResult(req)
		} else {
			p.logger.Warn("streaming generation failed, retrying unary",
				slog.String("error", err.Error()))
			result = p.runGiant(ctx, req)
		}
	}

	result = p.runCell(ctx, result)
	result = p.runZantara(ctx, result, req)

	shaped := p.shaper.Shape(result.Text)
	if shaped != result.Text {
		result.Text = shaped
		result.QualityScore = clampQuality(result.QualityScore - 0.05)
	}
	emit(StreamEvent{Final: result})
}
