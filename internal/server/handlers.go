package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/balizero/reasoning-gateway/internal/config"
	"github.com/balizero/reasoning-gateway/internal/domain"
	"github.com/balizero/reasoning-gateway/internal/health"
	"github.com/balizero/reasoning-gateway/internal/pipeline"
)

// Handler serves the reasoning API: the synchronous query endpoint, its SSE
// streaming variant, and the aggregated health report.
type Handler struct {
	pipeline *pipeline.Pipeline
	health   *health.Aggregator
	limits   config.LimitsConfig
	logger   *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(p *pipeline.Pipeline, h *health.Aggregator, limits config.LimitsConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pipeline: p, health: h, limits: limits, logger: logger}
}

type queryResponse struct {
	Answer       string   `json:"answer"`
	ModelUsed    string   `json:"model_used"`
	Degraded     bool     `json:"degraded"`
	QualityScore float64  `json:"quality_score"`
	TokensIn     int      `json:"tokens_in"`
	TokensOut    int      `json:"tokens_out"`
	CostEstimate float64  `json:"cost_estimate"`
	Corrections  []string `json:"corrections_applied,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// HandleQuery handles POST /reasoning/query.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(r)
	if err != nil {
		h.writeValidationError(w, r, err)
		return
	}

	AddLogField(r.Context(), "tier", string(req.Tier))
	result := h.pipeline.Process(r.Context(), req)
	AddLogField(r.Context(), "model_used", result.ModelUsed)
	if result.Degraded {
		AddLogField(r.Context(), "degraded", "true")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(queryResponse{
		Answer:       result.Text,
		ModelUsed:    result.ModelUsed,
		Degraded:     result.Degraded,
		QualityScore: result.QualityScore,
		TokensIn:     result.TokensIn,
		TokensOut:    result.TokensOut,
		CostEstimate: result.CostEstimate,
		Corrections:  result.Corrections,
	})
}

// HandleStream handles POST /reasoning/stream. Incremental tokens are sent
// as SSE data frames; the final shaped answer follows as a "done" event and
// the stream closes with [DONE].
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(r)
	if err != nil {
		h.writeValidationError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	h.pipeline.ProcessStream(r.Context(), req, func(ev pipeline.StreamEvent) {
		if ev.Final != nil {
			payload, _ := json.Marshal(queryResponse{
				Answer:       ev.Final.Text,
				ModelUsed:    ev.Final.ModelUsed,
				Degraded:     ev.Final.Degraded,
				QualityScore: ev.Final.QualityScore,
				TokensIn:     ev.Final.TokensIn,
				TokensOut:    ev.Final.TokensOut,
				CostEstimate: ev.Final.CostEstimate,
				Corrections:  ev.Final.Corrections,
			})
			fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
			flusher.Flush()
			return
		}
		chunk, _ := json.Marshal(struct {
			Delta string `json:"delta"`
		}{Delta: ev.Delta})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	})

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// HandleHealth handles GET /health/reasoning. An unhealthy aggregate maps to
// 503 so load balancers can act on it; degraded still serves traffic.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.health.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if snap.Status == health.StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(snap)
}

// decodeRequest parses and validates the inbound body. Validation failures
// are the only errors surfaced directly to callers; everything downstream
// degrades instead.
func (h *Handler) decodeRequest(r *http.Request) (*domain.ReasoningRequest, error) {
	var req domain.ReasoningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, domain.ErrValidation("body", "malformed JSON: "+err.Error())
	}

	if req.Query == "" {
		return nil, domain.ErrValidation("query", "query is required")
	}
	if h.limits.MaxQueryChars > 0 && utf8.RuneCountInString(req.Query) > h.limits.MaxQueryChars {
		return nil, domain.ErrValidation("query",
			fmt.Sprintf("query exceeds %d characters", h.limits.MaxQueryChars))
	}

	tier, err := domain.ParseTier(string(req.Tier))
	if err != nil {
		return nil, err
	}
	req.Tier = tier

	// Retain only the most recent window of conversation history.
	if n := h.limits.MaxHistoryMessages; n > 0 && len(req.History) > n {
		req.History = req.History[len(req.History)-n:]
	}

	return &req, nil
}

func (h *Handler) writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	resp := errorResponse{Error: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(resp)
}
