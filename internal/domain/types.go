package domain

import "strings"

// Tier is a named cost/capability class of models. Each tier maps to an
// ordered chain of provider identifiers declared in configuration.
type Tier string

const (
	TierPremium    Tier = "premium"
	TierBalanced   Tier = "balanced"
	TierEconomy    Tier = "economy"
	TierLastResort Tier = "last_resort"
)

// ParseTier resolves a wire-format tier name. An empty string resolves to
// TierBalanced so callers that omit the field get the default routing.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return TierBalanced, nil
	case "premium":
		return TierPremium, nil
	case "balanced":
		return TierBalanced, nil
	case "economy":
		return TierEconomy, nil
	case "last_resort", "last-resort":
		return TierLastResort, nil
	default:
		return "", ErrValidation("tier", "unknown tier: "+s)
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReasoningRequest is the canonical inbound request for one reasoning run.
type ReasoningRequest struct {
	Query string `json:"query"`
	// History is the retained conversation window, oldest first. Entries
	// beyond the configured window are dropped before the request reaches
	// any provider.
	History   []Message `json:"conversation_history,omitempty"`
	UserFacts []string  `json:"user_memory_facts,omitempty"`
	Tier      Tier      `json:"tier,omitempty"`
	// CostBudget caps the total estimated spend for this request in USD.
	// Zero means no cap.
	CostBudget float64 `json:"cost_budget,omitempty"`
	// DepthBudget caps how many providers may be attempted. Zero means the
	// gateway default applies.
	DepthBudget int `json:"depth_budget,omitempty"`
	// SystemPrompt overrides the generated system prompt. Set internally by
	// the synthesis stage; never taken from the wire.
	SystemPrompt string `json:"-"`
}

// ReasoningResult is the terminal outcome of a reasoning run. A degraded
// result (served without full LLM participation) is a valid outcome, not an
// error: Degraded is set and Text carries the templated answer.
type ReasoningResult struct {
	Text         string   `json:"text"`
	ModelUsed    string   `json:"model_used"`
	TokensIn     int      `json:"tokens_in"`
	TokensOut    int      `json:"tokens_out"`
	CostEstimate float64  `json:"cost_estimate"`
	QualityScore float64  `json:"quality_score"`
	Corrections  []string `json:"corrections_applied,omitempty"`
	Degraded     bool     `json:"degraded"`
}

// Usage reports token consumption for one provider call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ProviderRequest is the uniform call shape handed to a provider adapter.
type ProviderRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// ProviderResponse is the uniform result returned by a provider adapter.
type ProviderResponse struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// StreamEvent is one increment of a streaming provider response.
// The final event carries Usage when the upstream reports it.
type StreamEvent struct {
	ContentDelta string
	Usage        *Usage
	Err          error
}
