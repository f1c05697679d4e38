// Package tokens estimates token counts for usage accounting when an
// upstream response does not report them.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/balizero/reasoning-gateway/internal/domain"
)

// Estimator counts tokens with tiktoken, caching codecs by encoding.
type Estimator struct {
	mu    sync.RWMutex
	cache map[tokenizer.Encoding]tokenizer.Codec
}

// NewEstimator creates a token estimator.
func NewEstimator() *Estimator {
	return &Estimator{cache: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

func (e *Estimator) codec(model string) (tokenizer.Codec, error) {
	encoding := modelToEncoding(model)

	e.mu.RLock()
	if c, ok := e.cache[encoding]; ok {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	c, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[encoding] = c
	e.mu.Unlock()
	return c, nil
}

// modelToEncoding picks a tiktoken encoding for a model name. Non-OpenAI
// models routed through the aggregator get the o200k_base encoding; the
// estimate is approximate either way and only feeds cost accounting.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

// Count returns the token count of text for the given model. On tokenizer
// failure it falls back to a words*4/3 heuristic rather than erroring:
// estimates feed metrics and budgets, not correctness.
func (e *Estimator) Count(model, text string) int {
	if text == "" {
		return 0
	}
	c, err := e.codec(model)
	if err != nil {
		return len(strings.Fields(text)) * 4 / 3
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return len(strings.Fields(text)) * 4 / 3
	}
	return len(ids)
}

// CountRequest estimates the prompt token total for a provider request.
func (e *Estimator) CountRequest(model string, req *domain.ProviderRequest) int {
	total := e.Count(model, req.System)
	for _, m := range req.Messages {
		// Per-message framing overhead mirrors OpenAI's chat format.
		total += e.Count(model, m.Content) + 4
	}
	return total
}
