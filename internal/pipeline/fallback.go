package pipeline

import (
	"strings"

	"github.com/balizero/reasoning-gateway/internal/domain"
)

// fallbackModelName marks results served by the templated path.
const fallbackModelName = "fallback-template"

// fallbackResult builds the deterministic degraded answer used when the
// primary reasoning stage is exhausted. It is a valid terminal outcome with
// its own degraded=true contract, not an error path.
func fallbackResult(req *domain.ReasoningRequest) *domain.ReasoningResult {
	var b strings.Builder
	b.WriteString("Thanks for your question")
	if topic := shortTopic(req.Query); topic != "" {
		b.WriteString(" about ")
		b.WriteString(topic)
	}
	b.WriteString(". Our reasoning service is temporarily busy, so this is a brief interim reply. ")
	b.WriteString("Your request has been received and nothing further is needed from you. ")
	b.WriteString("Please try again in a few minutes for a full answer, or contact the team directly if it is urgent.")

	return &domain.ReasoningResult{
		Text:         b.String(),
		ModelUsed:    fallbackModelName,
		QualityScore: 0.3,
		Degraded:     true,
	}
}

// shortTopic extracts a few leading words of the query for the template,
// without echoing arbitrarily long input back to the client.
func shortTopic(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return ""
	}
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.TrimRight(strings.Join(words, " "), "?.!,")
}
