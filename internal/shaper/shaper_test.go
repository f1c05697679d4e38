package shaper

import (
	"strings"
	"testing"
)

func wordCount(s string) int { return len(strings.Fields(s)) }

func sentence(words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ") + "."
}

func TestShape_InRangeUnchanged(t *testing.T) {
	sh := New(5, 50)
	text := "This answer is comfortably within the configured bounds already."

	if got := sh.Shape(text); got != text {
		t.Errorf("in-range text modified: %q", got)
	}
}

func TestShape_Idempotent(t *testing.T) {
	sh := New(10, 30)

	inputs := []string{
		sentence(5),
		sentence(20) + " " + sentence(20),
		"Short one.",
	}
	for _, in := range inputs {
		once := sh.Shape(in)
		twice := sh.Shape(once)
		if once != twice {
			t.Errorf("Shape not idempotent:\nonce:  %q\ntwice: %q", once, twice)
		}
	}
}

func TestShape_TruncatesAtSentenceBoundary(t *testing.T) {
	sh := New(0, 12)
	text := "First sentence has exactly six words. Second sentence also has six words. Third one pushes past the limit."

	got := sh.Shape(text)
	if wordCount(got) > 12 {
		t.Errorf("word count = %d, want <= 12", wordCount(got))
	}
	if !strings.HasSuffix(got, "words.") {
		t.Errorf("truncation not sentence-safe: %q", got)
	}
	if strings.Contains(got, "Third") {
		t.Errorf("third sentence should be gone: %q", got)
	}
}

func TestShape_HardTruncateWithoutBoundary(t *testing.T) {
	sh := New(0, 8)
	text := strings.Repeat("word ", 30) // no terminator anywhere in range

	got := sh.Shape(text)
	if wordCount(got) != 8 {
		t.Errorf("word count = %d, want 8", wordCount(got))
	}
}

func TestShape_ExpandsShortText(t *testing.T) {
	sh := New(30, 200)
	text := "Yes, we can help with that."

	got := sh.Shape(text)
	if wordCount(got) < 30 {
		t.Errorf("word count = %d, want >= 30", wordCount(got))
	}
	if !strings.HasPrefix(got, text) {
		t.Errorf("expansion must preserve the original text prefix: %q", got)
	}
}

func TestShape_ExpansionAddsNoClaims(t *testing.T) {
	sh := New(40, 200)
	got := sh.Shape("The office opens at nine.")

	// Everything beyond the original text must come verbatim from the
	// template.
	extra := strings.TrimSpace(strings.TrimPrefix(got, "The office opens at nine."))
	allTemplate := strings.Join(DefaultExpansion, " ")
	if extra != "" && !strings.HasPrefix(allTemplate, extra) && !strings.Contains(allTemplate, extra) {
		t.Errorf("expansion contains non-template content: %q", extra)
	}
}

func TestShape_EmptyTextPassesThrough(t *testing.T) {
	sh := New(10, 100)
	if got := sh.Shape(""); got != "" {
		t.Errorf("empty input produced %q", got)
	}
}

func TestShape_QuotedTerminatorCounts(t *testing.T) {
	sh := New(0, 6)
	text := `He said "done." Then five more words followed here.`

	got := sh.Shape(text)
	if !strings.HasSuffix(got, `"done."`) {
		t.Errorf("quoted sentence end not honored: %q", got)
	}
}
