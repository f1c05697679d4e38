package knowledge

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Calibration is the outcome of running an answer through the knowledge base.
type Calibration struct {
	Text string
	// Applied lists the IDs of entries that changed the text.
	Applied []string
}

// Calibrate rewrites known-incorrect claims in text and appends relevant
// insights. Corrections replace their matched claim with the stored payload;
// insights whose predicate matches are appended as elaboration. An empty
// store returns the text unchanged with no corrections applied.
func (s *Store) Calibrate(text string) Calibration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := Calibration{Text: text}
	if len(s.entries) == 0 || text == "" {
		return result
	}

	lower := strings.ToLower(text)
	var insights []string

	for _, e := range s.entries {
		if e.Match == "" {
			continue
		}
		match := strings.ToLower(e.Match)
		if !strings.Contains(lower, match) {
			continue
		}

		switch e.Category {
		case CategoryCorrection:
			result.Text = replaceFold(result.Text, e.Match, e.Payload)
			lower = strings.ToLower(result.Text)
			result.Applied = append(result.Applied, e.ID)
		case CategoryInsight, CategoryServiceDefinition:
			insights = append(insights, e.Payload)
			result.Applied = append(result.Applied, e.ID)
		}
	}

	if len(insights) > 0 {
		result.Text = strings.TrimRight(result.Text, " \n") + "\n\n" + strings.Join(insights, " ")
	}
	return result
}

// replaceFold replaces every case-insensitive occurrence of old with new.
// Matching walks s rune by rune: lowercasing can change a rune's byte
// length, so offsets into a ToLower'd copy must never be used to slice s.
func replaceFold(s, old, new string) string {
	if old == "" {
		return s
	}
	target := []rune(strings.ToLower(old))
	var b strings.Builder
	for len(s) > 0 {
		start, length := indexFold(s, target)
		if start < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])
		b.WriteString(new)
		s = s[start+length:]
	}
	return b.String()
}

// indexFold locates the first case-insensitive occurrence of target in s,
// returning the match's byte offset and byte length within s itself.
func indexFold(s string, target []rune) (start, length int) {
	for i := 0; i < len(s); {
		j := i
		matched := 0
		for matched < len(target) && j < len(s) {
			r, size := utf8.DecodeRuneInString(s[j:])
			if unicode.ToLower(r) != target[matched] {
				break
			}
			j += size
			matched++
		}
		if matched == len(target) {
			return i, j - i
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1, 0
}
