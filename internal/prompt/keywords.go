package prompt

import (
	"strings"
	"unicode"
)

// MaxKeywords caps how many search terms are drawn from a task.
const MaxKeywords = 10

// stopWords are filler words that carry no retrieval signal.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "been": true, "but": true, "by": true,
	"can": true, "could": true, "did": true, "do": true, "does": true,
	"for": true, "from": true, "had": true, "has": true, "have": true,
	"how": true, "if": true, "in": true, "into": true, "is": true,
	"it": true, "its": true, "may": true, "might": true, "must": true,
	"no": true, "not": true, "of": true, "on": true, "or": true,
	"our": true, "should": true, "so": true, "such": true, "than": true,
	"that": true, "the": true, "their": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "those": true, "to": true,
	"was": true, "we": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "will": true, "with": true,
	"would": true, "you": true, "your": true,
}

// Keywords extracts up to MaxKeywords search terms from task text.
// Terms are lowercased, deduplicated, and keep first-seen order;
// stop-words and single-character tokens are dropped.
func Keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

// EstimateTokens approximates the token count of text. Four
// characters per token is coarse but sufficient for budget gating.
func EstimateTokens(text string) int {
	return len(text) / 4
}
