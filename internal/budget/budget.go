// Package budget estimates token usage for prompts and converts token budgets
// into character caps. Completion backends tokenize differently, so the
// estimate is a character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the prompt size above which the agent logs a
	// warning. Fits 8k-context models with room for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs, summing
// role and content plus a small per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// CharCap returns the character cap for a token budget, never exceeding
// ceiling. A non-positive tokens value means no budget and returns ceiling.
func CharCap(tokens, ceiling int) int {
	if tokens <= 0 {
		return ceiling
	}
	c := tokens * charsPerToken
	if c > ceiling {
		return ceiling
	}
	return c
}

// Truncate returns the first n runes of s and whether s was cut.
func Truncate(s string, n int) (string, bool) {
	if n < 0 {
		n = 0
	}
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
