// Package budget provides token budget estimation for prompt assembly.
// Because answer generation supports multiple LLM backends with different
// tokenizers, this package uses a conservative character-based heuristic:
// 1 token ≈ 4 characters (English prose).
package budget

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default budget for retrieved context
	// placed into the answer prompt.
	DefaultMaxContextTokens = 2048
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimContext keeps context blocks in order while their running estimate
// fits within maxTokens. The first block is always kept; if it alone exceeds
// the budget it is cut to maxTokens worth of characters. Later blocks are
// dropped whole rather than cut mid-sentence.
func TrimContext(blocks []string, maxTokens int) []string {
	if len(blocks) == 0 || maxTokens <= 0 {
		return blocks
	}

	first := blocks[0]
	if Estimate(first) > maxTokens {
		return []string{strings.ToValidUTF8(first[:maxTokens*charsPerToken], "")}
	}

	kept := []string{first}
	used := Estimate(first)
	for _, b := range blocks[1:] {
		cost := Estimate(b)
		if used+cost > maxTokens {
			break
		}
		kept = append(kept, b)
		used += cost
	}
	return kept
}
