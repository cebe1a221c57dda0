// Package contextbuilder implements the Context Builder (SPEC_FULL.md §4.3):
// it composes the exact prompt string handed to the LLM from agent state,
// retrieved memories, observable social/environmental signals, and skill
// presentations, subject to a token budget.
package contextbuilder

import (
	"fmt"
	"math"

	"github.com/pkoukk/tiktoken-go"
)

// TokenBudget carries the total token allowance and the percentage split
// across sections (§3's Token Budget data model). Percentages must sum to
// ≤ 1.0 (P7); DefaultTokenBudget sums to exactly 1.0.
type TokenBudget struct {
	Total          int
	PromptPct      float64
	MemoryPct      float64
	SocialPct      float64
	InstitutionPct float64
	ReservePct     float64
}

// DefaultTokenBudget matches the documented defaults.
func DefaultTokenBudget(total int) TokenBudget {
	return TokenBudget{
		Total:          total,
		PromptPct:      0.40,
		MemoryPct:      0.25,
		SocialPct:      0.15,
		InstitutionPct: 0.10,
		ReservePct:     0.10,
	}
}

// Validate reports an error if the percentages exceed 1.0 (P7). A Context
// Builder must never hard-fail on an over-budget prompt, but a
// misconfigured TokenBudget is a config error and is rejected at startup.
func (b TokenBudget) Validate() error {
	sum := b.PromptPct + b.MemoryPct + b.SocialPct + b.InstitutionPct + b.ReservePct
	if sum > 1.0+1e-3 {
		return fmt.Errorf("contextbuilder: token budget percentages sum to %.4f, must be <= 1.0", sum)
	}
	return nil
}

// sectionBudget returns the token allowance for pct of b.Total.
func (b TokenBudget) sectionBudget(pct float64) int {
	return int(math.Floor(float64(b.Total) * pct))
}

// TokenCounter counts tokens in a string, using a model-aware tokenizer
// when available and falling back to ⌈len/4⌉ otherwise (§4.3).
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter builds a counter for modelName. Encoding lookup failures
// are swallowed: Count degrades to the character-based fallback rather than
// propagating an error, because token counting must never hard-fail the
// builder (§4.3's "forbidden" clause applies transitively).
func NewTokenCounter(modelName string) *TokenCounter {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return &TokenCounter{}
		}
	}
	return &TokenCounter{encoding: enc}
}

// Count returns the token count of text, falling back to ⌈len/4⌉ when no
// tokenizer encoding is loaded.
func (c *TokenCounter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return fallbackCount(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

func fallbackCount(text string) int {
	return int(math.Ceil(float64(len(text)) / 4.0))
}
