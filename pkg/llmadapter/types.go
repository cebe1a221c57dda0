// Package llmadapter implements the Model Adapter (SPEC_FULL.md §4.4): it
// wraps an injected `invoke(prompt) -> text` callable, preprocesses the raw
// reply, and parses it into a SkillProposal through five ordered tiers.
package llmadapter

import "context"

// ConstructLabel is one of the fixed 5-level ordinal scale values.
type ConstructLabel string

const (
	LabelVeryLow  ConstructLabel = "VL"
	LabelLow      ConstructLabel = "L"
	LabelMedium   ConstructLabel = "M"
	LabelHigh     ConstructLabel = "H"
	LabelVeryHigh ConstructLabel = "VH"
)

// TokenCounts carries prompt/completion token usage from one LLM call.
type TokenCounts struct {
	Prompt     int
	Completion int
}

// Invoker is the only capability the core needs from an LLM provider
// (§6's `llm_invoke`). Concrete HTTP adapters to Ollama/Anthropic/OpenAI/
// Gemini are explicitly out of scope (§1) and are supplied by the caller.
type Invoker func(ctx context.Context, prompt string) (text string, tokens TokenCounts, err error)

// SkillProposal is the Model Adapter's output (§3).
type SkillProposal struct {
	AgentID     string
	SkillID     string // empty/Unparseable if no tier succeeded
	Reasoning   string
	Constructs  map[string]ConstructLabel
	Confidence  *float64 // optional, in [0,1]
	RawText     string
	Unparseable bool
	ParseTier   string // which tier produced this proposal, for audit traces
}
