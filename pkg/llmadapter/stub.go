package llmadapter

import (
	"context"
	"fmt"
)

// NewStubInvoker returns an Invoker that always proposes skillID, wrapped
// in the documented response-format sentinels. It is a test/demo double
// standing in for the real HTTP adapters to Ollama/Anthropic/OpenAI/Gemini
// (§1: those are explicitly external collaborators the core never
// embeds) — useful for exercising the broker/runner pipeline end-to-end
// without a live model.
func NewStubInvoker(skillID string, constructs map[string]ConstructLabel) Invoker {
	return func(_ context.Context, prompt string) (string, TokenCounts, error) {
		body := fmt.Sprintf(`{"skill": %q, "reasoning": "stub invoker", "constructs": {`, skillID)
		first := true
		for k, v := range constructs {
			if !first {
				body += ", "
			}
			first = false
			body += fmt.Sprintf("%q: %q", k, v)
		}
		body += "}}"
		text := DefaultSentinels.Start + "\n" + body + "\n" + DefaultSentinels.End
		return text, TokenCounts{Prompt: len(prompt) / 4, Completion: len(text) / 4}, nil
	}
}
