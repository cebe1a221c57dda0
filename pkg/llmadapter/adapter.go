package llmadapter

import (
	"context"
	"fmt"
)

// Adapter wraps an injected Invoker, applying model-aware preprocessing and
// multi-tier parsing on every call (§4.4).
type Adapter struct {
	invoke    Invoker
	modelName string
}

// NewAdapter wraps invoke for modelName. modelName only affects which
// preprocessing transforms are selected (substring match, §4.4); it never
// picks a concrete provider.
func NewAdapter(invoke Invoker, modelName string) *Adapter {
	return &Adapter{invoke: invoke, modelName: modelName}
}

// ProposeResult is one invoke+parse round, carrying everything the broker's
// trace needs for the audit output (§6 traces/<agent_type>_traces.jsonl).
type ProposeResult struct {
	Proposal   SkillProposal
	Prompt     string
	RawText    string
	Tokens     TokenCounts
	InvokeErr  error // set iff the LLM call itself failed (transport/timeout)
}

// Propose invokes the LLM with prompt, preprocesses the reply, and parses it
// into a SkillProposal. An invocation error (§7 "Invocation error") is
// reported via InvokeErr and yields an Unparseable proposal so the broker's
// retry loop can treat it uniformly with a genuine parse failure.
func (a *Adapter) Propose(ctx context.Context, agentID, prompt string, cfg ParsingConfig, skillIDsInOrder []string) ProposeResult {
	text, tokens, err := a.invoke(ctx, prompt)
	if err != nil {
		return ProposeResult{
			Proposal:  SkillProposal{AgentID: agentID, Unparseable: true, ParseTier: "invocation_error"},
			Prompt:    prompt,
			Tokens:    tokens,
			InvokeErr: fmt.Errorf("llmadapter: invocation failed: %w", err),
		}
	}

	cleaned := Preprocess(text, a.modelName)
	proposal := Parse(cleaned, cfg, skillIDsInOrder)
	proposal.AgentID = agentID
	proposal.RawText = text

	return ProposeResult{Proposal: proposal, Prompt: prompt, RawText: text, Tokens: tokens}
}
