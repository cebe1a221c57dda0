package llmadapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleParsingConfig() ParsingConfig {
	return ParsingConfig{
		DecisionKeywords: []string{"decision:"},
		Synonyms: map[string][]string{
			"TP": {"TP", "threat_perception"},
			"CP": {"CP", "coping_perception"},
		},
		AliasMap: map[string]string{
			"MAINTAIN": "maintain_demand",
		},
		Normalization: map[string]string{
			"very high": "VH",
		},
		ProximityWindow: 35,
	}
}

func TestParse_StrictJSON(t *testing.T) {
	text := DefaultSentinels.Start + `{"skill":"buy_insurance","reasoning":"flood risk is high","constructs":{"TP":"VH"},"confidence":0.8}` + DefaultSentinels.End
	p := Parse(text, sampleParsingConfig(), nil)
	require.False(t, p.Unparseable)
	assert.Equal(t, "strict_json", p.ParseTier)
	assert.Equal(t, "buy_insurance", p.SkillID)
	assert.Equal(t, ConstructLabel("VH"), p.Constructs["TP"])
	require.NotNil(t, p.Confidence)
	assert.InDelta(t, 0.8, *p.Confidence, 1e-9)
}

func TestParse_RepairedJSONMissingBraceAndTrailingComma(t *testing.T) {
	text := DefaultSentinels.Start + `{"skill":"do_nothing","reasoning":"fine", "constructs":{"TP":"L",}` + DefaultSentinels.End
	p := Parse(text, sampleParsingConfig(), nil)
	require.False(t, p.Unparseable)
	assert.Equal(t, "repaired_json", p.ParseTier)
	assert.Equal(t, "do_nothing", p.SkillID)
}

func TestParse_KeyValueRegexFallback(t *testing.T) {
	text := "I think the threat is high. decision: elevate_house. TP: very high"
	p := Parse(text, sampleParsingConfig(), nil)
	require.False(t, p.Unparseable)
	assert.Equal(t, "keyvalue_regex", p.ParseTier)
	assert.Equal(t, "elevate_house", p.SkillID)
	assert.Equal(t, ConstructLabel("VH"), p.Constructs["TP"])
}

func TestParse_ProximityExtraction(t *testing.T) {
	cfg := sampleParsingConfig()
	cfg.DecisionKeywords = []string{"I will choose"}
	text := "After much thought I will choose buy_insurance because it is cheaper."
	p := Parse(text, cfg, nil)
	require.False(t, p.Unparseable)
	assert.Equal(t, "proximity", p.ParseTier)
	assert.Equal(t, "buy_insurance", p.SkillID)
}

func TestParse_LastResortDigit(t *testing.T) {
	cfg := ParsingConfig{ProximityWindow: 35}
	p := Parse("I'll go with option 1", cfg, []string{"do_nothing", "buy_insurance", "elevate_house"})
	require.False(t, p.Unparseable)
	assert.Equal(t, "last_resort_digit", p.ParseTier)
	assert.Equal(t, "buy_insurance", p.SkillID)
}

// S3 — all five tiers fail.
func TestParse_AllTiersFailUnparseable(t *testing.T) {
	cfg := ParsingConfig{ProximityWindow: 35}
	p := Parse("maybe...?", cfg, nil)
	assert.True(t, p.Unparseable)
}

func TestParse_AliasMapApplied(t *testing.T) {
	text := DefaultSentinels.Start + `{"skill":"MAINTAIN","reasoning":"status quo"}` + DefaultSentinels.End
	p := Parse(text, sampleParsingConfig(), nil)
	assert.Equal(t, "maintain_demand", p.SkillID)
}

// R1 — Parse(Format(proposal)) == proposal for any well-formed proposal.
func TestRoundTrip_FormatThenParse(t *testing.T) {
	conf := 0.42
	original := SkillProposal{
		SkillID:    "buy_insurance",
		Reasoning:  "flood risk is high",
		Constructs: map[string]ConstructLabel{"TP": "VH"},
		Confidence: &conf,
	}
	wire := FormatProposal(original)
	reparsed := Parse(wire, sampleParsingConfig(), nil)

	assert.Equal(t, original.SkillID, reparsed.SkillID)
	assert.Equal(t, original.Reasoning, reparsed.Reasoning)
	assert.Equal(t, original.Constructs, reparsed.Constructs)
	require.NotNil(t, reparsed.Confidence)
	assert.InDelta(t, *original.Confidence, *reparsed.Confidence, 1e-9)
}

func TestStripReasoningMarkers(t *testing.T) {
	text := "<think>internal monologue here</think>decision: do_nothing"
	cleaned := StripReasoningMarkers(text, "deepseek-r1")
	assert.Equal(t, "decision: do_nothing", cleaned)

	unchanged := StripReasoningMarkers(text, "gpt-4o")
	assert.Equal(t, text, unchanged)
}

func TestAdapter_Propose_InvocationErrorYieldsUnparseable(t *testing.T) {
	invoke := func(ctx context.Context, prompt string) (string, TokenCounts, error) {
		return "", TokenCounts{}, assertErr
	}
	a := NewAdapter(invoke, "gpt-4o")
	res := a.Propose(context.Background(), "agent1", "prompt", sampleParsingConfig(), nil)
	assert.True(t, res.Proposal.Unparseable)
	assert.Error(t, res.InvokeErr)
}

func TestAdapter_Propose_Success(t *testing.T) {
	reply := DefaultSentinels.Start + `{"skill":"do_nothing","reasoning":"ok"}` + DefaultSentinels.End
	invoke := func(ctx context.Context, prompt string) (string, TokenCounts, error) {
		return reply, TokenCounts{Prompt: 10, Completion: 5}, nil
	}
	a := NewAdapter(invoke, "gpt-4o")
	res := a.Propose(context.Background(), "agent1", "prompt", sampleParsingConfig(), nil)
	require.NoError(t, res.InvokeErr)
	assert.Equal(t, "do_nothing", res.Proposal.SkillID)
	assert.Equal(t, "agent1", res.Proposal.AgentID)
	assert.Equal(t, 10, res.Tokens.Prompt)
}

var assertErr = &staticErr{"transport error"}

type staticErr struct{ msg string }

func (e *staticErr) Error() string { return e.msg }
