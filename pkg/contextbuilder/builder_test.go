package contextbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() BuildInput {
	return BuildInput{
		SystemPrompt: "You are a household agent deciding how to respond to flood risk.",
		Attributes: AgentAttributes{
			AgentID:  "agent1",
			Type:     "household",
			Physical: map[string]string{"elevated": "false", "funds": "5000"},
			Social:   map[string]string{"marginalized": "false"},
		},
		Environment: EnvironmentalPerception{
			Global:        []string{"rainfall above average"},
			Institutional: []string{"county issued a flood advisory"},
		},
		Events:  []Event{{Description: "a flood occurred this year"}},
		Metrics: []ObservableMetric{{Name: "community_risk_index", Value: "0.62"}},
		Social: SocialObservation{
			VisibleAttributes: []string{"neighbor1: elevated"},
			Gossip:            []string{"g1", "g2", "g3", "g4", "g5"},
			GlobalNews:        []string{"n1", "n2", "n3", "n4"},
		},
		MemoryItems: []string{"last year: bought insurance"},
		Constructs:  []ConstructAnchor{{Name: "TP", Label: "VH", Definition: "Very High"}},
		Skills: []SkillPresentation{
			{ID: "do_nothing", Description: "take no action"},
			{ID: "buy_insurance", Description: "purchase flood insurance"},
			{ID: "elevate_house", Description: "elevate the structure"},
		},
		ResponseFormat:   DefaultResponseFormat("###RESPONSE_START###", "###RESPONSE_END###"),
		ShuffleSeedAgent: "agent1",
		ShuffleSeedYear:  3,
		Budget:           DefaultTokenBudget(4000),
		ModelName:        "gpt-4o",
	}
}

func TestBuilder_RendersAllSections(t *testing.T) {
	b := NewBuilder("gpt-4o")
	out, err := b.Build(sampleInput())
	require.NoError(t, err)
	assert.False(t, out.Truncated)

	for _, want := range []string{
		"household agent", "elevated: false", "rainfall above average",
		"a flood occurred this year", "community_risk_index: 0.62",
		"neighbor1: elevated", "last year: bought insurance",
		"TP=VH (Very High)", "do_nothing", "###RESPONSE_START###",
	} {
		assert.Contains(t, out.Prompt, want)
	}
}

// Anchoring: constructs are inline-anchored, never emitted as bare letters.
func TestBuilder_ConstructAnchoring(t *testing.T) {
	b := NewBuilder("gpt-4o")
	out, err := b.Build(sampleInput())
	require.NoError(t, err)
	assert.Contains(t, out.Prompt, "TP=VH (Very High)")
	assert.NotContains(t, out.Prompt, "TP=VH\n")
}

func TestBuilder_ShuffleIsDeterministicPerAgentYear(t *testing.T) {
	b := NewBuilder("gpt-4o")
	in := sampleInput()

	out1, err := b.Build(in)
	require.NoError(t, err)
	out2, err := b.Build(in)
	require.NoError(t, err)
	assert.Equal(t, out1.SkillsInOrder, out2.SkillsInOrder)

	in.ShuffleSeedYear = 4
	out3, err := b.Build(in)
	require.NoError(t, err)
	assert.ElementsMatch(t, out1.SkillsInOrder, out3.SkillsInOrder)
}

// P7 — budget percentages must sum to <= 1.0.
func TestTokenBudget_ValidateRejectsOverBudget(t *testing.T) {
	budget := TokenBudget{Total: 1000, PromptPct: 0.5, MemoryPct: 0.5, SocialPct: 0.3}
	assert.Error(t, budget.Validate())
}

func TestTokenBudget_DefaultSumsToOne(t *testing.T) {
	b := DefaultTokenBudget(1000)
	sum := b.PromptPct + b.MemoryPct + b.SocialPct + b.InstitutionPct + b.ReservePct
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.NoError(t, b.Validate())
}

// Graceful degradation: an over-budget prompt must never hard-fail (§4.3).
func TestBuilder_DegradesGracefullyUnderTightBudget(t *testing.T) {
	b := NewBuilder("gpt-4o")
	in := sampleInput()
	in.Budget = TokenBudget{Total: 20, PromptPct: 0.4, MemoryPct: 0.25, SocialPct: 0.15, InstitutionPct: 0.1, ReservePct: 0.1}

	out, err := b.Build(in)
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.True(t, strings.Contains(out.Prompt, "truncated") || len(out.Prompt) > 0)
}

// B3 — token budget = 0 must still degrade through the same ladder as any
// other over-budget case, landing on the hard-truncation marker rather than
// an untruncated pass-through or a runtime error.
func TestBuilder_ZeroBudgetHardTruncates(t *testing.T) {
	b := NewBuilder("gpt-4o")
	in := sampleInput()
	in.Budget = TokenBudget{}

	out, err := b.Build(in)
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.Contains(t, out.Prompt, "truncated")
}

func TestBuilder_ReplayBannerIsDeclarativeNotPrescriptive(t *testing.T) {
	b := NewBuilder("gpt-4o")
	in := sampleInput()
	in.Replay = &ReplayBanner{
		ViolatedRules:        []string{"high_threat_no_do_nothing"},
		RemainingValidSkills: []string{"buy_insurance", "elevate_house"},
	}

	out, err := b.Build(in)
	require.NoError(t, err)
	assert.Contains(t, out.Prompt, "the following actions remain valid: buy_insurance, elevate_house")
	assert.Contains(t, out.Prompt, "high_threat_no_do_nothing")
}

func TestTokenCounter_FallsBackToLenOverFour(t *testing.T) {
	c := &TokenCounter{}
	assert.Equal(t, 3, c.Count("abcdefghij")) // 10 chars -> ceil(10/4) = 3
}
