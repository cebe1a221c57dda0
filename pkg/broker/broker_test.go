package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wagfcache "github.com/WenyuChiou/WAGF-sub002/pkg/cache"
	"github.com/WenyuChiou/WAGF-sub002/pkg/contextbuilder"
	"github.com/WenyuChiou/WAGF-sub002/pkg/llmadapter"
	"github.com/WenyuChiou/WAGF-sub002/pkg/skill"
	"github.com/WenyuChiou/WAGF-sub002/pkg/validator"
)

func householdRegistry(t *testing.T) *skill.Registry {
	t.Helper()
	r := skill.NewRegistry()
	require.NoError(t, r.Load([]skill.Skill{
		{ID: "do_nothing", EligibleTypes: []string{"household"}},
		{ID: "buy_insurance", EligibleTypes: []string{"household"}, Cost: skill.Cost{ResourceField: "funds", Amount: 1200}},
		{ID: "elevate_house", EligibleTypes: []string{"household"}, Cost: skill.Cost{ResourceField: "funds", Amount: 20000},
			Preconditions: []skill.Precondition{{BoolField: "elevated", BoolEquals: false}}},
	}, "do_nothing"))
	return r
}

func thinkingChain() *validator.Chain {
	c := validator.NewChain()
	c.Register(validator.GovernanceRule{
		ID:           "high_threat_no_do_nothing",
		Family:       validator.FamilyThinking,
		Priority:     1,
		Severity:     validator.SeverityError,
		Condition:    validator.Condition{ConstructEquals: map[string]string{"TP": "VH"}},
		BlockedSkill: "do_nothing",
		Reason:       "very high threat perception forbids taking no action",
	})
	c.Register(validator.GovernanceRule{
		ID:           "already_elevated",
		Family:       validator.FamilyPhysical,
		Priority:     1,
		Severity:     validator.SeverityError,
		Condition:    validator.Condition{StateBoolEquals: map[string]bool{"elevated": true}},
		BlockedSkill: "elevate_house",
		Reason:       "the house is already elevated",
	})
	return c
}

func scriptedPromptFunc(attempts *int) PromptFunc {
	return func(attempt int, replay *contextbuilder.ReplayBanner) (string, []string, error) {
		*attempts = attempt
		return "prompt", []string{"do_nothing", "buy_insurance", "elevate_house"}, nil
	}
}

func sentinelReply(skillID string, constructs map[string]string) string {
	proposal := llmadapter.SkillProposal{SkillID: skillID}
	proposal.Constructs = map[string]llmadapter.ConstructLabel{}
	for k, v := range constructs {
		proposal.Constructs[k] = llmadapter.ConstructLabel(v)
	}
	return llmadapter.FormatProposal(proposal)
}

// S1 — Thinking-rule block then successful retry.
func TestBroker_S1_RejectThenApproveOnRetry(t *testing.T) {
	replies := []string{
		sentinelReply("do_nothing", map[string]string{"TP": "VH", "CP": "H"}),
		sentinelReply("buy_insurance", map[string]string{"TP": "VH", "CP": "H"}),
	}
	call := 0
	invoke := func(ctx context.Context, prompt string) (string, llmadapter.TokenCounts, error) {
		r := replies[call]
		call++
		return r, llmadapter.TokenCounts{Prompt: 10, Completion: 5}, nil
	}
	adapter := llmadapter.NewAdapter(invoke, "gpt-4o")
	reg := householdRegistry(t)
	b := New(adapter, thinkingChain(), reg, nil)

	var attempts int
	in := DecideInput{
		AgentID: "agent1", AgentType: "household", Year: 1,
		State:              skill.StateSnapshot{Bools: map[string]bool{"elevated": false}},
		ParsingConfig:      llmadapter.ParsingConfig{ProximityWindow: 35},
		BuildPrompt:        scriptedPromptFunc(&attempts),
		FallbackSkill:      "do_nothing",
		AvailableResources: map[string]float64{"funds": 5000},
	}

	report, err := b.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApprovedRetry, report.Outcome)
	assert.Equal(t, "buy_insurance", report.FinalSkill)
	assert.Len(t, report.Attempts, 2)
	require.NotEmpty(t, report.Attempts[0].ValidationResults)
	assert.Equal(t, "high_threat_no_do_nothing", report.Attempts[0].ValidationResults[0].RuleID)
}

// S2 — identity block persists across all retries -> fallback.
func TestBroker_S2_IdentityBlockExhaustsToFallback(t *testing.T) {
	reply := sentinelReply("elevate_house", map[string]string{"TP": "M"})
	invoke := func(ctx context.Context, prompt string) (string, llmadapter.TokenCounts, error) {
		return reply, llmadapter.TokenCounts{}, nil
	}
	adapter := llmadapter.NewAdapter(invoke, "gpt-4o")
	reg := householdRegistry(t)
	b := New(adapter, thinkingChain(), reg, nil)

	var attempts int
	in := DecideInput{
		AgentID: "agent1", AgentType: "household", Year: 2,
		State:              skill.StateSnapshot{Bools: map[string]bool{"elevated": true}},
		ParsingConfig:      llmadapter.ParsingConfig{ProximityWindow: 35},
		BuildPrompt:        scriptedPromptFunc(&attempts),
		FallbackSkill:      "do_nothing",
		AvailableResources: map[string]float64{"funds": 50000},
	}

	report, err := b.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedFallback, report.Outcome)
	assert.Equal(t, "do_nothing", report.FinalSkill)
	assert.Len(t, report.Attempts, DefaultMaxAttempts)
}

// S3 — unparseable through every attempt -> fallback.
func TestBroker_S3_UnparseableExhaustsToFallback(t *testing.T) {
	invoke := func(ctx context.Context, prompt string) (string, llmadapter.TokenCounts, error) {
		return "maybe...?", llmadapter.TokenCounts{}, nil
	}
	adapter := llmadapter.NewAdapter(invoke, "gpt-4o")
	reg := householdRegistry(t)
	b := New(adapter, thinkingChain(), reg, nil)

	var attempts int
	in := DecideInput{
		AgentID: "agent1", AgentType: "household", Year: 1,
		State:              skill.StateSnapshot{Bools: map[string]bool{"elevated": false}},
		ParsingConfig:      llmadapter.ParsingConfig{ProximityWindow: 35},
		BuildPrompt:        scriptedPromptFunc(&attempts),
		FallbackSkill:      "do_nothing",
		AvailableResources: map[string]float64{"funds": 5000},
	}

	report, err := b.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedFallback, report.Outcome)
	assert.Equal(t, "do_nothing", report.FinalSkill)
	assert.True(t, report.InitialProposal.Unparseable)
}

// B4 — max_attempts=1 with a validation ERROR -> no retry, straight to fallback.
func TestBroker_B4_MaxAttemptsOneNoRetry(t *testing.T) {
	reply := sentinelReply("elevate_house", map[string]string{"TP": "M"})
	invoke := func(ctx context.Context, prompt string) (string, llmadapter.TokenCounts, error) {
		return reply, llmadapter.TokenCounts{}, nil
	}
	adapter := llmadapter.NewAdapter(invoke, "gpt-4o")
	reg := householdRegistry(t)
	b := New(adapter, thinkingChain(), reg, nil)

	var attempts int
	in := DecideInput{
		AgentID: "agent1", AgentType: "household", Year: 1,
		State:              skill.StateSnapshot{Bools: map[string]bool{"elevated": true}},
		ParsingConfig:      llmadapter.ParsingConfig{ProximityWindow: 35},
		BuildPrompt:        scriptedPromptFunc(&attempts),
		FallbackSkill:      "do_nothing",
		MaxAttempts:        1,
		AvailableResources: map[string]float64{"funds": 5000},
	}
	report, err := b.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedFallback, report.Outcome)
	assert.Len(t, report.Attempts, 1)
}

// P8 — after FALLBACK, emitted action equals configured fallback.
func TestBroker_P8_FallbackEmitsConfiguredSkill(t *testing.T) {
	invoke := func(ctx context.Context, prompt string) (string, llmadapter.TokenCounts, error) {
		return "garbage", llmadapter.TokenCounts{}, nil
	}
	adapter := llmadapter.NewAdapter(invoke, "gpt-4o")
	reg := householdRegistry(t)
	b := New(adapter, thinkingChain(), reg, nil)
	var attempts int
	in := DecideInput{
		AgentID: "a1", AgentType: "household", Year: 1,
		State: skill.StateSnapshot{}, ParsingConfig: llmadapter.ParsingConfig{ProximityWindow: 35},
		BuildPrompt: scriptedPromptFunc(&attempts), FallbackSkill: "do_nothing",
		AvailableResources: map[string]float64{"funds": 100},
	}
	report, err := b.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in.FallbackSkill, report.FinalSkill)
}

// S6 — cache hit whose identity-rule replay fails must invalidate and fall
// through to the full pipeline (P9).
func TestBroker_S6_CacheHitInvalidatedOnIdentityMismatch(t *testing.T) {
	reply := sentinelReply("elevate_house", map[string]string{"TP": "M"})
	invoke := func(ctx context.Context, prompt string) (string, llmadapter.TokenCounts, error) {
		return reply, llmadapter.TokenCounts{}, nil
	}
	adapter := llmadapter.NewAdapter(invoke, "gpt-4o")
	reg := householdRegistry(t)
	c := wagfcache.New()
	fp := wagfcache.Fingerprint("agent1", map[string]bool{"elevated": false}, nil, "ctx")
	c.Put(fp, wagfcache.Entry{AgentID: "agent1", ApprovedSkill: "elevate_house"})

	b := New(adapter, thinkingChain(), reg, c)
	var attempts int
	in := DecideInput{
		AgentID: "agent1", AgentType: "household", Year: 4,
		State:              skill.StateSnapshot{Bools: map[string]bool{"elevated": true}}, // now elevated
		ParsingConfig:      llmadapter.ParsingConfig{ProximityWindow: 35},
		BuildPrompt:        scriptedPromptFunc(&attempts),
		FallbackSkill:      "do_nothing",
		AvailableResources: map[string]float64{"funds": 50000},
		CacheFingerprint:   fp,
	}

	report, err := b.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedFallback, report.Outcome)
	_, hit := c.Get(fp)
	assert.False(t, hit, "stale cache entry must be invalidated (P9)")
}

func TestBroker_CacheHitReplaysWithoutLLMCall(t *testing.T) {
	calls := 0
	invoke := func(ctx context.Context, prompt string) (string, llmadapter.TokenCounts, error) {
		calls++
		return sentinelReply("buy_insurance", nil), llmadapter.TokenCounts{}, nil
	}
	adapter := llmadapter.NewAdapter(invoke, "gpt-4o")
	reg := householdRegistry(t)
	c := wagfcache.New()
	fp := wagfcache.Fingerprint("agent1", map[string]bool{"elevated": false}, nil, "ctx")
	c.Put(fp, wagfcache.Entry{AgentID: "agent1", ApprovedSkill: "buy_insurance"})

	b := New(adapter, thinkingChain(), reg, c)
	var attempts int
	in := DecideInput{
		AgentID: "agent1", AgentType: "household", Year: 3,
		State:              skill.StateSnapshot{Bools: map[string]bool{"elevated": false}},
		ParsingConfig:      llmadapter.ParsingConfig{ProximityWindow: 35},
		BuildPrompt:        scriptedPromptFunc(&attempts),
		FallbackSkill:      "do_nothing",
		AvailableResources: map[string]float64{"funds": 5000},
		CacheFingerprint:   fp,
	}
	report, err := b.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0, calls, "a clean cache replay must not invoke the LLM")
	assert.Equal(t, "buy_insurance", report.FinalSkill)
	assert.True(t, report.Attempts[0].CacheReplay)
}

// B2 — all skills blocked except fallback: decision proceeds with fallback.
func TestBroker_B2_OnlyFallbackEligible(t *testing.T) {
	reg := skill.NewRegistry()
	require.NoError(t, reg.Load([]skill.Skill{
		{ID: "do_nothing", EligibleTypes: []string{"household"}},
		{ID: "elevate_house", EligibleTypes: []string{"household"},
			Preconditions: []skill.Precondition{{BoolField: "elevated", BoolEquals: false}}},
	}, "do_nothing"))

	invoke := func(ctx context.Context, prompt string) (string, llmadapter.TokenCounts, error) {
		t.Fatal("LLM should not be invoked when only the fallback is eligible")
		return "", llmadapter.TokenCounts{}, nil
	}
	adapter := llmadapter.NewAdapter(invoke, "gpt-4o")
	b := New(adapter, validator.NewChain(), reg, nil)

	var attempts int
	in := DecideInput{
		AgentID: "agent1", AgentType: "household", Year: 1,
		State:         skill.StateSnapshot{Bools: map[string]bool{"elevated": true}}, // elevate_house now ineligible
		ParsingConfig: llmadapter.ParsingConfig{ProximityWindow: 35},
		BuildPrompt:   scriptedPromptFunc(&attempts),
		FallbackSkill: "do_nothing",
	}
	report, err := b.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedFallback, report.Outcome)
	assert.Equal(t, "do_nothing", report.FinalSkill)
}

// P1/P4 — deterministic given max_attempts=1 and a fixed LLM reply.
func TestBroker_P4_DeterministicWithMaxAttemptsOne(t *testing.T) {
	reply := sentinelReply("buy_insurance", map[string]string{"TP": "VH"})
	invoke := func(ctx context.Context, prompt string) (string, llmadapter.TokenCounts, error) {
		return reply, llmadapter.TokenCounts{}, nil
	}
	adapter := llmadapter.NewAdapter(invoke, "gpt-4o")
	reg := householdRegistry(t)
	b := New(adapter, thinkingChain(), reg, nil)

	runOnce := func() InterventionReport {
		var attempts int
		in := DecideInput{
			AgentID: "agent1", AgentType: "household", Year: 1,
			State:              skill.StateSnapshot{Bools: map[string]bool{"elevated": false}},
			ParsingConfig:      llmadapter.ParsingConfig{ProximityWindow: 35},
			BuildPrompt:        scriptedPromptFunc(&attempts),
			FallbackSkill:      "do_nothing",
			MaxAttempts:        1,
			AvailableResources: map[string]float64{"funds": 5000},
		}
		r, err := b.Decide(context.Background(), in)
		require.NoError(t, err)
		return r
	}

	first := runOnce()
	second := runOnce()
	assert.Equal(t, first.Outcome, second.Outcome)
	assert.Equal(t, first.FinalSkill, second.FinalSkill)
}
