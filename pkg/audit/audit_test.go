package audit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WenyuChiou/WAGF-sub002/pkg/broker"
	"github.com/WenyuChiou/WAGF-sub002/pkg/llmadapter"
	"github.com/WenyuChiou/WAGF-sub002/pkg/reflection"
	"github.com/WenyuChiou/WAGF-sub002/pkg/validator"
)

func sampleReport() broker.InterventionReport {
	return broker.InterventionReport{
		AgentID:         "household-001",
		AgentType:       "household",
		Year:            3,
		InitialProposal: llmadapter.SkillProposal{SkillID: "buy_insurance", Constructs: map[string]llmadapter.ConstructLabel{"TP": "H"}},
		Attempts: []broker.AttemptRecord{
			{
				Attempt:  1,
				Prompt:   "prompt text",
				Proposal: llmadapter.SkillProposal{SkillID: "buy_insurance"},
				ValidationResults: []validator.ValidationResult{
					{RuleID: "already_elevated", Severity: validator.SeverityError, Valid: false, Reason: "already elevated"},
				},
			},
		},
		Outcome:          broker.OutcomeApprovedFirst,
		FinalSkill:       "buy_insurance",
		PromptTokens:     120,
		CompletionTokens: 40,
	}
}

func TestSinkWriteDecisionAndFinalize(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir)
	require.NoError(t, err)

	report := sampleReport()
	require.NoError(t, sink.WriteDecision(report, 1200, StateDigest("state")))
	require.NoError(t, sink.WriteGovernanceAudit(report))
	require.NoError(t, sink.TraceRecordsFromReport(report.AgentType, report))

	summary := sink.CurrentSummary()
	assert.Equal(t, 1, summary.TotalDecisions)
	assert.Equal(t, 1, summary.OutcomeCounts[string(broker.OutcomeApprovedFirst)])
	assert.Equal(t, 1, summary.RuleFireCounts["already_elevated"])
	assert.Equal(t, 1, summary.AgentTypeCounts["household"])

	require.NoError(t, sink.WriteReflection("household-001", reflection.Insight{Summary: "saved for flood season", YearCreated: 3}))
	require.NoError(t, sink.WriteConfigSnapshot(map[string]string{"seed": "1"}))

	sink.NoteEffectError()
	assert.Equal(t, 1, sink.CurrentSummary().EffectErrors)

	require.NoError(t, sink.Finalize())

	for _, name := range []string{"simulation_log.csv", "governance_audit.csv", "reflection_log.jsonl", "config_snapshot.yaml", "governance_summary.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "expected %s to exist", name)
	}
	_, err = os.Stat(filepath.Join(dir, "traces", "household_traces.jsonl"))
	assert.NoError(t, err)
}

func TestStateDigestIsDeterministic(t *testing.T) {
	assert.Equal(t, StateDigest("same input"), StateDigest("same input"))
	assert.NotEqual(t, StateDigest("a"), StateDigest("b"))
}
