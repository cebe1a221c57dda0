package agenttype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleType() AgentType {
	return AgentType{
		ID:             "household",
		PromptTemplate: "You are {agent_id}, a household facing flood risk.",
		Parsing: ParsingConfig{
			DecisionKeywords: []string{"decision:", "I will"},
			Synonyms: map[string][]string{
				"threat_perception": {"TP", "threat"},
			},
			AliasMap: map[string]string{
				"MAINTAIN": "maintain_demand",
			},
			Normalization: map[string]string{
				"very high": "VH",
			},
		},
		GovernanceRules: []string{"high_threat_no_do_nothing", "already_elevated"},
		FallbackSkill:   "do_nothing",
	}
}

func TestRegistry_LoadAppliesParsingDefaults(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Load([]AgentType{sampleType()}))

	at, ok := r.Lookup("household")
	require.True(t, ok)
	assert.Equal(t, 35, at.Parsing.ProximityWindow)
	assert.Equal(t, 2, at.Parsing.MaxRetries)
}

func TestRegistry_LoadRejectsMissingFallback(t *testing.T) {
	r := NewRegistry()
	bad := sampleType()
	bad.FallbackSkill = ""
	err := r.Load([]AgentType{bad})
	assert.Error(t, err)
}

func TestRegistry_LoadRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	err := r.Load([]AgentType{sampleType(), sampleType()})
	assert.Error(t, err)
}

func TestRegistry_NCategoryGeneralization(t *testing.T) {
	r := NewRegistry()
	types := []AgentType{
		sampleType(),
		{ID: "government", PromptTemplate: "t", FallbackSkill: "do_nothing"},
		{ID: "insurance", PromptTemplate: "t", FallbackSkill: "do_nothing"},
		{ID: "farmer", PromptTemplate: "t", FallbackSkill: "do_nothing"},
	}
	require.NoError(t, r.Load(types))
	assert.Equal(t, 4, r.Count())
}
