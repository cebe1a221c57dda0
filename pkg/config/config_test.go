package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentTypesFixture = `
global_config:
  governance_mode: strict
  max_attempts: 2
  memory:
    kind: window
    window_size: 10

shared:
  rating_scale: ["VL", "L", "M", "H", "VH"]

governance_rules:
  - id: high_threat_no_do_nothing
    family: thinking
    priority: 1
    severity: error
    condition:
      construct_equals:
        TP: VH
    blocked_skill: do_nothing
    reason: very high threat perception forbids taking no action

agent_types:
  household:
    prompt_template: "You are a household."
    governance_rules: ["high_threat_no_do_nothing"]
    fallback_skill: do_nothing
`

func TestParseAgentTypesFile(t *testing.T) {
	f, err := ParseAgentTypesFile([]byte(agentTypesFixture))
	require.NoError(t, err)

	assert.Equal(t, "strict", f.GlobalConfig.GovernanceMode)
	assert.Equal(t, 2, f.GlobalConfig.MaxAttempts)
	assert.Equal(t, []string{"VL", "L", "M", "H", "VH"}, f.Shared.RatingScale)
	require.Contains(t, f.GovernanceRules, "high_threat_no_do_nothing")

	household, ok := f.AgentTypes["household"]
	require.True(t, ok)
	assert.Equal(t, "household", household.ID)
	assert.Equal(t, "do_nothing", household.FallbackSkill)
}

func TestParseAgentTypesFileUnknownRuleReference(t *testing.T) {
	bad := `
agent_types:
  household:
    prompt_template: "x"
    governance_rules: ["does_not_exist"]
`
	_, err := ParseAgentTypesFile([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown governance rule")
}

func TestParseAgentTypesFileDuplicateRuleID(t *testing.T) {
	bad := `
governance_rules:
  - id: dup
    family: thinking
    blocked_skill: do_nothing
  - id: dup
    family: physical
    blocked_skill: elevate_house
agent_types:
  household:
    prompt_template: "x"
`
	_, err := ParseAgentTypesFile([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}

func TestGlobalConfigValidateRejectsUnknownMode(t *testing.T) {
	g := GlobalConfig{GovernanceMode: "sometimes"}
	err := g.Validate()
	require.Error(t, err)
}

func TestBuildChain(t *testing.T) {
	f, err := ParseAgentTypesFile([]byte(agentTypesFixture))
	require.NoError(t, err)

	chain, err := f.BuildChain("household")
	require.NoError(t, err)
	require.NotNil(t, chain)

	_, err = f.BuildChain("nonexistent")
	require.Error(t, err)
}

const skillRegistryFixture = `
skills:
  - id: do_nothing
    eligible_agent_types: ["household"]
  - id: buy_insurance
    eligible_agent_types: ["household"]
    cost:
      resource_field: funds
      amount: 1200
default_skill: do_nothing
`

func TestParseSkillRegistryFile(t *testing.T) {
	reg, err := ParseSkillRegistryFile([]byte(skillRegistryFixture))
	require.NoError(t, err)
	assert.Equal(t, "do_nothing", reg.DefaultSkill())
	assert.ElementsMatch(t, []string{"buy_insurance", "do_nothing"}, reg.Names())
}

func TestParseSkillRegistryFileMissingDefault(t *testing.T) {
	bad := `
skills:
  - id: buy_insurance
    eligible_agent_types: ["household"]
default_skill: does_not_exist
`
	_, err := ParseSkillRegistryFile([]byte(bad))
	require.Error(t, err)
}
