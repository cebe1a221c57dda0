// Package agenttype implements the Agent Type Config component (SPEC_FULL.md
// §3, §6): per-agent-type prompt templates, parsing hints, governance rule
// references, memory configuration, and reflection guidance.
package agenttype

import (
	"fmt"

	"github.com/WenyuChiou/WAGF-sub002/pkg/registry"
)

// RatingScale is the fixed 5-level ordinal scale construct labels use.
var RatingScale = []string{"VL", "L", "M", "H", "VH"}

// ParsingConfig configures the Model Adapter's multi-tier parser for one
// agent type (§4.4).
type ParsingConfig struct {
	// DecisionKeywords are surface tokens that mark where a decision is
	// likely stated in free text (e.g. "I will", "decision:", "action:").
	DecisionKeywords []string `yaml:"decision_keywords"`

	// Synonyms maps a canonical construct name (e.g. "threat_perception") to
	// the surface tokens the LLM might use for it.
	Synonyms map[string][]string `yaml:"synonyms"`

	// AliasMap maps a model-emitted label to a canonical skill id, e.g.
	// "MAINTAIN" -> "maintain_demand".
	AliasMap map[string]string `yaml:"alias_map"`

	// Normalization maps free-text severity terms onto RatingScale labels,
	// e.g. "very high" -> "VH".
	Normalization map[string]string `yaml:"normalization"`

	// ProximityWindow is the character window searched around a matched
	// decision keyword for the nearest label token (tier 4 parsing).
	ProximityWindow int `yaml:"proximity_window"`

	// MaxRetries is this agent type's override of the broker's max_attempts
	// minus one (i.e. number of retries, not counting the initial attempt).
	MaxRetries int `yaml:"max_retries"`
}

// SetDefaults fills in zero-valued fields with spec-mandated defaults.
func (p *ParsingConfig) SetDefaults() {
	if p.ProximityWindow == 0 {
		p.ProximityWindow = 35
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 2
	}
}

// MemoryConfig carries per-agent-type hints the Memory Engine consumes when
// scoring and retaining items (§3).
type MemoryConfig struct {
	EmotionWeights map[string]float64 `yaml:"emotion_weights,omitempty"`
	SourceWeights  map[string]float64 `yaml:"source_weights,omitempty"`
	DecayRate      float64            `yaml:"decay_rate,omitempty"`
	Consolidation  float64            `yaml:"consolidation_threshold,omitempty"`
}

// ReflectionConfig carries the per-type question bank the Reflection Engine
// embeds into its batch prompts (§4.7).
type ReflectionConfig struct {
	Questions []string `yaml:"questions,omitempty"`
}

// AgentType is the full configuration for one category of simulated agent.
type AgentType struct {
	ID               string           `yaml:"id"`
	PromptTemplate   string           `yaml:"prompt_template"`
	Parsing          ParsingConfig    `yaml:"parsing"`
	GovernanceRules  []string         `yaml:"governance_rules"`
	MemoryConfig     MemoryConfig     `yaml:"memory_config,omitempty"`
	ReflectionConfig ReflectionConfig `yaml:"reflection_config,omitempty"`
	FallbackSkill    string           `yaml:"fallback_skill"`
}

// Registry is the read-only, post-load store of AgentType definitions
// (§4, the "N-category" generalization noted in §9: a map keyed by agent
// type id, never hardcoded owner/renter-style fields).
type Registry struct {
	*registry.BaseRegistry[AgentType]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[AgentType]()}
}

// Load registers every agent type, applying config defaults and rejecting
// duplicate ids or agent types with no fallback skill configured.
func (r *Registry) Load(types []AgentType) error {
	for _, at := range types {
		if at.ID == "" {
			return fmt.Errorf("agent type config: agent type has empty id")
		}
		if at.FallbackSkill == "" {
			return fmt.Errorf("agent type config: agent type %q has no fallback_skill", at.ID)
		}
		at.Parsing.SetDefaults()
		if err := r.Register(at.ID, at); err != nil {
			return fmt.Errorf("agent type config: %w", err)
		}
	}
	return nil
}

// Lookup returns the AgentType for id, or false if not registered.
func (r *Registry) Lookup(id string) (AgentType, bool) {
	return r.Get(id)
}
