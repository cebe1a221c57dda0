// Package config implements the YAML configuration surface (SPEC_FULL.md
// §6): skill_registry.yaml and agent_types.yaml, decoded with
// gopkg.in/yaml.v3 plus github.com/mitchellh/mapstructure for the nested
// agent-type maps, following a loader/SetDefaults/Validate shape.
package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/WenyuChiou/WAGF-sub002/pkg/agenttype"
	"github.com/WenyuChiou/WAGF-sub002/pkg/llmadapter"
	"github.com/WenyuChiou/WAGF-sub002/pkg/memory"
	"github.com/WenyuChiou/WAGF-sub002/pkg/skill"
	"github.com/WenyuChiou/WAGF-sub002/pkg/validator"
)

// GlobalConfig is agent_types.yaml's global_config block: memory defaults,
// LLM invocation parameters, and the governance mode switch (§6).
type GlobalConfig struct {
	NumCtx         int           `yaml:"num_ctx,omitempty"`
	NumPredict     int           `yaml:"num_predict,omitempty"`
	GovernanceMode string        `yaml:"governance_mode"` // "disabled" | "strict"
	Memory         memory.Config `yaml:"memory,omitempty"`
	MaxAttempts    int           `yaml:"max_attempts,omitempty"`
	CacheEnabled   bool          `yaml:"cache_enabled,omitempty"`
}

// SetDefaults fills GlobalConfig zero fields with spec defaults.
func (g *GlobalConfig) SetDefaults() {
	if g.GovernanceMode == "" {
		g.GovernanceMode = "strict"
	}
	if g.MaxAttempts == 0 {
		g.MaxAttempts = 3
	}
	g.Memory.SetDefaults()
}

// Validate rejects an unrecognized governance mode (§6).
func (g GlobalConfig) Validate() error {
	switch g.GovernanceMode {
	case "disabled", "strict":
		return nil
	default:
		return fmt.Errorf("config: global_config.governance_mode must be 'disabled' or 'strict', got %q", g.GovernanceMode)
	}
}

// SharedConfig is agent_types.yaml's shared block: the rating scale and the
// response-format template with its documented start/end sentinels (§6).
type SharedConfig struct {
	RatingScale    []string `yaml:"rating_scale,omitempty"`
	ResponseFormat string   `yaml:"response_format,omitempty"`
}

// SetDefaults applies the fixed 5-level ordinal scale and a minimal
// sentinel-delimited response format when the document omits them. The
// sentinels must match llmadapter.DefaultSentinels: the Model Adapter's
// tier-1/tier-2 parsers look for exactly those markers.
func (s *SharedConfig) SetDefaults() {
	if len(s.RatingScale) == 0 {
		s.RatingScale = agenttype.RatingScale
	}
	if s.ResponseFormat == "" {
		s.ResponseFormat = "Respond with:\n" + llmadapter.DefaultSentinels.Start +
			"\n{\"skill\": \"...\", \"reasoning\": \"...\", \"constructs\": {...}}\n" + llmadapter.DefaultSentinels.End
	}
}

// documentShape mirrors the top-level keys of agent_types.yaml. Nested
// blocks are decoded as raw maps first so a malformed one produces a
// config error naming the offending key rather than a zero-valued struct.
type documentShape struct {
	GlobalConfig    map[string]interface{}            `yaml:"global_config"`
	Shared          map[string]interface{}            `yaml:"shared"`
	GovernanceRules []map[string]interface{}          `yaml:"governance_rules"`
	AgentTypes      map[string]map[string]interface{} `yaml:"agent_types"`
}

// AgentTypesFile is the decoded, defaulted, validated agent_types.yaml
// document (§6).
type AgentTypesFile struct {
	GlobalConfig GlobalConfig
	Shared       SharedConfig
	// GovernanceRules is every rule declared in the document's top-level
	// governance_rules list, keyed by id. Agent types reference these by
	// string id in their own governance_rules list (§6: "Governance rules
	// are referenced by string id").
	GovernanceRules map[string]validator.GovernanceRule
	AgentTypes      map[string]agenttype.AgentType
}

// LoadAgentTypesFile reads and decodes an agent_types.yaml document at
// path. Malformed YAML, an unknown rule id referenced by an agent type, or
// a duplicate rule id are all config errors surfaced before any LLM call
// is attempted (§7).
func LoadAgentTypesFile(path string) (*AgentTypesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading agent_types file %q: %w", path, err)
	}
	return ParseAgentTypesFile(data)
}

// ParseAgentTypesFile decodes data (the contents of an agent_types.yaml
// document) without touching the filesystem, so tests can exercise the
// decode/default/validate pipeline against an inline fixture.
func ParseAgentTypesFile(data []byte) (*AgentTypesFile, error) {
	var doc documentShape
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing agent_types.yaml: %w", err)
	}

	var global GlobalConfig
	if err := decodeMap(doc.GlobalConfig, &global); err != nil {
		return nil, fmt.Errorf("config: decoding global_config: %w", err)
	}
	global.SetDefaults()
	if err := global.Validate(); err != nil {
		return nil, err
	}

	var shared SharedConfig
	if err := decodeMap(doc.Shared, &shared); err != nil {
		return nil, fmt.Errorf("config: decoding shared block: %w", err)
	}
	shared.SetDefaults()

	rules := make(map[string]validator.GovernanceRule, len(doc.GovernanceRules))
	for i, raw := range doc.GovernanceRules {
		var rule validator.GovernanceRule
		if err := decodeMap(raw, &rule); err != nil {
			return nil, fmt.Errorf("config: decoding governance_rules[%d]: %w", i, err)
		}
		if rule.ID == "" {
			return nil, fmt.Errorf("config: governance_rules[%d] has empty id", i)
		}
		if _, dup := rules[rule.ID]; dup {
			return nil, fmt.Errorf("config: governance rule id %q declared twice", rule.ID)
		}
		rules[rule.ID] = rule
	}

	types := make([]agenttype.AgentType, 0, len(doc.AgentTypes))
	for id, body := range doc.AgentTypes {
		var at agenttype.AgentType
		if err := decodeMap(body, &at); err != nil {
			return nil, fmt.Errorf("config: decoding agent_types.%s: %w", id, err)
		}
		at.ID = id
		for _, ref := range at.GovernanceRules {
			if _, ok := rules[ref]; !ok {
				return nil, fmt.Errorf("config: agent_types.%s references unknown governance rule %q", id, ref)
			}
		}
		types = append(types, at)
	}

	reg := agenttype.NewRegistry()
	if err := reg.Load(types); err != nil {
		return nil, err
	}
	loaded := make(map[string]agenttype.AgentType, len(types))
	for _, at := range reg.List() {
		loaded[at.ID] = at
	}

	return &AgentTypesFile{
		GlobalConfig:    global,
		Shared:          shared,
		GovernanceRules: rules,
		AgentTypes:      loaded,
	}, nil
}

// BuildChain constructs a validator.Chain from every governance rule
// agentTypeID references, in declared order (Chain.Register then sorts
// within each family by priority, §4.5, §6).
func (f *AgentTypesFile) BuildChain(agentTypeID string) (*validator.Chain, error) {
	at, ok := f.AgentTypes[agentTypeID]
	if !ok {
		return nil, fmt.Errorf("config: unknown agent type %q", agentTypeID)
	}
	chain := validator.NewChain()
	for _, ref := range at.GovernanceRules {
		rule, ok := f.GovernanceRules[ref]
		if !ok {
			return nil, fmt.Errorf("config: agent type %q references unknown governance rule %q", agentTypeID, ref)
		}
		chain.Register(rule)
	}
	return chain, nil
}

// SkillRegistryFile is the decoded skill_registry.yaml document (§6).
type SkillRegistryFile struct {
	Skills       []skill.Skill `yaml:"skills"`
	DefaultSkill string        `yaml:"default_skill"`
}

// LoadSkillRegistryFile reads skill_registry.yaml at path and returns a
// loaded, validated skill.Registry (§4.1: load is idempotent; raises on
// duplicate ids or malformed effects).
func LoadSkillRegistryFile(path string) (*skill.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading skill_registry file %q: %w", path, err)
	}
	return ParseSkillRegistryFile(data)
}

// ParseSkillRegistryFile decodes data into a loaded skill.Registry.
func ParseSkillRegistryFile(data []byte) (*skill.Registry, error) {
	var doc SkillRegistryFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing skill_registry.yaml: %w", err)
	}
	reg := skill.NewRegistry()
	if err := reg.Load(doc.Skills, doc.DefaultSkill); err != nil {
		return nil, err
	}
	return reg, nil
}

// decodeMap decodes a generic map[string]interface{} (as produced by
// yaml.Unmarshal into an `interface{}`-typed field) into a typed struct,
// via mapstructure the way pkg/config/loader.go's decodeConfig does.
func decodeMap(raw map[string]interface{}, out interface{}) error {
	if raw == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "yaml",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}
