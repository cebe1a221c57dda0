package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/WenyuChiou/WAGF-sub002/pkg/agenttype"
	"github.com/WenyuChiou/WAGF-sub002/pkg/config"
	"github.com/WenyuChiou/WAGF-sub002/pkg/skill"
	"github.com/WenyuChiou/WAGF-sub002/pkg/validator"
)

// SchemaCmd generates JSON Schema for the two YAML document shapes by
// reflecting their config structs, for the "what an operator edits by
// hand" documents named in §6's config surface.
type SchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

// agentTypesSchemaDoc mirrors agent_types.yaml's logical shape for
// reflection purposes; the real decode path goes through
// config.ParseAgentTypesFile's two-stage raw-map decode instead.
type agentTypesSchemaDoc struct {
	GlobalConfig    config.GlobalConfig           `json:"global_config" yaml:"global_config"`
	Shared          config.SharedConfig           `json:"shared" yaml:"shared"`
	GovernanceRules []validator.GovernanceRule     `json:"governance_rules" yaml:"governance_rules"`
	AgentTypes      map[string]agenttype.AgentType `json:"agent_types" yaml:"agent_types"`
}

type skillRegistrySchemaDoc struct {
	Skills       []skill.Skill `json:"skills" yaml:"skills"`
	DefaultSkill string        `json:"default_skill" yaml:"default_skill"`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	agentTypesSchema := reflector.Reflect(&agentTypesSchemaDoc{})
	agentTypesSchema.ID = "https://wagf.dev/schemas/agent_types.json"
	agentTypesSchema.Title = "WAGF agent_types.yaml Schema"
	agentTypesSchema.Version = "http://json-schema.org/draft-07/schema#"

	skillSchema := reflector.Reflect(&skillRegistrySchemaDoc{})
	skillSchema.ID = "https://wagf.dev/schemas/skill_registry.json"
	skillSchema.Title = "WAGF skill_registry.yaml Schema"
	skillSchema.Version = "http://json-schema.org/draft-07/schema#"

	out := map[string]interface{}{
		"agent_types":    agentTypesSchema,
		"skill_registry": skillSchema,
	}

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}
