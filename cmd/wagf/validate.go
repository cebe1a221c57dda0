package main

import (
	"fmt"
	"os"

	"github.com/WenyuChiou/WAGF-sub002/pkg/config"
)

// ValidateCmd validates a skill_registry.yaml and agent_types.yaml pair,
// reporting the first decode/default/validate error without attempting
// any LLM call (§7: config errors are fatal at startup, before the run
// loop begins).
type ValidateCmd struct {
	SkillRegistry string `arg:"" name:"skill-registry" help:"Path to skill_registry.yaml." type:"path"`
	AgentTypes    string `arg:"" name:"agent-types" help:"Path to agent_types.yaml." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	skills, err := config.LoadSkillRegistryFile(c.SkillRegistry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid: %v\n", c.SkillRegistry, err)
		return fmt.Errorf("skill registry validation failed")
	}
	fmt.Printf("%s: valid (%d skills)\n", c.SkillRegistry, len(skills.Names()))

	at, err := config.LoadAgentTypesFile(c.AgentTypes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid: %v\n", c.AgentTypes, err)
		return fmt.Errorf("agent types validation failed")
	}
	fmt.Printf("%s: valid (%d agent types, %d governance rules, governance_mode=%s)\n",
		c.AgentTypes, len(at.AgentTypes), len(at.GovernanceRules), at.GlobalConfig.GovernanceMode)
	return nil
}
