// Package skill implements the Skill Registry (SPEC_FULL.md §4.1): the
// source of truth for the discrete action set an agent type may propose.
package skill

import (
	"fmt"

	"github.com/WenyuChiou/WAGF-sub002/pkg/registry"
)

// Polarity is the direction a skill's effect moves a numeric state field.
type Polarity string

const (
	PolarityIncrease Polarity = "increase"
	PolarityDecrease Polarity = "decrease"
	PolaritySet      Polarity = "set"
)

// Effect describes one state field a skill is allowed to mutate.
type Effect struct {
	Field     string   `yaml:"field"`
	Polarity  Polarity `yaml:"polarity"`
	Magnitude float64  `yaml:"magnitude,omitempty"`
}

// Precondition is a pure predicate over an agent state snapshot.
// Exactly one of BoolField or (NumField + Threshold) should be set.
type Precondition struct {
	// BoolField, if set, requires state[BoolField] == BoolEquals.
	BoolField  string `yaml:"bool_field,omitempty"`
	BoolEquals bool   `yaml:"bool_equals,omitempty"`

	// NumField + Comparator + Threshold, if set, requires the numeric
	// comparison to hold: state[NumField] <comparator> Threshold.
	NumField   string  `yaml:"num_field,omitempty"`
	Comparator string  `yaml:"comparator,omitempty"` // one of: <, <=, >, >=, ==
	Threshold  float64 `yaml:"threshold,omitempty"`
}

// Cost parameterizes what a skill consumes from the agent's resources.
type Cost struct {
	ResourceField string  `yaml:"resource_field,omitempty"`
	Amount        float64 `yaml:"amount,omitempty"`
}

// Skill is a named, typed action. Immutable once loaded into a Registry.
type Skill struct {
	ID              string         `yaml:"id"`
	Description     string         `yaml:"description"`
	EligibleTypes   []string       `yaml:"eligible_agent_types"`
	Preconditions   []Precondition `yaml:"preconditions,omitempty"`
	Effects         []Effect       `yaml:"effects,omitempty"`
	OneTime         bool           `yaml:"one_time,omitempty"`
	OneTimeStateKey string         `yaml:"one_time_state_key,omitempty"`
	Cost            Cost           `yaml:"cost,omitempty"`
}

// StateSnapshot is the read-only view of agent state the registry and
// validators evaluate preconditions against. Keys are domain-defined; WAGF's
// core treats it as an opaque bag of booleans and numbers.
type StateSnapshot struct {
	Bools map[string]bool
	Nums  map[string]float64
}

// Satisfies reports whether the snapshot satisfies every precondition of s.
// Preconditions are pure: they never mutate snapshot.
func (s Skill) Satisfies(state StateSnapshot) bool {
	for _, pc := range s.Preconditions {
		if pc.BoolField != "" {
			if state.Bools[pc.BoolField] != pc.BoolEquals {
				return false
			}
			continue
		}
		if pc.NumField != "" {
			v := state.Nums[pc.NumField]
			if !compare(v, pc.Comparator, pc.Threshold) {
				return false
			}
		}
	}
	return true
}

func compare(v float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "==":
		return v == threshold
	default:
		return true
	}
}

// alreadyOccurred reports whether a one-time skill's effect has already
// fired for this agent, per its OneTimeStateKey flag in the snapshot.
func (s Skill) alreadyOccurred(state StateSnapshot) bool {
	if !s.OneTime {
		return false
	}
	key := s.OneTimeStateKey
	if key == "" {
		key = s.ID + "_done"
	}
	return state.Bools[key]
}

// Registry is the source of truth for the discrete action set (§4.1).
// Duplicate ids or malformed effects fail Load at startup, never mid-run.
type Registry struct {
	*registry.BaseRegistry[Skill]
	defaultSkill string
}

// NewRegistry creates an empty Registry. Use Load to populate it from a
// skill_registry.yaml document (see pkg/config).
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Skill]()}
}

// Load registers every skill in skills, validating ids and effects.
// Load is idempotent only in the sense that calling it twice on a fresh
// Registry with the same skills succeeds; registering a duplicate id within
// one Load call, or across two Load calls on the same Registry, fails.
func (r *Registry) Load(skills []Skill, defaultSkillID string) error {
	for _, sk := range skills {
		if sk.ID == "" {
			return fmt.Errorf("skill registry: skill has empty id")
		}
		for _, eff := range sk.Effects {
			if eff.Field == "" {
				return fmt.Errorf("skill registry: skill %q has an effect with empty field", sk.ID)
			}
			switch eff.Polarity {
			case PolarityIncrease, PolarityDecrease, PolaritySet:
			default:
				return fmt.Errorf("skill registry: skill %q effect on %q has invalid polarity %q", sk.ID, eff.Field, eff.Polarity)
			}
		}
		if len(sk.EligibleTypes) == 0 {
			return fmt.Errorf("skill registry: skill %q has no eligible agent types", sk.ID)
		}
		if err := r.Register(sk.ID, sk); err != nil {
			return fmt.Errorf("skill registry: %w", err)
		}
	}

	if defaultSkillID == "" {
		return fmt.Errorf("skill registry: default_skill is required")
	}
	if _, ok := r.Get(defaultSkillID); !ok {
		return fmt.Errorf("skill registry: default_skill %q is not a registered skill", defaultSkillID)
	}
	r.defaultSkill = defaultSkillID
	return nil
}

// Lookup returns the skill for skillID, or false if not registered.
func (r *Registry) Lookup(skillID string) (Skill, bool) {
	return r.Get(skillID)
}

// DefaultSkill returns the configured fallback skill id.
func (r *Registry) DefaultSkill() string {
	return r.defaultSkill
}

// EligibleFor returns, in deterministic order, the ids of skills available
// to agentType given state. One-time skills already triggered are filtered
// out; preconditions are evaluated as pure functions of state.
func (r *Registry) EligibleFor(agentType string, state StateSnapshot) []string {
	var ids []string
	for _, sk := range r.List() {
		if !containsString(sk.EligibleTypes, agentType) {
			continue
		}
		if sk.alreadyOccurred(state) {
			continue
		}
		if !sk.Satisfies(state) {
			continue
		}
		ids = append(ids, sk.ID)
	}
	return ids
}

func containsString(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}

// Describe renders a skill's description for presentation to the LLM.
// formatHint selects how verbose the rendering is; "short" returns just the
// description, anything else (including "") includes the id.
func (r *Registry) Describe(skillID string, formatHint string) (string, error) {
	sk, ok := r.Lookup(skillID)
	if !ok {
		return "", fmt.Errorf("skill registry: skill %q not found", skillID)
	}
	if formatHint == "short" {
		return sk.Description, nil
	}
	return fmt.Sprintf("%s: %s", sk.ID, sk.Description), nil
}
