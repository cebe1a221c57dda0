package validator

import "strings"

// Condition is the constraint DSL governance rules are expressed over
// (§6): a constraint over construct labels and state flags. A rule fires
// only when every populated field matches; missing keys never fire, per
// §9's "partial key... missing keys as no rule fires" rule-table-explosion
// mitigation. An empty Condition always fires (useful for a rule that only
// restates a state check via BlockedSkill).
type Condition struct {
	// ConstructEquals requires proposal.Constructs[name] == label for every
	// entry (Thinking family: e.g. {"TP": "VH"}).
	ConstructEquals map[string]string `yaml:"construct_equals,omitempty"`

	// StateBoolEquals requires state.Bools[field] == want for every entry
	// (Physical/Identity family: e.g. {"elevated": true}).
	StateBoolEquals map[string]bool `yaml:"state_bool_equals,omitempty"`
}

// matches reports whether cond holds against proposal and state. An empty
// Condition always matches.
func (cond Condition) matches(proposal map[string]string, bools map[string]bool) bool {
	for name, label := range cond.ConstructEquals {
		got, ok := proposal[name]
		if !ok || !strings.EqualFold(got, label) {
			return false
		}
	}
	for field, want := range cond.StateBoolEquals {
		if bools[field] != want {
			return false
		}
	}
	return true
}

// GovernanceRule is one named, configured rule in the Physical or Thinking
// family (§6: "Governance rules are referenced by string id; each rule has
// severity, condition, blocked_skill, and a reason template").
type GovernanceRule struct {
	ID                    string   `yaml:"id"`
	Family                Family   `yaml:"family"`
	Priority              int      `yaml:"priority"`
	Severity              Severity `yaml:"severity"`
	Condition             Condition `yaml:"condition"`
	BlockedSkill          string   `yaml:"blocked_skill"`
	Reason                string   `yaml:"reason"`
	SuggestedAlternatives []string `yaml:"suggested_alternatives,omitempty"`
}

// evaluate reports whether r fires against ctx's proposal, and if so, the
// resulting ValidationResult. A rule fires when its Condition matches AND
// (BlockedSkill is empty OR the proposal's skill id equals BlockedSkill) —
// a rule with no BlockedSkill is a pure state/construct check (fires
// whenever the condition holds, regardless of which skill was proposed).
func (r GovernanceRule) evaluate(ctx Context) (ValidationResult, bool) {
	constructs := make(map[string]string, len(ctx.Proposal.Constructs))
	for k, v := range ctx.Proposal.Constructs {
		constructs[k] = string(v)
	}
	if !r.Condition.matches(constructs, ctx.State.Bools) {
		return ValidationResult{}, false
	}
	if r.BlockedSkill != "" && ctx.Proposal.SkillID != r.BlockedSkill {
		return ValidationResult{}, false
	}
	return NewViolation(r.ID, r.Severity, r.Reason, r.SuggestedAlternatives), true
}
