// Package validator implements the Validator Chain (SPEC_FULL.md §4.5): five
// fixed-order families of pure rule functions that check a SkillProposal
// against physical, institutional, and behavioral-theory constraints before
// it is permitted to mutate simulation state.
package validator

import (
	"github.com/WenyuChiou/WAGF-sub002/pkg/llmadapter"
	"github.com/WenyuChiou/WAGF-sub002/pkg/skill"
)

// Severity is a ValidationResult's severity tier.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// ValidationResult is one rule's verdict (§3). Invariant:
// valid == (severity != ERROR), enforced by the constructors below — there
// is no exported way to build a ValidationResult that violates it.
type ValidationResult struct {
	RuleID                string
	Severity              Severity
	Valid                 bool
	Reason                string
	SuggestedAlternatives []string
}

// NewViolation builds a firing (invalid) result for severity sev.
func NewViolation(ruleID string, sev Severity, reason string, alternatives []string) ValidationResult {
	return ValidationResult{
		RuleID:                ruleID,
		Severity:              sev,
		Valid:                 sev != SeverityError,
		Reason:                reason,
		SuggestedAlternatives: alternatives,
	}
}

// Family is one of the five fixed validator families, evaluated in the
// documented order.
type Family string

const (
	FamilyPhysical Family = "physical"
	FamilyThinking Family = "thinking"
	FamilyPersonal Family = "personal"
	FamilySocial   Family = "social"
	FamilySemantic Family = "semantic"
)

// FamilyOrder is the fixed evaluation order (§4.5).
var FamilyOrder = []Family{FamilyPhysical, FamilyThinking, FamilyPersonal, FamilySocial, FamilySemantic}

// Context is everything a rule needs to evaluate one proposal. The broker
// constructs one Context per attempt from the current agent state snapshot;
// rules never mutate it.
type Context struct {
	Proposal      llmadapter.SkillProposal
	State         skill.StateSnapshot
	SkillRegistry *skill.Registry

	// AvailableResources is the agent's current resource balances, keyed by
	// the same ResourceField a Skill.Cost references (Personal family).
	AvailableResources map[string]float64

	// NeighborIDs is the set of neighbor agent ids this agent can actually
	// observe, used by the Semantic family to catch reasoning that cites
	// neighbors the agent doesn't have.
	NeighborIDs []string

	// SocialBaseline carries observable neighborhood aggregates the Social
	// family compares the proposal against (e.g. "fraction of neighbors who
	// elevated"), keyed by metric name.
	SocialBaseline map[string]float64
}
