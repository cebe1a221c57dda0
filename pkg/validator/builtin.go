package validator

import (
	"fmt"
	"strings"
)

// personalFeasibility is the Personal family's always-on check (§4.5):
// proposed cost must not exceed available resources. It fires (as an ERROR)
// only when the proposed skill's cost is known and exceeds the agent's
// current balance for that resource.
func personalFeasibility(ctx Context) (ValidationResult, bool) {
	if ctx.SkillRegistry == nil {
		return ValidationResult{}, false
	}
	sk, ok := ctx.SkillRegistry.Lookup(ctx.Proposal.SkillID)
	if !ok || sk.Cost.ResourceField == "" || sk.Cost.Amount <= 0 {
		return ValidationResult{}, false
	}
	available := ctx.AvailableResources[sk.Cost.ResourceField]
	if available >= sk.Cost.Amount {
		return ValidationResult{}, false
	}
	reason := fmt.Sprintf("insufficient %s: need %.2f, have %.2f", sk.Cost.ResourceField, sk.Cost.Amount, available)
	return NewViolation("personal_resource_feasibility", SeverityError, reason, nil), true
}

// socialAlignment is the Social family's always-on check (§4.5): it is
// WARNING-only — the proposal may diverge sharply from observable
// neighborhood behavior without being blocked, but the divergence is
// flagged for audit.
func socialAlignment(ctx Context) (ValidationResult, bool) {
	rate, ok := ctx.SocialBaseline["elevation_rate"]
	if !ok {
		return ValidationResult{}, false
	}
	if rate < 0.5 || ctx.Proposal.SkillID != "do_nothing" {
		return ValidationResult{}, false
	}
	reason := fmt.Sprintf("proposed do_nothing while %.0f%% of observed neighbors have elevated", rate*100)
	return NewViolation("social_majority_divergence", SeverityWarning, reason, nil), true
}

// semanticGrounding is the Semantic family's always-on check (§4.5): it
// catches reasoning text that cites neighbors when the agent has none to
// observe, a common small-model hallucination.
func semanticGrounding(ctx Context) (ValidationResult, bool) {
	if len(ctx.NeighborIDs) > 0 {
		return ValidationResult{}, false
	}
	if !mentionsNeighbors(ctx.Proposal.Reasoning) {
		return ValidationResult{}, false
	}
	reason := "reasoning references neighbors but the agent has none in the current simulation state"
	return NewViolation("semantic_neighbor_grounding", SeverityWarning, reason, nil), true
}

func mentionsNeighbors(reasoning string) bool {
	return strings.Contains(strings.ToLower(reasoning), "neighbor") ||
		strings.Contains(strings.ToLower(reasoning), "neighbour")
}
