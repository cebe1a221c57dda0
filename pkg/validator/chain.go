package validator

import "sort"

// Chain holds the configured Physical and Thinking governance rules plus
// the always-on Personal/Social/Semantic checks, and evaluates them in the
// fixed family order with stage-level short-circuit semantics (§4.5).
type Chain struct {
	rules map[Family][]GovernanceRule
}

// NewChain creates an empty Chain. Use Register to add governance rules
// loaded from agent_types.yaml's rule references.
func NewChain() *Chain {
	return &Chain{rules: make(map[Family][]GovernanceRule)}
}

// Register adds rule to its family, keeping rules within a family sorted by
// declared priority (§4.5: "within each family, rules fire in declared
// priority order").
func (c *Chain) Register(rule GovernanceRule) {
	c.rules[rule.Family] = append(c.rules[rule.Family], rule)
	sort.SliceStable(c.rules[rule.Family], func(i, j int) bool {
		return c.rules[rule.Family][i].Priority < c.rules[rule.Family][j].Priority
	})
}

// Evaluate runs every family in fixed order (Physical → Thinking → Personal
// → Social → Semantic). Within a family, rules fire in priority order.
// WARNINGs are always collected; the first ERROR anywhere aborts all
// remaining rules and all remaining families for this attempt (§4.5's
// stage short-circuit).
func (c *Chain) Evaluate(ctx Context) []ValidationResult {
	var results []ValidationResult

	for _, family := range FamilyOrder {
		for _, rule := range c.rules[family] {
			result, fired := rule.evaluate(ctx)
			if !fired {
				continue
			}
			results = append(results, result)
			if result.Severity == SeverityError {
				return results
			}
		}

		if builtin, fired := evaluateBuiltin(family, ctx); fired {
			results = append(results, builtin)
			if builtin.Severity == SeverityError {
				return results
			}
		}
	}

	return results
}

// evaluateBuiltin runs the family's always-on intrinsic check, if any.
// Physical and Thinking have no intrinsic check — they are entirely
// governance-rule-driven (loaded from config); Personal, Social, and
// Semantic always run their built-in feasibility/alignment/grounding check
// in addition to any configured rules in that family.
func evaluateBuiltin(family Family, ctx Context) (ValidationResult, bool) {
	switch family {
	case FamilyPersonal:
		return personalFeasibility(ctx)
	case FamilySocial:
		return socialAlignment(ctx)
	case FamilySemantic:
		return semanticGrounding(ctx)
	default:
		return ValidationResult{}, false
	}
}

// EvaluateFamily runs only the rules (configured + built-in) for one family,
// short-circuiting on the first ERROR within it. Used by the efficiency
// cache's hit-replay path (§4.6): a cache hit is re-validated by a
// lightweight replay of identity rules (Physical family) against the
// current agent state, not the full chain.
func (c *Chain) EvaluateFamily(family Family, ctx Context) []ValidationResult {
	var results []ValidationResult
	for _, rule := range c.rules[family] {
		result, fired := rule.evaluate(ctx)
		if !fired {
			continue
		}
		results = append(results, result)
		if result.Severity == SeverityError {
			return results
		}
	}
	if builtin, fired := evaluateBuiltin(family, ctx); fired {
		results = append(results, builtin)
	}
	return results
}

// FirstError returns the first ERROR-severity result in results, or
// (ValidationResult{}, false) if none fired.
func FirstError(results []ValidationResult) (ValidationResult, bool) {
	for _, r := range results {
		if r.Severity == SeverityError {
			return r, true
		}
	}
	return ValidationResult{}, false
}

// HasError reports whether any result in results is ERROR severity.
func HasError(results []ValidationResult) bool {
	_, ok := FirstError(results)
	return ok
}
