package broker

import (
	"context"
	"fmt"

	"github.com/WenyuChiou/WAGF-sub002/pkg/cache"
	"github.com/WenyuChiou/WAGF-sub002/pkg/contextbuilder"
	"github.com/WenyuChiou/WAGF-sub002/pkg/llmadapter"
	"github.com/WenyuChiou/WAGF-sub002/pkg/skill"
	"github.com/WenyuChiou/WAGF-sub002/pkg/validator"
)

// DefaultMaxAttempts is the mandated default: initial attempt plus two
// retries (§4.6).
const DefaultMaxAttempts = 3

// Broker orchestrates one agent's per-year decision. It holds no
// per-decision state; everything it needs arrives via DecideInput, and its
// only persistent state is the optional efficiency cache (§3: "the Broker
// owns no persistent state except its audit sink and optional cache").
type Broker struct {
	Adapter       *llmadapter.Adapter
	Chain         *validator.Chain
	SkillRegistry *skill.Registry
	Cache         *cache.Cache // nil disables caching
}

// New constructs a Broker. cache may be nil to disable the efficiency
// cache entirely.
func New(adapter *llmadapter.Adapter, chain *validator.Chain, skillRegistry *skill.Registry, c *cache.Cache) *Broker {
	return &Broker{Adapter: adapter, Chain: chain, SkillRegistry: skillRegistry, Cache: c}
}

// DecideInput is everything one (agent, year) decision needs.
type DecideInput struct {
	AgentID        string
	AgentType      string
	Year           int64
	State          skill.StateSnapshot
	ParsingConfig  llmadapter.ParsingConfig
	BuildPrompt    PromptFunc
	MaxAttempts    int // 0 -> DefaultMaxAttempts
	FallbackSkill  string

	AvailableResources map[string]float64
	NeighborIDs        []string
	SocialBaseline     map[string]float64

	// CacheFingerprint, if non-empty, enables the efficiency cache for this
	// decision (§4.6's cache-hit replay tie-break).
	CacheFingerprint string
}

// Decide runs the full INIT -> PARSED -> VALIDATING -> {APPROVED | REPROMPT
// | FALLBACK} -> DONE state machine for one (agent, year) and returns
// exactly one InterventionReport (P1).
func (b *Broker) Decide(ctx context.Context, in DecideInput) (InterventionReport, error) {
	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	report := InterventionReport{AgentID: in.AgentID, AgentType: in.AgentType, Year: in.Year}

	// Tie-break: if every non-fallback skill is currently blocked by
	// eligibility (preconditions/one-time flags), the only thing the agent
	// can legally propose is the fallback itself, so the decision resolves
	// straight to the fallback skill (REJECTED_FALLBACK) without invoking
	// the LLM and without recording any attempts (§4.6 tie-break).
	if b.SkillRegistry != nil {
		eligible := b.SkillRegistry.EligibleFor(in.AgentType, in.State)
		if len(eligible) <= 1 && (len(eligible) == 0 || eligible[0] == in.FallbackSkill) {
			report.Outcome = OutcomeRejectedFallback
			report.FinalSkill = in.FallbackSkill
			return report, nil
		}
	}

	if replayed, ok := b.tryCacheReplay(in, &report); ok {
		return replayed, nil
	}

	var replay *contextbuilder.ReplayBanner
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		prompt, skillsInOrder, err := in.BuildPrompt(attempt, replay)
		if err != nil {
			return InterventionReport{}, fmt.Errorf("broker: building prompt for attempt %d: %w", attempt, err)
		}

		result := b.Adapter.Propose(ctx, in.AgentID, prompt, in.ParsingConfig, skillsInOrder)
		report.PromptTokens += result.Tokens.Prompt
		report.CompletionTokens += result.Tokens.Completion
		if attempt == 1 {
			report.InitialProposal = result.Proposal
		}

		if result.Proposal.Unparseable {
			record := AttemptRecord{Attempt: attempt, Prompt: prompt, Proposal: result.Proposal}
			report.Attempts = append(report.Attempts, record)

			if attempt == maxAttempts {
				report.Outcome = OutcomeRejectedFallback
				report.FinalSkill = in.FallbackSkill
				return report, nil
			}
			replay = &contextbuilder.ReplayBanner{ParseFailure: true}
			continue
		}

		vctx := validator.Context{
			Proposal:           result.Proposal,
			State:              in.State,
			SkillRegistry:      b.SkillRegistry,
			AvailableResources: in.AvailableResources,
			NeighborIDs:        in.NeighborIDs,
			SocialBaseline:     in.SocialBaseline,
		}
		results := b.Chain.Evaluate(vctx)
		record := AttemptRecord{Attempt: attempt, Prompt: prompt, Proposal: result.Proposal, ValidationResults: results}
		report.Attempts = append(report.Attempts, record)

		if !validator.HasError(results) {
			report.FinalSkill = result.Proposal.SkillID
			if attempt == 1 {
				report.Outcome = OutcomeApprovedFirst
			} else {
				report.Outcome = OutcomeApprovedRetry
			}
			b.storeCacheEntry(in, result.Proposal)
			return report, nil
		}

		if attempt == maxAttempts {
			report.Outcome = OutcomeRejectedFallback
			report.FinalSkill = in.FallbackSkill
			return report, nil
		}

		errResult, _ := validator.FirstError(results)
		remaining := remainingValidSkills(b.SkillRegistry, in.AgentType, in.State, result.Proposal.SkillID)
		replay = &contextbuilder.ReplayBanner{
			ViolatedRules:        []string{errResult.RuleID},
			RemainingValidSkills: remaining,
		}
	}

	// Unreachable: the loop above always returns by maxAttempts.
	report.Outcome = OutcomeRejectedFallback
	report.FinalSkill = in.FallbackSkill
	return report, nil
}

func remainingValidSkills(reg *skill.Registry, agentType string, state skill.StateSnapshot, rejected string) []string {
	if reg == nil {
		return nil
	}
	all := reg.EligibleFor(agentType, state)
	out := make([]string, 0, len(all))
	for _, id := range all {
		if id != rejected {
			out = append(out, id)
		}
	}
	return out
}
