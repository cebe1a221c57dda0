package broker

import (
	"github.com/WenyuChiou/WAGF-sub002/pkg/cache"
	"github.com/WenyuChiou/WAGF-sub002/pkg/llmadapter"
	"github.com/WenyuChiou/WAGF-sub002/pkg/validator"
)

// tryCacheReplay implements the §4.6 cache-hit tie-break: a cache hit is
// re-validated by a lightweight replay of identity (Physical family) rules
// against the *current* agent state. On mismatch the entry is invalidated
// and the caller falls through to the full pipeline; on a clean replay, the
// cached result is reused without a single LLM call.
func (b *Broker) tryCacheReplay(in DecideInput, report *InterventionReport) (InterventionReport, bool) {
	if b.Cache == nil || in.CacheFingerprint == "" {
		return InterventionReport{}, false
	}

	entry, hit := b.Cache.Get(in.CacheFingerprint)
	if !hit {
		return InterventionReport{}, false
	}

	constructs := make(map[string]llmadapter.ConstructLabel, len(entry.Constructs))
	for k, v := range entry.Constructs {
		constructs[k] = llmadapter.ConstructLabel(v)
	}
	replayProposal := llmadapter.SkillProposal{
		AgentID:    in.AgentID,
		SkillID:    entry.ApprovedSkill,
		Reasoning:  entry.Reasoning,
		Constructs: constructs,
	}

	vctx := validator.Context{
		Proposal:           replayProposal,
		State:              in.State,
		SkillRegistry:      b.SkillRegistry,
		AvailableResources: in.AvailableResources,
		NeighborIDs:        in.NeighborIDs,
		SocialBaseline:     in.SocialBaseline,
	}
	results := b.Chain.EvaluateFamily(validator.FamilyPhysical, vctx)
	if validator.HasError(results) {
		b.Cache.Invalidate(in.CacheFingerprint)
		return InterventionReport{}, false
	}

	report.InitialProposal = replayProposal
	report.Attempts = []AttemptRecord{{Attempt: 1, Proposal: replayProposal, ValidationResults: results, CacheReplay: true}}
	report.Outcome = OutcomeApprovedFirst
	report.FinalSkill = entry.ApprovedSkill
	return *report, true
}

// storeCacheEntry caches an approved proposal under in.CacheFingerprint, if
// caching is enabled for this decision.
func (b *Broker) storeCacheEntry(in DecideInput, proposal llmadapter.SkillProposal) {
	if b.Cache == nil || in.CacheFingerprint == "" {
		return
	}
	constructs := make(map[string]string, len(proposal.Constructs))
	for k, v := range proposal.Constructs {
		constructs[k] = string(v)
	}
	b.Cache.Put(in.CacheFingerprint, cache.Entry{
		AgentID:       in.AgentID,
		ApprovedSkill: proposal.SkillID,
		Reasoning:     proposal.Reasoning,
		Constructs:    constructs,
	})
}
