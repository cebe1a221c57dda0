// Package broker implements the Skill Broker Engine (SPEC_FULL.md §4.6): the
// deterministic, auditable state machine that takes a raw LLM proposal
// through parse -> validate -> (retry | approve | fallback), emitting
// exactly one Intervention Report per (agent, year) decision. Its control
// flow mirrors a fixed-attempt orchestration retry loop (a pipeline with
// per-step result records), generalized to a governed decision rather
// than a multi-agent workflow step.
package broker

import (
	"time"

	"github.com/WenyuChiou/WAGF-sub002/pkg/agenttype"
	"github.com/WenyuChiou/WAGF-sub002/pkg/contextbuilder"
	"github.com/WenyuChiou/WAGF-sub002/pkg/llmadapter"
	"github.com/WenyuChiou/WAGF-sub002/pkg/validator"
)

// Outcome is an Intervention Report's terminal classification (§3).
type Outcome string

const (
	OutcomeApprovedFirst    Outcome = "APPROVED_FIRST"
	OutcomeApprovedRetry    Outcome = "APPROVED_RETRY"
	OutcomeRejectedFallback Outcome = "REJECTED_FALLBACK"
	// OutcomeUnparseable is enumerated by §3 but, per the worked scenarios
	// (S3), retry exhaustion after an unparseable reply always resolves to
	// OutcomeRejectedFallback once the fallback skill is substituted — it is
	// kept here only so callers pattern-matching on Outcome compile against
	// the documented set; Decide never returns it (see DESIGN.md).
	OutcomeUnparseable Outcome = "UNPARSEABLE"
)

// AttemptRecord is one (attempt #, proposal, validation results) tuple in
// an Intervention Report's history.
type AttemptRecord struct {
	Attempt           int
	Prompt            string
	Proposal          llmadapter.SkillProposal
	ValidationResults []validator.ValidationResult
	CacheReplay       bool
}

// InterventionReport is the per-decision audit record (§3).
type InterventionReport struct {
	AgentID         string
	AgentType       string
	Year            int64
	InitialProposal llmadapter.SkillProposal
	Attempts        []AttemptRecord
	Outcome         Outcome
	FinalSkill      string
	ElapsedWallTime time.Duration
	PromptTokens    int
	CompletionTokens int
}

// ToLLMAdapterConfig adapts an agenttype.AgentType's parsing hints into the
// llmadapter.ParsingConfig shape the Model Adapter consumes, so callers can
// load parsing config straight from an agent type and hand it to the
// Broker without duplicating field names.
func ToLLMAdapterConfig(p agenttype.ParsingConfig) llmadapter.ParsingConfig {
	return llmadapter.ParsingConfig{
		DecisionKeywords: p.DecisionKeywords,
		Synonyms:         p.Synonyms,
		AliasMap:         p.AliasMap,
		Normalization:    p.Normalization,
		ProximityWindow:  p.ProximityWindow,
	}
}

// PromptFunc builds the prompt for one attempt. replay is nil on the first
// attempt and non-nil on every REPROMPT, carrying the violated rule(s) and
// remaining valid skills the Context Builder must render declaratively
// (§4.6). Implementations typically wrap a contextbuilder.Builder.
type PromptFunc func(attempt int, replay *contextbuilder.ReplayBanner) (prompt string, skillsInOrder []string, err error)
