// Package runner implements the Experiment Runner (SPEC_FULL.md §4.8, §5):
// a single pass over years x agents that invokes the broker, stages and
// applies approved effects, triggers reflection, and writes audit files.
// Ordering, staging, and the optional worker pool follow §5's concurrency
// model: agents are visited in a seeded deterministic order, effects are
// staged and applied at end-of-step so no agent observes another agent's
// same-year decision, and only the LLM call itself may run in parallel.
package runner

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/WenyuChiou/WAGF-sub002/pkg/agenttype"
	"github.com/WenyuChiou/WAGF-sub002/pkg/audit"
	"github.com/WenyuChiou/WAGF-sub002/pkg/broker"
	"github.com/WenyuChiou/WAGF-sub002/pkg/contextbuilder"
	"github.com/WenyuChiou/WAGF-sub002/pkg/llmadapter"
	"github.com/WenyuChiou/WAGF-sub002/pkg/logger"
	"github.com/WenyuChiou/WAGF-sub002/pkg/memory"
	"github.com/WenyuChiou/WAGF-sub002/pkg/memory/vectorboost"
	"github.com/WenyuChiou/WAGF-sub002/pkg/reflection"
	"github.com/WenyuChiou/WAGF-sub002/pkg/simulation"
	"github.com/WenyuChiou/WAGF-sub002/pkg/skill"
	"github.com/WenyuChiou/WAGF-sub002/pkg/validator"
)

// Hooks exposes the four extension points of §4.8: pre_year (environmental
// update, memory injection), post_step (per-agent decision logging, social
// propagation), post_year (batch reflection, year-end aggregates), and
// finalize (flush audit files). A domain wires its own behavior here; the
// core runner calls these unconditionally and never inspects their effect.
type Hooks interface {
	PreYear(ctx context.Context, year int64, env simulation.EnvironmentalState) error
	PostStep(ctx context.Context, year int64, agent simulation.Agent, report broker.InterventionReport) error
	PostYear(ctx context.Context, year int64) error
	Finalize(ctx context.Context) error
}

// NoopHooks implements Hooks with no-ops, useful as an embeddable base for
// a domain that only needs one or two of the four extension points.
type NoopHooks struct{}

func (NoopHooks) PreYear(context.Context, int64, simulation.EnvironmentalState) error { return nil }
func (NoopHooks) PostStep(context.Context, int64, simulation.Agent, broker.InterventionReport) error {
	return nil
}
func (NoopHooks) PostYear(context.Context, int64) error { return nil }
func (NoopHooks) Finalize(context.Context) error        { return nil }

// ContextSource supplies the domain-specific rendering for the Context
// Builder stages the core cannot know generically (agent attributes,
// environmental perception, events, metrics, social observation). The
// runner drives stages (7)-(9) itself from the Memory Engine, Skill
// Registry, and the agent type's response format.
type ContextSource interface {
	Attributes(agent simulation.Agent) contextbuilder.AgentAttributes
	Environment(agent simulation.Agent, env simulation.EnvironmentalState) contextbuilder.EnvironmentalPerception
	Events(agent simulation.Agent, env simulation.EnvironmentalState) []contextbuilder.Event
	Metrics(agent simulation.Agent) []contextbuilder.ObservableMetric
	Social(agent simulation.Agent, population []simulation.Agent) contextbuilder.SocialObservation
	Constructs(agentType agenttype.AgentType) []contextbuilder.ConstructAnchor
	SystemPrompt(agentType agenttype.AgentType) string
}

// Config carries the CLI-facing experiment parameters (§6).
type Config struct {
	Years          int64
	Seed           int64
	Workers        int // 0 or 1 -> sequential
	MaxAttempts    int
	GovernanceMode string // "disabled" bypasses the validator chain entirely
	MemoryTopK     int
	Budget         contextbuilder.TokenBudget
	ModelName      string
}

// Runner is the Experiment Runner: iterates years x agents, invokes the
// broker, applies approved effects, triggers reflection, and writes audit
// files (§4.8).
type Runner struct {
	Sim            simulation.Engine
	Broker         *broker.Broker
	MemoryEngine   memory.Engine
	Builder        *contextbuilder.Builder
	AgentTypes     *agenttype.Registry
	SkillRegistry  *skill.Registry
	Reflection     *reflection.Engine
	Invoker        llmadapter.Invoker
	Audit          *audit.Sink
	Hooks          Hooks
	ContextSource  ContextSource
	Config         Config

	// VectorBoost, if non-nil, switches memory retrieval from the default
	// stratified allocation to HumanCentric's flat Retrieve with a
	// contextual_boost term computed from embedding similarity (§4.2's
	// optional embedding-boosted long-term tier) instead of an exact
	// tag_key:tag_value match. Opt-in via --vector-boost; nil (the default)
	// keeps the spec's stratified-by-default retrieval.
	VectorBoost *vectorboost.Booster
}

// Run executes the single pass of §4.8: for year in 1..Y, pre_year, decide
// for every active agent, stage and apply effects, post_step, post_year,
// then finalize. Run returns the first non-recoverable error encountered
// (simulation, broker, hook, reflection or audit-write failures). Effect
// errors are logged and counted in the audit summary, and the run goes on
// with the other agents; recoverable errors are absorbed into the broker's
// own retry/fallback handling and never propagate here.
func (r *Runner) Run(ctx context.Context) error {
	log := logger.GetLogger()

	for year := int64(1); year <= r.Config.Years; year++ {
		env, err := r.Sim.AdvanceYear(ctx)
		if err != nil {
			return fmt.Errorf("runner: advancing to year %d: %w", year, err)
		}
		r.MemoryEngine.Advance(year)

		if err := r.Hooks.PreYear(ctx, year, env); err != nil {
			return fmt.Errorf("runner: pre_year hook (year %d): %w", year, err)
		}

		agents := activeAgents(r.Sim.Agents())
		ordered := seededAgentOrder(agents, r.Config.Seed, year)

		decisions, err := r.decideAll(ctx, ordered, year, env)
		if err != nil {
			return err
		}

		// Staged effect application (§5): side effects from one agent's
		// approved skill are not visible to other agents within the same
		// year. Apply strictly after every decision for the year is made.
		for _, d := range decisions {
			if err := r.applyEffect(ctx, d); err != nil {
				log.Error("effect error", "agent_id", d.agent.ID(), "year", year, "skill", d.report.FinalSkill, "error", err)
				r.Audit.NoteEffectError()
			}
		}

		for _, d := range decisions {
			logDecision(log, d, year)

			if err := r.Audit.WriteDecision(d.report, d.cost, d.stateDigest); err != nil {
				return fmt.Errorf("runner: writing simulation_log (agent %s, year %d): %w", d.agent.ID(), year, err)
			}
			if err := r.Audit.WriteGovernanceAudit(d.report); err != nil {
				return fmt.Errorf("runner: writing governance_audit (agent %s, year %d): %w", d.agent.ID(), year, err)
			}
			if err := r.Audit.TraceRecordsFromReport(d.agent.AgentType(), d.report); err != nil {
				return fmt.Errorf("runner: writing trace (agent %s, year %d): %w", d.agent.ID(), year, err)
			}
			if err := r.Hooks.PostStep(ctx, year, d.agent, d.report); err != nil {
				return fmt.Errorf("runner: post_step hook (agent %s, year %d): %w", d.agent.ID(), year, err)
			}
		}

		if r.Reflection != nil {
			if err := r.runReflection(ctx, ordered, year); err != nil {
				return fmt.Errorf("runner: reflection (year %d): %w", year, err)
			}
		}

		if err := r.Hooks.PostYear(ctx, year); err != nil {
			return fmt.Errorf("runner: post_year hook (year %d): %w", year, err)
		}
	}

	if err := r.Hooks.Finalize(ctx); err != nil {
		return fmt.Errorf("runner: finalize hook: %w", err)
	}
	return r.Audit.Finalize()
}

// decision bundles one agent's InterventionReport with the data the
// runner needs after the decide phase to stage its effect and audit it.
type decision struct {
	agent       simulation.Agent
	report      broker.InterventionReport
	cost        float64
	stateDigest string
}

// decideAll runs the broker for every agent in order, either sequentially
// or across a bounded worker pool (§5: parallelism is permitted for the
// per-agent decision step only, because the LLM call is the only genuine
// suspension point; everything else here is compute-bound).
func (r *Runner) decideAll(ctx context.Context, agents []simulation.Agent, year int64, env simulation.EnvironmentalState) ([]decision, error) {
	out := make([]decision, len(agents))

	workers := r.Config.Workers
	if workers <= 1 {
		for i, agent := range agents {
			d, err := r.decideOne(ctx, agent, year, env)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var mu sync.Mutex
	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			d, err := r.decideOne(gctx, agent, year, env)
			if err != nil {
				return err
			}
			mu.Lock()
			out[i] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) decideOne(ctx context.Context, agent simulation.Agent, year int64, env simulation.EnvironmentalState) (decision, error) {
	at, ok := r.AgentTypes.Lookup(agent.AgentType())
	if !ok {
		return decision{}, fmt.Errorf("runner: agent %s has unknown agent type %q", agent.ID(), agent.AgentType())
	}

	state := agent.StateSnapshot()
	stateDigest := audit.StateDigest(fmt.Sprintf("%+v", state))

	maxAttempts := r.Config.MaxAttempts
	if at.Parsing.MaxRetries > 0 {
		maxAttempts = at.Parsing.MaxRetries + 1
	}

	chain := r.Broker.Chain
	if r.Config.GovernanceMode == "disabled" {
		// An empty chain still runs the Personal/Social/Semantic built-in
		// checks (Chain.Evaluate always consults them); governance_mode
		// only gates the configured Physical/Thinking rule set.
		chain = validator.NewChain()
	}

	buildPrompt := r.promptFunc(ctx, agent, at, year, env, state)

	in := broker.DecideInput{
		AgentID:            agent.ID(),
		AgentType:          agent.AgentType(),
		Year:               year,
		State:              state,
		ParsingConfig:      broker.ToLLMAdapterConfig(at.Parsing),
		BuildPrompt:        buildPrompt,
		MaxAttempts:        maxAttempts,
		FallbackSkill:      at.FallbackSkill,
		AvailableResources: agent.AvailableResources(),
	}

	b := r.Broker
	if r.Config.GovernanceMode == "disabled" {
		b = broker.New(r.Broker.Adapter, chain, r.Broker.SkillRegistry, r.Broker.Cache)
	}

	report, err := b.Decide(ctx, in)
	if err != nil {
		return decision{}, fmt.Errorf("runner: deciding for agent %s: %w", agent.ID(), err)
	}
	report.AgentType = agent.AgentType()

	cost := 0.0
	if sk, ok := r.SkillRegistry.Lookup(report.FinalSkill); ok && sk.Cost.ResourceField != "" {
		cost = sk.Cost.Amount
	}

	return decision{agent: agent, report: report, cost: cost, stateDigest: stateDigest}, nil
}

// promptFunc builds the broker.PromptFunc for one agent's decision,
// wiring the Context Builder's nine stages (§4.3) from ContextSource,
// the Memory Engine's stratified (or, with VectorBoost enabled, embedding-
// boosted) retrieval, and the Skill Registry's eligibility listing.
func (r *Runner) promptFunc(ctx context.Context, agent simulation.Agent, at agenttype.AgentType, year int64, env simulation.EnvironmentalState, state skill.StateSnapshot) broker.PromptFunc {
	return func(attempt int, replay *contextbuilder.ReplayBanner) (string, []string, error) {
		eligible := r.SkillRegistry.EligibleFor(agent.AgentType(), state)
		skills := make([]contextbuilder.SkillPresentation, 0, len(eligible))
		for _, id := range eligible {
			desc, err := r.SkillRegistry.Describe(id, "")
			if err != nil {
				return "", nil, err
			}
			skills = append(skills, contextbuilder.SkillPresentation{ID: id, Description: desc})
		}

		memItems, err := r.retrieveMemory(ctx, agent, year)
		if err != nil {
			return "", nil, fmt.Errorf("runner: retrieving memory for agent %s: %w", agent.ID(), err)
		}

		in := contextbuilder.BuildInput{
			SystemPrompt:     r.ContextSource.SystemPrompt(at),
			Attributes:       r.ContextSource.Attributes(agent),
			Environment:      r.ContextSource.Environment(agent, env),
			Events:           r.ContextSource.Events(agent, env),
			Metrics:          r.ContextSource.Metrics(agent),
			Social:           r.ContextSource.Social(agent, r.Sim.Agents()),
			MemoryItems:      memItems,
			Constructs:       r.ContextSource.Constructs(at),
			Skills:           skills,
			ResponseFormat:   at.PromptTemplate,
			Replay:           replay,
			ShuffleSeedAgent: agent.ID(),
			ShuffleSeedYear:  year,
			Budget:           r.Config.Budget,
			ModelName:        r.Config.ModelName,
		}

		output, err := r.Builder.Build(in)
		if err != nil {
			return "", nil, fmt.Errorf("runner: building prompt for agent %s attempt %d: %w", agent.ID(), attempt, err)
		}
		ids := make([]string, 0, len(output.SkillsInOrder))
		for _, s := range output.SkillsInOrder {
			ids = append(ids, s.ID)
		}
		return output.Prompt, ids, nil
	}
}

// retrieveMemory returns the memory block for one decision. With no
// VectorBoost configured it uses the spec's default stratified-by-source
// retrieval (§4.2). With VectorBoost configured it instead indexes the
// agent's most recent decision as a query, scores it against everything
// previously indexed for that agent, and feeds the resulting similarity in
// as the contextual_boost for the personal/reflection source tags on a flat
// Retrieve — trading source diversity for semantic salience, as documented
// in DESIGN.md.
func (r *Runner) retrieveMemory(ctx context.Context, agent simulation.Agent, year int64) ([]string, error) {
	if r.VectorBoost == nil {
		return r.MemoryEngine.RetrieveStratified(agent.ID(), nil, r.Config.MemoryTopK)
	}

	query := vectorBoostQuery(agent, year)
	boosters := map[string]float64{}
	if sim, err := r.VectorBoost.Score(ctx, agent.ID(), query); err == nil && sim > 0 {
		boosters["source:personal"] = sim
		boosters["source:reflection"] = sim
	}
	if err := r.VectorBoost.Index(ctx, agent.ID(), fmt.Sprintf("%d", year), query); err != nil {
		return nil, fmt.Errorf("vector-boost: indexing agent %s: %w", agent.ID(), err)
	}
	return r.MemoryEngine.Retrieve(agent.ID(), r.Config.MemoryTopK, boosters)
}

// vectorBoostQuery renders a deterministic text summary of an agent's
// current decision context, used both to query and to index the
// VectorBoost collection.
func vectorBoostQuery(agent simulation.Agent, year int64) string {
	decisions := agent.RecentDecisions()
	last := ""
	if len(decisions) > 0 {
		last = decisions[len(decisions)-1]
	}
	return fmt.Sprintf("%s year=%d last_decision=%s", agent.AgentType(), year, last)
}

// logDecision emits one structured log line per decision, scoped by
// logger.DecisionLogger to (agent, year, outcome); when the broker's last
// attempt reprompted or fell back on a firing rule, the line is further
// scoped by logger.RuleLogger so the rule and severity that triggered the
// retry are greppable fields instead of free text in d.report.Attempts.
func logDecision(base *slog.Logger, d decision, year int64) {
	dlog := logger.DecisionLogger(base, d.agent.ID(), year, string(d.report.Outcome))

	if n := len(d.report.Attempts); n > 0 {
		for _, vr := range d.report.Attempts[n-1].ValidationResults {
			if !vr.Valid {
				logger.RuleLogger(dlog, vr.RuleID, string(vr.Severity)).Debug("decision", "skill", d.report.FinalSkill)
				return
			}
		}
	}
	dlog.Debug("decision", "skill", d.report.FinalSkill)
}

func (r *Runner) applyEffect(ctx context.Context, d decision) error {
	sk, ok := r.SkillRegistry.Lookup(d.report.FinalSkill)
	if !ok {
		return nil
	}
	eff := simulation.Effect{SkillID: sk.ID, Fields: sk.Effects}
	return r.Sim.ApplyEffect(ctx, d.agent.ID(), eff)
}

// runReflection drives the Reflection Engine's six operations for every
// agent whose ShouldReflect fires this year (§4.7), storing results as
// memory items with source=reflection and dynamic importance.
func (r *Runner) runReflection(ctx context.Context, agents []simulation.Agent, year int64) error {
	var batch []reflection.AgentReflectionContext
	dynamicCtx := make(map[string]reflection.DynamicImportanceContext, len(agents))

	for _, agent := range agents {
		if !r.Reflection.ShouldReflect(agent.ID(), year) {
			continue
		}

		// Derive real per-agent signals generically from the state bag and
		// decision history (the same core-agnostic maps GenericContextSource
		// reads), rather than hardcoding every §4.7 adjustment input to its
		// zero value.
		state := agent.StateSnapshot()
		elevated := state.Bools["elevated"]
		marginalized := state.Bools["marginalized"]
		floodCount := int(state.Nums["flood_count"])

		decisions := agent.RecentDecisions()
		recent := ""
		if len(decisions) > 0 {
			recent = decisions[len(decisions)-1]
		}
		fallback := ""
		if at, ok := r.AgentTypes.Lookup(agent.AgentType()); ok {
			fallback = at.FallbackSkill
		}

		batch = append(batch, reflection.ExtractAgentContext(agent.ID(), agent.AgentType(), "", elevated, floodCount, marginalized, recent, year))
		dynamicCtx[agent.ID()] = reflection.DynamicImportanceContext{
			FirstFloodOrFirstEvent: floodCount == 1,
			RepeatedCount:          floodCount,
			PostMajorAction:        recent != "" && recent != fallback,
			Marginalized:           marginalized,
			StableYearDoNothing:    floodCount == 0 && recent == fallback,
		}
	}
	if len(batch) == 0 {
		return nil
	}

	prompt := r.Reflection.GeneratePersonalizedBatchPrompt(batch, year)
	text, _, err := r.Invoker(ctx, prompt)
	if err != nil {
		logger.GetLogger().Warn("reflection invocation failed", "year", year, "error", err)
		return nil
	}

	ids := make([]string, len(batch))
	for i, ac := range batch {
		ids[i] = ac.AgentID
	}
	insights := reflection.ParseBatchReflectionResponse(text, ids, year)

	for agentID, insight := range insights {
		if insight.Importance == 0 {
			insight.Importance = reflection.ComputeDynamicImportance(dynamicCtx[agentID])
		}
		if err := reflection.StoreInsight(r.MemoryEngine, agentID, insight); err != nil {
			return fmt.Errorf("runner: storing insight for agent %s: %w", agentID, err)
		}
		if err := r.Audit.WriteReflection(agentID, insight); err != nil {
			return fmt.Errorf("runner: writing reflection_log for agent %s: %w", agentID, err)
		}
	}
	return nil
}

func activeAgents(agents []simulation.Agent) []simulation.Agent {
	out := make([]simulation.Agent, 0, len(agents))
	for _, a := range agents {
		if !a.Removed() {
			out = append(out, a)
		}
	}
	return out
}

// seededAgentOrder returns agents permuted by a seeded RNG derived from
// (experiment seed, year), giving a deterministic per-year visit order
// (§5: "agents are visited in a deterministic order given by a seeded
// permutation of agent_id").
func seededAgentOrder(agents []simulation.Agent, seed, year int64) []simulation.Agent {
	sorted := make([]simulation.Agent, len(agents))
	copy(sorted, agents)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	h := fnv.New64a()
	for _, a := range sorted {
		_, _ = h.Write([]byte(a.ID()))
	}
	rngSeed := int64(h.Sum64()) ^ seed ^ year

	rng := rand.New(rand.NewSource(rngSeed))
	rng.Shuffle(len(sorted), func(i, j int) { sorted[i], sorted[j] = sorted[j], sorted[i] })
	return sorted
}
