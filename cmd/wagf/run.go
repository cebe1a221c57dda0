package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/WenyuChiou/WAGF-sub002/pkg/agenttype"
	"github.com/WenyuChiou/WAGF-sub002/pkg/audit"
	"github.com/WenyuChiou/WAGF-sub002/pkg/broker"
	"github.com/WenyuChiou/WAGF-sub002/pkg/cache"
	"github.com/WenyuChiou/WAGF-sub002/pkg/config"
	"github.com/WenyuChiou/WAGF-sub002/pkg/contextbuilder"
	"github.com/WenyuChiou/WAGF-sub002/pkg/llmadapter"
	"github.com/WenyuChiou/WAGF-sub002/pkg/memory"
	"github.com/WenyuChiou/WAGF-sub002/pkg/memory/vectorboost"
	"github.com/WenyuChiou/WAGF-sub002/pkg/reflection"
	"github.com/WenyuChiou/WAGF-sub002/pkg/runner"
	"github.com/WenyuChiou/WAGF-sub002/pkg/simulation"
	"github.com/WenyuChiou/WAGF-sub002/pkg/simulation/memsim"
	"github.com/WenyuChiou/WAGF-sub002/pkg/validator"
)

// RunCmd drives one experiment: Years x Agents over a synthetic population
// (memsim.Engine), standing up a runnable instance from config plus CLI
// flags. WAGF's core never embeds a concrete LLM provider SDK (§1), so
// --model only labels the tokenizer and audit trail; decisions come from
// a deterministic stub invoker that always proposes --stub-skill, standing
// in for a real provider during demo runs and tests.
type RunCmd struct {
	SkillRegistry  string `arg:"" name:"skill-registry" help:"Path to skill_registry.yaml." type:"path"`
	AgentTypes     string `arg:"" name:"agent-types" help:"Path to agent_types.yaml." type:"path"`
	Output         string `help:"Output directory for audit files." default:"./wagf-run" type:"path"`
	Years          int64  `help:"Number of simulated years." default:"10"`
	Agents         int    `help:"Number of synthetic demo agents per agent type." default:"5"`
	Seed           int64  `help:"Deterministic seed for shuffles and agent ordering." default:"1"`
	MemoryEngine   string `name:"memory-engine" help:"Override global_config.memory.kind (window, importance, humancentric)."`
	GovernanceMode string `name:"governance-mode" help:"Override global_config.governance_mode (disabled, strict)."`
	Workers        int    `help:"Worker pool size for the per-agent decision step (<=1 is sequential)." default:"1"`
	Model          string `help:"Model name label for the tokenizer and audit trail." default:"gpt-4"`
	TokenBudget    int    `name:"token-budget" help:"Total token budget for the rendered prompt." default:"4000"`
	MemoryTopK     int    `name:"memory-top-k" help:"Total memory items retrieved per decision." default:"5"`
	StubSkill      string `name:"stub-skill" help:"Skill id the demo stub invoker always proposes (default: the skill registry's default_skill)."`
	VectorBoost    bool   `name:"vector-boost" help:"Replace stratified memory retrieval with chromem-go embedding-similarity boosting (§4.2's optional long-term tier)."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx := context.Background()

	skillRegistry, err := config.LoadSkillRegistryFile(c.SkillRegistry)
	if err != nil {
		return fmt.Errorf("wagf: loading skill registry: %w", err)
	}

	atFile, err := config.LoadAgentTypesFile(c.AgentTypes)
	if err != nil {
		return fmt.Errorf("wagf: loading agent types: %w", err)
	}

	governanceMode := atFile.GlobalConfig.GovernanceMode
	if c.GovernanceMode != "" {
		governanceMode = c.GovernanceMode
	}

	memCfg := atFile.GlobalConfig.Memory
	if c.MemoryEngine != "" {
		memCfg.Kind = memory.Kind(c.MemoryEngine)
	}
	memEngine, err := memory.New(memCfg)
	if err != nil {
		return fmt.Errorf("wagf: constructing memory engine: %w", err)
	}

	agentTypeRegistry := agenttype.NewRegistry()
	types := make([]agenttype.AgentType, 0, len(atFile.AgentTypes))
	for _, at := range atFile.AgentTypes {
		types = append(types, at)
	}
	if err := agentTypeRegistry.Load(types); err != nil {
		return fmt.Errorf("wagf: loading agent type registry: %w", err)
	}

	stubSkill := c.StubSkill
	if stubSkill == "" {
		stubSkill = skillRegistry.DefaultSkill()
	}
	invoker := llmadapter.NewStubInvoker(stubSkill, nil)
	adapter := llmadapter.NewAdapter(invoker, c.Model)

	// Broker.Chain is one chain for the whole run (pkg/broker.Broker has a
	// single Chain field); a multi-agent-type experiment gets the union of
	// every declared governance rule rather than a per-type chain.
	chain := unionChain(atFile)

	brokerCache := cache.New()
	b := broker.New(adapter, chain, skillRegistry, brokerCache)

	builder := contextbuilder.NewBuilder(c.Model)
	budget := contextbuilder.DefaultTokenBudget(c.TokenBudget)
	if err := budget.Validate(); err != nil {
		return fmt.Errorf("wagf: %w", err)
	}

	reflectionEngine := reflection.NewEngine(nil)

	sink, err := audit.New(c.Output)
	if err != nil {
		return fmt.Errorf("wagf: creating audit sink: %w", err)
	}
	if err := sink.WriteConfigSnapshot(map[string]interface{}{
		"years":           c.Years,
		"seed":            c.Seed,
		"governance_mode": governanceMode,
		"memory_engine":   memCfg.Kind,
		"model":           c.Model,
		"workers":         c.Workers,
		"vector_boost":    c.VectorBoost,
	}); err != nil {
		return fmt.Errorf("wagf: writing config snapshot: %w", err)
	}

	engine := buildDemoPopulation(atFile, c.Agents, c.Years, c.Seed)

	var vb *vectorboost.Booster
	if c.VectorBoost {
		vb = vectorboost.New()
	}

	r := &runner.Runner{
		Sim:           engine,
		Broker:        b,
		MemoryEngine:  memEngine,
		Builder:       builder,
		AgentTypes:    agentTypeRegistry,
		SkillRegistry: skillRegistry,
		Reflection:    reflectionEngine,
		Invoker:       invoker,
		Audit:         sink,
		Hooks:         runner.NoopHooks{},
		ContextSource: runner.GenericContextSource{},
		VectorBoost:   vb,
		Config: runner.Config{
			Years:          c.Years,
			Seed:           c.Seed,
			Workers:        c.Workers,
			MaxAttempts:    atFile.GlobalConfig.MaxAttempts,
			GovernanceMode: governanceMode,
			MemoryTopK:     c.MemoryTopK,
			Budget:         budget,
			ModelName:      c.Model,
		},
	}

	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("wagf: run failed: %w", err)
	}

	summary := sink.CurrentSummary()
	fmt.Printf("run complete: %d decisions across %d years, %d LLM invocations, %d cache hits, %d effect errors\n",
		summary.TotalDecisions, c.Years, summary.TotalLLMCalls, summary.CacheHits, summary.EffectErrors)
	fmt.Printf("outcomes: %v\n", summary.OutcomeCounts)
	fmt.Printf("audit written to %s\n", c.Output)
	return nil
}

// unionChain registers every governance rule declared in the document,
// regardless of which agent type references it, in sorted rule-id order.
func unionChain(atFile *config.AgentTypesFile) *validator.Chain {
	chain := validator.NewChain()
	ids := make([]string, 0, len(atFile.GovernanceRules))
	for id := range atFile.GovernanceRules {
		ids = append(ids, id)
	}
	sortStrings(ids)
	for _, id := range ids {
		chain.Register(atFile.GovernanceRules[id])
	}
	return chain
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// buildDemoPopulation synthesizes agentsPerType memsim agents for every
// configured agent type, since WAGF's core never embeds a concrete
// population source (§1) — a real deployment supplies its own
// simulation.Engine instead of this demo one.
func buildDemoPopulation(atFile *config.AgentTypesFile, agentsPerType int, years, seed int64) *memsim.Engine {
	rng := rand.New(rand.NewSource(seed))
	var agents []*memsim.Agent
	typeIDs := make([]string, 0, len(atFile.AgentTypes))
	for id := range atFile.AgentTypes {
		typeIDs = append(typeIDs, id)
	}
	sortStrings(typeIDs)
	for _, typeID := range typeIDs {
		for i := 0; i < agentsPerType; i++ {
			id := fmt.Sprintf("%s-%03d", typeID, i)
			bools := map[string]bool{"active": true}
			nums := map[string]float64{"wealth": 50 + rng.Float64()*50}
			resources := map[string]float64{"budget": 100 + rng.Float64()*100}
			agents = append(agents, memsim.NewAgent(id, typeID, bools, nums, resources))
		}
	}
	engine := memsim.NewEngine(agents)
	for y := int64(1); y <= years; y++ {
		engine.SetYearEnvironment(y, simulation.EnvironmentalState{
			Year:   y,
			Global: map[string]string{"year": fmt.Sprintf("%d", y)},
		})
	}
	return engine
}
