// Package memsim is a minimal in-memory simulation.Engine/simulation.Agent
// implementation. It is not a domain model (flood hydrology, irrigation
// mass balance, …) — those are explicitly out-of-core external
// collaborators (SPEC_FULL.md §1) — it exists so the runner, the CLI's
// demo mode, and tests can drive the full broker/runner pipeline without a
// real domain engine, the same role a teacher's in-memory store plays in
// its own test suite.
package memsim

import (
	"context"
	"fmt"
	"sync"

	"github.com/WenyuChiou/WAGF-sub002/pkg/simulation"
	"github.com/WenyuChiou/WAGF-sub002/pkg/skill"
)

// Agent is a mutable in-memory agent record.
type Agent struct {
	mu        sync.RWMutex
	id        string
	agentType string
	bools     map[string]bool
	nums      map[string]float64
	resources map[string]float64
	decisions []string
	removed   bool
}

// NewAgent creates an Agent with the given initial bools/nums/resources.
// The maps are copied so the caller's originals are never aliased.
func NewAgent(id, agentType string, bools map[string]bool, nums map[string]float64, resources map[string]float64) *Agent {
	return &Agent{
		id:        id,
		agentType: agentType,
		bools:     cloneBools(bools),
		nums:      cloneNums(nums),
		resources: cloneNums(resources),
	}
}

func (a *Agent) ID() string        { return a.id }
func (a *Agent) AgentType() string { return a.agentType }

func (a *Agent) StateSnapshot() skill.StateSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return skill.StateSnapshot{Bools: cloneBools(a.bools), Nums: cloneNums(a.nums)}
}

func (a *Agent) AvailableResources() map[string]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneNums(a.resources)
}

func (a *Agent) RecentDecisions() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.decisions))
	copy(out, a.decisions)
	return out
}

func (a *Agent) Removed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.removed
}

// Remove flags the agent as having left the live population (e.g.
// relocated), per §3's removal flag.
func (a *Agent) Remove() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removed = true
}

func cloneBools(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneNums(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Engine is the in-memory simulation.Engine. AdvanceYear is a no-op
// returning a caller-seeded EnvironmentalState per year; ApplyEffect
// mutates the named agent's state fields per the skill's declared effects.
type Engine struct {
	mu      sync.Mutex
	year    int64
	agents  map[string]*Agent
	order   []string
	envByYr map[int64]simulation.EnvironmentalState
}

// NewEngine creates an Engine with agents pre-registered in the given
// order (the order the runner's seeded permutation then reshuffles).
func NewEngine(agents []*Agent) *Engine {
	e := &Engine{agents: make(map[string]*Agent, len(agents)), envByYr: make(map[int64]simulation.EnvironmentalState)}
	for _, a := range agents {
		e.agents[a.id] = a
		e.order = append(e.order, a.id)
	}
	return e
}

// SetYearEnvironment registers the EnvironmentalState AdvanceYear returns
// for a given year; years without a registered state get a zero-value one.
func (e *Engine) SetYearEnvironment(year int64, env simulation.EnvironmentalState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envByYr[year] = env
}

func (e *Engine) AdvanceYear(_ context.Context) (simulation.EnvironmentalState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.year++
	env, ok := e.envByYr[e.year]
	if !ok {
		env = simulation.EnvironmentalState{Year: e.year}
	}
	env.Year = e.year
	return env, nil
}

func (e *Engine) ApplyEffect(_ context.Context, agentID string, effect simulation.Effect) error {
	e.mu.Lock()
	agent, ok := e.agents[agentID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("memsim: unknown agent %q", agentID)
	}

	agent.mu.Lock()
	defer agent.mu.Unlock()
	agent.decisions = append(agent.decisions, effect.SkillID)
	for _, f := range effect.Fields {
		switch f.Polarity {
		case skill.PolaritySet:
			if f.Magnitude != 0 {
				agent.bools[f.Field] = true
			}
		case skill.PolarityIncrease:
			agent.nums[f.Field] += f.Magnitude
		case skill.PolarityDecrease:
			agent.nums[f.Field] -= f.Magnitude
		}
	}
	return nil
}

func (e *Engine) Agents() []simulation.Agent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]simulation.Agent, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.agents[id])
	}
	return out
}
