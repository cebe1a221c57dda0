package runner

import (
	"fmt"
	"sort"

	"github.com/WenyuChiou/WAGF-sub002/pkg/agenttype"
	"github.com/WenyuChiou/WAGF-sub002/pkg/contextbuilder"
	"github.com/WenyuChiou/WAGF-sub002/pkg/simulation"
)

// GenericContextSource is a domain-agnostic ContextSource that renders an
// agent's raw state snapshot directly: every bool/num field becomes a
// Physical attribute line, the environment's Global/Spatial maps become
// sorted "key: value" lines (or whatever EnvironmentLabels renders), and
// social observation lists every other agent's most recent decision.
// Events, metrics and construct anchors are empty. It carries no domain
// framing (flood risk, irrigation district, …); the CLI's run command and
// the runner's own tests use it.
type GenericContextSource struct {
	// EnvironmentLabels renders an EnvironmentalState's Global/Spatial maps
	// into the environment perception stage; nil uses a pass-through.
	EnvironmentLabels func(simulation.EnvironmentalState) contextbuilder.EnvironmentalPerception
}

func (g GenericContextSource) Attributes(agent simulation.Agent) contextbuilder.AgentAttributes {
	state := agent.StateSnapshot()
	physical := make(map[string]string, len(state.Bools)+len(state.Nums))
	for k, v := range state.Bools {
		physical[k] = fmt.Sprintf("%v", v)
	}
	for k, v := range state.Nums {
		physical[k] = fmt.Sprintf("%g", v)
	}
	return contextbuilder.AgentAttributes{
		AgentID:  agent.ID(),
		Type:     agent.AgentType(),
		Physical: physical,
	}
}

func (g GenericContextSource) Environment(_ simulation.Agent, env simulation.EnvironmentalState) contextbuilder.EnvironmentalPerception {
	if g.EnvironmentLabels != nil {
		return g.EnvironmentLabels(env)
	}
	return contextbuilder.EnvironmentalPerception{Global: mapToLines(env.Global), Spatial: mapToLines(env.Spatial)}
}

func (g GenericContextSource) Events(_ simulation.Agent, _ simulation.EnvironmentalState) []contextbuilder.Event {
	return nil
}

func (g GenericContextSource) Metrics(_ simulation.Agent) []contextbuilder.ObservableMetric {
	return nil
}

func (g GenericContextSource) Social(agent simulation.Agent, population []simulation.Agent) contextbuilder.SocialObservation {
	var visible []string
	for _, other := range population {
		if other.ID() == agent.ID() {
			continue
		}
		decisions := other.RecentDecisions()
		if len(decisions) == 0 {
			continue
		}
		visible = append(visible, fmt.Sprintf("%s: %s", other.ID(), decisions[len(decisions)-1]))
	}
	return contextbuilder.SocialObservation{VisibleActions: visible}
}

func (g GenericContextSource) Constructs(_ agenttype.AgentType) []contextbuilder.ConstructAnchor {
	return nil
}

func (g GenericContextSource) SystemPrompt(at agenttype.AgentType) string {
	return at.PromptTemplate
}

func mapToLines(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %s", k, m[k]))
	}
	return out
}
