// Package reflection implements the Reflection Engine (SPEC_FULL.md §4.7):
// periodic consolidation of an agent's raw episodic memories into semantic
// "insights", stored at a dynamically computed importance rather than a
// flat constant. Batch prompt generation follows a templated-summarizer
// pattern (a templated prompt over accumulated text, one LLM call covering
// many subjects at once) adapted from a single-conversation summary to a
// per-agent-type personalized batch.
package reflection

import (
	"fmt"
	"math"
	"strings"

	"github.com/WenyuChiou/WAGF-sub002/pkg/memory"
)

// AgentReflectionContext is the per-agent state the batch prompt
// personalizes on (§4.7: "the prompt embeds the agent's identity... and a
// short state summary").
type AgentReflectionContext struct {
	AgentID       string
	AgentType     string
	Name          string
	Elevated      bool
	FloodCount    int
	Marginalized  bool
	RecentDecision string
	Year          int64
}

// Insight is the Reflection Engine's output for one agent (§3).
type Insight struct {
	Summary          string
	Importance       float64
	YearCreated      int64
	ConstructContext map[string]string
}

// DynamicImportanceContext carries the signals compute_dynamic_importance
// conditions on (§4.7).
type DynamicImportanceContext struct {
	FirstFloodOrFirstEvent bool
	RepeatedCount          int // number of times this kind of event/decision has recurred
	PostMajorAction        bool
	Marginalized           bool
	StableYearDoNothing    bool
}

// Engine holds the reflection cadence and the question banks keyed by
// agent type (§4.7: "per-type question banks... steer the reflection
// semantically").
type Engine struct {
	QuestionBanks  map[string][]string
	IntervalYears  int // 0 -> reflect every year (default)
}

// NewEngine creates a reflection Engine with the given per-type question
// banks.
func NewEngine(questionBanks map[string][]string) *Engine {
	return &Engine{QuestionBanks: questionBanks, IntervalYears: 1}
}

// ShouldReflect reports whether year triggers a reflection sweep. The
// default cadence is end of every simulation year (§4.7).
func (e *Engine) ShouldReflect(agentID string, year int64) bool {
	interval := e.IntervalYears
	if interval <= 0 {
		interval = 1
	}
	return year%int64(interval) == 0
}

// ExtractAgentContext assembles the personalization context for one agent.
// It is a pure function of the inputs — the caller (the Experiment Runner's
// post_year hook) is responsible for reading current agent state from the
// Simulation.
func ExtractAgentContext(agentID, agentType, name string, elevated bool, floodCount int, marginalized bool, recentDecision string, year int64) AgentReflectionContext {
	return AgentReflectionContext{
		AgentID: agentID, AgentType: agentType, Name: name,
		Elevated: elevated, FloodCount: floodCount, Marginalized: marginalized,
		RecentDecision: recentDecision, Year: year,
	}
}

// GeneratePersonalizedBatchPrompt builds one LLM prompt covering every
// agent in batch, embedding each agent's identity and state summary plus
// its agent type's question bank (§4.7).
func (e *Engine) GeneratePersonalizedBatchPrompt(batch []AgentReflectionContext, year int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reflect on year %d for each of the following agents. For each agent, answer its questions and "+
		"produce one concise summary (<=500 chars) of what it learned.\n\n", year)

	for _, ac := range batch {
		name := ac.Name
		if name == "" {
			name = ac.AgentID
		}
		fmt.Fprintf(&sb, "### %s\n", ac.AgentID)
		fmt.Fprintf(&sb, "identity: %s (%s)\n", name, ac.AgentType)
		fmt.Fprintf(&sb, "state: elevated=%v, flood_count=%d, marginalized=%v, recent_decision=%s\n",
			ac.Elevated, ac.FloodCount, ac.Marginalized, ac.RecentDecision)

		questions := e.QuestionBanks[ac.AgentType]
		if len(questions) > 0 {
			sb.WriteString("questions:\n")
			for _, q := range questions {
				fmt.Fprintf(&sb, "- %s\n", q)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Respond with one block per agent id, in the form:\n### <agent_id>\n<summary>\n")
	return sb.String()
}

// ParseBatchReflectionResponse splits an LLM batch reply back into one
// Insight per agent id. An id with no matching block in text is simply
// absent from the returned map (B1: zero memories -> no insights stored,
// generalizes to "nothing reflected -> nothing stored").
func ParseBatchReflectionResponse(text string, ids []string, year int64) map[string]Insight {
	out := make(map[string]Insight, len(ids))
	for _, id := range ids {
		marker := "### " + id
		idx := strings.Index(text, marker)
		if idx < 0 {
			continue
		}
		rest := text[idx+len(marker):]
		end := len(rest)
		if next := strings.Index(rest, "\n### "); next >= 0 {
			end = next
		}
		summary := strings.TrimSpace(rest[:end])
		if summary == "" {
			continue
		}
		if len(summary) > 500 {
			summary = summary[:500]
		}
		out[id] = Insight{Summary: summary, YearCreated: year}
	}
	return out
}

// ComputeDynamicImportance implements the §4.7 formula exactly: base 0.9,
// adjusted by the fired conditions (in the documented order), clamped to
// [0,1], and rounded to 2 decimals.
func ComputeDynamicImportance(ctx DynamicImportanceContext) float64 {
	importance := 0.9

	if ctx.FirstFloodOrFirstEvent {
		importance = 0.95
	}
	if ctx.RepeatedCount > 2 {
		importance = 0.75
	}
	if ctx.PostMajorAction {
		importance = math.Max(importance, 0.80)
	}
	if ctx.Marginalized {
		importance = math.Max(importance, 0.90)
	}
	if ctx.StableYearDoNothing {
		importance = math.Min(importance, 0.60)
	}

	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}
	return math.Round(importance*100) / 100
}

// StoreInsight writes insight into eng for agentID with source=reflection
// (§4.7), so stratified retrieval can give reflections their own slice.
func StoreInsight(eng memory.Engine, agentID string, insight Insight) error {
	return eng.Add(agentID, insight.Summary, memory.Metadata{
		Source:   memory.SourceReflection,
		Type:     memory.TypeReflection,
		Emotion:  memory.EmotionObservation,
		Override: &insight.Importance,
	})
}
