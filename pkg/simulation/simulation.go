// Package simulation defines the contracts the Experiment Runner consumes
// from the domain-specific simulation engine (SPEC_FULL.md §1, §6): the
// core never embeds flood hydrology, irrigation mass balance, or any other
// concrete domain model — it only needs advance_year() and apply_effect().
package simulation

import (
	"context"

	"github.com/WenyuChiou/WAGF-sub002/pkg/skill"
)

// EnvironmentalState is the observable state an advance_year() call
// returns: whatever the domain considers "what changed this tick" (e.g. a
// flood occurred, a subsidy rate shifted). The core treats it as an opaque
// bag the runner's pre_year hook uses to drive memory injection and
// context-builder environmental fields; it never interprets the values.
type EnvironmentalState struct {
	Year    int64
	Global  map[string]string
	Spatial map[string]string
}

// Effect is one approved skill's state mutation, handed to the Simulation
// to commit (§6's `apply_effect(agent, effect)`).
type Effect struct {
	SkillID string
	Fields  []skill.Effect
}

// Agent is the identity + mutable-state contract the broker and context
// builder read a snapshot of but never mutate directly (§3: "Agent...
// owned exclusively by the Simulation; broker reads a snapshot, never
// mutates directly").
type Agent interface {
	ID() string
	AgentType() string
	// StateSnapshot returns a read-only view of the agent's current state
	// for precondition and validator evaluation.
	StateSnapshot() skill.StateSnapshot
	// AvailableResources returns current resource balances keyed the same
	// way a Skill.Cost.ResourceField references them (Personal family).
	AvailableResources() map[string]float64
	// RecentDecisions returns the agent's decision history, most recent
	// last, bounded by the domain's own retention policy.
	RecentDecisions() []string
	// Removed reports whether the agent has left the live population
	// (e.g. relocated) and should be skipped by the runner.
	Removed() bool
}

// Engine is the domain-specific simulation the Experiment Runner drives.
// Concrete implementations (flood hydrology, irrigation mass balance, …)
// are explicitly out of core scope (§1); the core consumes only this
// contract.
type Engine interface {
	// AdvanceYear steps the simulation forward one tick and returns the
	// observable environmental state for that year.
	AdvanceYear(ctx context.Context) (EnvironmentalState, error)

	// ApplyEffect commits an approved skill's effect against agentID. An
	// error here is an Effect error (§7): fatal per-agent, logged with full
	// context, and the experiment continues with other agents. The runner
	// has no option that turns an effect error into an abort.
	ApplyEffect(ctx context.Context, agentID string, effect Effect) error

	// Agents returns the current live population in a stable order; the
	// runner applies its own seeded permutation on top for decision order
	// (§5).
	Agents() []Agent
}
