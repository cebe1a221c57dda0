package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSkills() []Skill {
	return []Skill{
		{
			ID:            "do_nothing",
			Description:   "Maintain current state",
			EligibleTypes: []string{"household"},
		},
		{
			ID:            "buy_insurance",
			Description:   "Purchase flood insurance",
			EligibleTypes: []string{"household"},
			Preconditions: []Precondition{
				{BoolField: "insured", BoolEquals: false},
			},
			Effects: []Effect{
				{Field: "insured", Polarity: PolaritySet, Magnitude: 1},
			},
		},
		{
			ID:              "elevate_house",
			Description:     "Elevate the house foundation",
			EligibleTypes:   []string{"household"},
			OneTime:         true,
			OneTimeStateKey: "elevated",
			Preconditions: []Precondition{
				{BoolField: "elevated", BoolEquals: false},
				{NumField: "funds", Comparator: ">=", Threshold: 20000},
			},
			Effects: []Effect{
				{Field: "elevated", Polarity: PolaritySet, Magnitude: 1},
			},
			Cost: Cost{ResourceField: "funds", Amount: 20000},
		},
	}
}

func TestRegistry_LoadRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()
	skills := append(sampleSkills(), Skill{ID: "do_nothing", Description: "dup", EligibleTypes: []string{"household"}})
	err := r.Load(skills, "do_nothing")
	assert.Error(t, err)
}

func TestRegistry_LoadRejectsMalformedEffect(t *testing.T) {
	r := NewRegistry()
	bad := []Skill{{ID: "broken", Description: "x", EligibleTypes: []string{"household"}, Effects: []Effect{{Field: "x", Polarity: "sideways"}}}}
	err := r.Load(bad, "broken")
	assert.Error(t, err)
}

func TestRegistry_LoadRequiresKnownDefaultSkill(t *testing.T) {
	r := NewRegistry()
	err := r.Load(sampleSkills(), "nonexistent")
	assert.Error(t, err)
}

func TestRegistry_EligibleFor_FiltersOneTimeAndPreconditions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Load(sampleSkills(), "do_nothing"))

	state := StateSnapshot{
		Bools: map[string]bool{"elevated": false, "insured": false},
		Nums:  map[string]float64{"funds": 5000},
	}
	ids := r.EligibleFor("household", state)
	assert.Contains(t, ids, "do_nothing")
	assert.Contains(t, ids, "buy_insurance")
	assert.NotContains(t, ids, "elevate_house", "funds below threshold should block elevate_house")

	state.Nums["funds"] = 25000
	ids = r.EligibleFor("household", state)
	assert.Contains(t, ids, "elevate_house")

	state.Bools["elevated"] = true
	ids = r.EligibleFor("household", state)
	assert.NotContains(t, ids, "elevate_house", "one-time skill already fired should be excluded")
}

func TestRegistry_EligibleFor_FiltersByAgentType(t *testing.T) {
	r := NewRegistry()
	skills := append(sampleSkills(), Skill{ID: "maintain_demand", Description: "irrigation no-op", EligibleTypes: []string{"irrigation_district"}})
	require.NoError(t, r.Load(skills, "do_nothing"))

	ids := r.EligibleFor("irrigation_district", StateSnapshot{})
	assert.Equal(t, []string{"maintain_demand"}, ids)
}

func TestRegistry_Describe(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Load(sampleSkills(), "do_nothing"))

	desc, err := r.Describe("do_nothing", "")
	require.NoError(t, err)
	assert.Equal(t, "do_nothing: Maintain current state", desc)

	desc, err = r.Describe("do_nothing", "short")
	require.NoError(t, err)
	assert.Equal(t, "Maintain current state", desc)

	_, err = r.Describe("missing", "")
	assert.Error(t, err)
}

func TestRegistry_DefaultSkill(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Load(sampleSkills(), "do_nothing"))
	assert.Equal(t, "do_nothing", r.DefaultSkill())
}
