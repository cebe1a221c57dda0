package reflection_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WenyuChiou/WAGF-sub002/pkg/memory"
	"github.com/WenyuChiou/WAGF-sub002/pkg/reflection"
)

func TestComputeDynamicImportance_S5_FirstFloodDoNothing(t *testing.T) {
	importance := reflection.ComputeDynamicImportance(reflection.DynamicImportanceContext{
		FirstFloodOrFirstEvent: true,
	})
	assert.Equal(t, 0.95, importance)
}

func TestComputeDynamicImportance_S5_RepeatedFloods(t *testing.T) {
	importance := reflection.ComputeDynamicImportance(reflection.DynamicImportanceContext{
		RepeatedCount: 5,
	})
	assert.Equal(t, 0.75, importance)
}

func TestComputeDynamicImportance_BaseCase(t *testing.T) {
	importance := reflection.ComputeDynamicImportance(reflection.DynamicImportanceContext{})
	assert.Equal(t, 0.90, importance)
}

func TestComputeDynamicImportance_MarginalizedFloorsAt90(t *testing.T) {
	importance := reflection.ComputeDynamicImportance(reflection.DynamicImportanceContext{
		RepeatedCount: 5,
		Marginalized:  true,
	})
	assert.Equal(t, 0.90, importance)
}

func TestComputeDynamicImportance_PostMajorActionFloorsAt80(t *testing.T) {
	importance := reflection.ComputeDynamicImportance(reflection.DynamicImportanceContext{
		RepeatedCount:   5,
		PostMajorAction: true,
	})
	assert.Equal(t, 0.80, importance)
}

func TestComputeDynamicImportance_StableDoNothingCapsAt60(t *testing.T) {
	importance := reflection.ComputeDynamicImportance(reflection.DynamicImportanceContext{
		StableYearDoNothing: true,
	})
	assert.Equal(t, 0.60, importance)
}

func TestComputeDynamicImportance_StableCapOverridesMarginalized(t *testing.T) {
	// Marginalized's floor (0.90) is applied before the stable-year cap, so a
	// marginalized agent in a quiet do-nothing year still ends up capped at
	// 0.60 by the last rule in the documented order.
	importance := reflection.ComputeDynamicImportance(reflection.DynamicImportanceContext{
		Marginalized:        true,
		StableYearDoNothing: true,
	})
	assert.Equal(t, 0.60, importance)
}

func TestGeneratePersonalizedBatchPrompt_EmbedsIdentityAndQuestions(t *testing.T) {
	eng := reflection.NewEngine(map[string][]string{
		"household": {"What did you learn about flood risk this year?"},
	})
	batch := []reflection.AgentReflectionContext{
		reflection.ExtractAgentContext("hh_1", "household", "Household 1", false, 1, false, "do_nothing", 3),
	}
	prompt := eng.GeneratePersonalizedBatchPrompt(batch, 3)

	assert.Contains(t, prompt, "hh_1")
	assert.Contains(t, prompt, "household")
	assert.Contains(t, prompt, "flood risk")
	assert.Contains(t, prompt, "flood_count=1")
}

func TestParseBatchReflectionResponse_SplitsPerAgent(t *testing.T) {
	text := "### hh_1\nLearned to take flood warnings seriously.\n### hh_2\nStayed the course, no new insight.\n"
	insights := reflection.ParseBatchReflectionResponse(text, []string{"hh_1", "hh_2"}, 3)

	require.Len(t, insights, 2)
	assert.Equal(t, "Learned to take flood warnings seriously.", insights["hh_1"].Summary)
	assert.Equal(t, int64(3), insights["hh_1"].YearCreated)
	assert.Equal(t, "Stayed the course, no new insight.", insights["hh_2"].Summary)
}

func TestParseBatchReflectionResponse_B1_ZeroMemoriesYieldsNoInsights(t *testing.T) {
	insights := reflection.ParseBatchReflectionResponse("", nil, 1)
	assert.Empty(t, insights)
}

func TestParseBatchReflectionResponse_MissingAgentBlockIsOmitted(t *testing.T) {
	text := "### hh_1\nSomething happened.\n"
	insights := reflection.ParseBatchReflectionResponse(text, []string{"hh_1", "hh_2"}, 1)

	require.Len(t, insights, 1)
	_, ok := insights["hh_2"]
	assert.False(t, ok)
}

type fakeMemoryEngine struct {
	added []fakeAdd
}

type fakeAdd struct {
	agentID string
	content string
	meta    memory.Metadata
}

func (f *fakeMemoryEngine) Add(agentID, content string, meta memory.Metadata) error {
	f.added = append(f.added, fakeAdd{agentID, content, meta})
	return nil
}
func (f *fakeMemoryEngine) Retrieve(string, int, map[string]float64) ([]string, error) { return nil, nil }
func (f *fakeMemoryEngine) RetrieveStratified(string, map[memory.Source]int, int) ([]string, error) {
	return nil, nil
}
func (f *fakeMemoryEngine) Snapshot(string) []memory.Item { return nil }
func (f *fakeMemoryEngine) CurrentTime() int64            { return 0 }
func (f *fakeMemoryEngine) Advance(int64)                 {}

func TestStoreInsight_WritesReflectionSourcedItem(t *testing.T) {
	eng := &fakeMemoryEngine{}
	insight := reflection.Insight{Summary: "Learned something.", Importance: 0.95, YearCreated: 2}

	err := reflection.StoreInsight(eng, "hh_1", insight)
	require.NoError(t, err)

	require.Len(t, eng.added, 1)
	got := eng.added[0]
	assert.Equal(t, "hh_1", got.agentID)
	assert.Equal(t, "Learned something.", got.content)
	assert.Equal(t, memory.SourceReflection, got.meta.Source)
	assert.Equal(t, memory.TypeReflection, got.meta.Type)
	require.NotNil(t, got.meta.Override)
	assert.Equal(t, 0.95, *got.meta.Override)
}

func TestShouldReflect_DefaultsToEveryYear(t *testing.T) {
	eng := reflection.NewEngine(nil)
	assert.True(t, eng.ShouldReflect("hh_1", 1))
	assert.True(t, eng.ShouldReflect("hh_1", 2))
}
