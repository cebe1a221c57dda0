package memory

import (
	"sort"
	"sync"
)

// ImportanceEngine keeps every item and retrieves the top-k by a static
// importance score, breaking ties by recency. Unlike HumanCentricEngine it
// applies no decay and maintains no working/long-term tiering.
type ImportanceEngine struct {
	mu             sync.RWMutex
	clock          int64
	agents         map[string][]Item
	emotionWeights map[Emotion]float64
	sourceWeights  map[Source]float64
}

// NewImportanceEngine creates an ImportanceEngine using the given weight
// tables to compute base importance at Add time (falling back to 0.5 for an
// emotion and 1.0 for a source not present in its table).
func NewImportanceEngine(emotionWeights map[Emotion]float64, sourceWeights map[Source]float64) *ImportanceEngine {
	return &ImportanceEngine{
		agents:         make(map[string][]Item),
		emotionWeights: emotionWeights,
		sourceWeights:  sourceWeights,
	}
}

func (e *ImportanceEngine) weightFor(emotion Emotion, source Source) float64 {
	ew, ok := e.emotionWeights[emotion]
	if !ok {
		ew = 0.5
	}
	sw, ok := e.sourceWeights[source]
	if !ok {
		sw = 1.0
	}
	importance := ew * sw
	if importance > 1 {
		importance = 1
	}
	if importance < 0 {
		importance = 0
	}
	return importance
}

func (e *ImportanceEngine) Add(agentID string, content string, meta Metadata) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	base := e.weightFor(meta.Emotion, meta.Source)
	if meta.Override != nil {
		base = *meta.Override
	}
	if err := validateImportance(base); err != nil {
		return err
	}

	item := Item{
		Content:           content,
		Timestamp:         e.clock,
		Source:            meta.Source,
		Emotion:           meta.Emotion,
		Type:              meta.Type,
		Metadata:          meta.Extra,
		BaseImportance:    base,
		DecayedImportance: base,
	}
	e.agents[agentID] = append(e.agents[agentID], item)
	return nil
}

// Retrieve returns the topK items ranked by base importance plus any
// contextual boost, breaking ties by most-recent-first.
func (e *ImportanceEngine) Retrieve(agentID string, topK int, boosters map[string]float64) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	items := append([]Item(nil), e.agents[agentID]...)
	sort.SliceStable(items, func(i, j int) bool {
		si := items[i].BaseImportance + contextualBoost(items[i], boosters)
		sj := items[j].BaseImportance + contextualBoost(items[j], boosters)
		if si != sj {
			return si > sj
		}
		return items[i].Timestamp > items[j].Timestamp
	})

	if topK <= 0 || topK > len(items) {
		topK = len(items)
	}
	out := make([]string, 0, topK)
	for _, it := range items[:topK] {
		out = append(out, it.Content)
	}
	return out, nil
}

func (e *ImportanceEngine) RetrieveStratified(agentID string, allocation map[Source]int, totalK int) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	items := e.agents[agentID]
	scored := make([]scoredItem, 0, len(items))
	for _, it := range items {
		scored = append(scored, scoredItem{item: it, score: it.BaseImportance})
	}
	selected := stratifiedSelect(scored, allocation, totalK)
	out := make([]string, 0, len(selected))
	for _, it := range selected {
		out = append(out, it.Content)
	}
	return out, nil
}

func (e *ImportanceEngine) Snapshot(agentID string) []Item {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := append([]Item(nil), e.agents[agentID]...)
	return out
}

func (e *ImportanceEngine) CurrentTime() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clock
}

func (e *ImportanceEngine) Advance(tick int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = tick
}

// contextualBoost returns the first matching booster for item, per the
// caller-supplied "tag_key:tag_value" -> boost map (§4.2). Checked against
// source, emotion, then type tags; unmatched items get no boost.
func contextualBoost(item Item, boosters map[string]float64) float64 {
	if boosters == nil {
		return 0
	}
	if b, ok := boosters["source:"+string(item.Source)]; ok {
		return b
	}
	if b, ok := boosters["emotion:"+string(item.Emotion)]; ok {
		return b
	}
	if b, ok := boosters["type:"+string(item.Type)]; ok {
		return b
	}
	return 0
}
