package memory

import (
	"math"
	"sync"
)

// Default HumanCentricEngine tuning, per §4.2.
const (
	DefaultRecencyWeight    = 0.3
	DefaultImportanceWeight = 0.5
	DefaultContextWeight    = 0.2
	DefaultConsolidation    = 0.6
	DefaultDecayLambda      = 0.05
	DefaultWorkingCapacity  = 20
)

// HumanCentricWeights are the configurable composite-score weights.
type HumanCentricWeights struct {
	Recency    float64
	Importance float64
	Context    float64
}

// agentStore holds one agent's working (recent) and long-term (consolidated)
// tiers. The same Item is never present in both: consolidation moves it.
type agentStore struct {
	working  []Item
	longTerm []Item
}

// HumanCentricEngine is the primary Memory Engine design (§4.2): salience-
// weighted retrieval over a working tier and a consolidated long-term tier,
// with hierarchical promotion on a periodic sweep.
type HumanCentricEngine struct {
	mu                sync.RWMutex
	clock             int64
	agents            map[string]*agentStore
	weights           HumanCentricWeights
	decayLambda       float64
	consolidationThr  float64
	workingCapacity   int
	emotionWeights    map[Emotion]float64
	sourceWeights     map[Source]float64
}

// HumanCentricOption configures a HumanCentricEngine at construction.
type HumanCentricOption func(*HumanCentricEngine)

func WithWeights(w HumanCentricWeights) HumanCentricOption {
	return func(e *HumanCentricEngine) { e.weights = w }
}

func WithDecayLambda(lambda float64) HumanCentricOption {
	return func(e *HumanCentricEngine) { e.decayLambda = lambda }
}

func WithConsolidationThreshold(threshold float64) HumanCentricOption {
	return func(e *HumanCentricEngine) { e.consolidationThr = threshold }
}

func WithWorkingCapacity(n int) HumanCentricOption {
	return func(e *HumanCentricEngine) { e.workingCapacity = n }
}

// NewHumanCentricEngine creates an engine using emotionWeights/sourceWeights
// to compute base_importance = emotion_weight(emotion) * source_weight(source)
// at insertion time, with spec defaults for anything left unconfigured.
func NewHumanCentricEngine(emotionWeights map[Emotion]float64, sourceWeights map[Source]float64, opts ...HumanCentricOption) *HumanCentricEngine {
	e := &HumanCentricEngine{
		agents:          make(map[string]*agentStore),
		weights:         HumanCentricWeights{Recency: DefaultRecencyWeight, Importance: DefaultImportanceWeight, Context: DefaultContextWeight},
		decayLambda:     DefaultDecayLambda,
		consolidationThr: DefaultConsolidation,
		workingCapacity: DefaultWorkingCapacity,
		emotionWeights:  emotionWeights,
		sourceWeights:   sourceWeights,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *HumanCentricEngine) storeFor(agentID string) *agentStore {
	st, ok := e.agents[agentID]
	if !ok {
		st = &agentStore{}
		e.agents[agentID] = st
	}
	return st
}

func (e *HumanCentricEngine) baseImportance(meta Metadata) float64 {
	if meta.Override != nil {
		return clamp01(*meta.Override)
	}
	ew, ok := e.emotionWeights[meta.Emotion]
	if !ok {
		ew = 0.5
	}
	sw, ok := e.sourceWeights[meta.Source]
	if !ok {
		sw = 1.0
	}
	return clamp01(ew * sw)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Add inserts a new item into agentID's working tier, evicting the oldest
// non-consolidated working item if over capacity.
func (e *HumanCentricEngine) Add(agentID string, content string, meta Metadata) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	base := e.baseImportance(meta)
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

	st := e.storeFor(agentID)
	st.working = append(st.working, item)
	e.evictWorking(st)
	return nil
}

// evictWorking drops the oldest non-consolidated working items once the tier
// exceeds capacity. Consolidated items are exempt from eviction (§4.2).
func (e *HumanCentricEngine) evictWorking(st *agentStore) {
	overflow := len(st.working) - e.workingCapacity
	if overflow <= 0 {
		return
	}
	kept := make([]Item, 0, len(st.working))
	dropped := 0
	for _, it := range st.working {
		if dropped < overflow && !it.Consolidated {
			dropped++
			continue
		}
		kept = append(kept, it)
	}
	st.working = kept
}

func (e *HumanCentricEngine) age(ts int64) float64 {
	age := e.clock - ts
	if age < 0 {
		age = 0
	}
	return float64(age)
}

func (e *HumanCentricEngine) recency(ts int64) float64 {
	denom := e.clock
	if denom < 1 {
		denom = 1
	}
	return 1 - e.age(ts)/float64(denom)
}

// score computes the composite retrieval score for item, using base
// importance directly for working-tier items and exponential decay for
// long-term items, per §4.2.
func (e *HumanCentricEngine) score(item Item, longTerm bool, boosters map[string]float64) (float64, float64) {
	recency := e.recency(item.Timestamp)
	var decayed float64
	if longTerm {
		decayed = clamp01(item.BaseImportance * math.Exp(-e.decayLambda*e.age(item.Timestamp)))
	} else {
		decayed = item.BaseImportance
	}
	boost := contextualBoost(item, boosters)
	total := e.weights.Recency*recency + e.weights.Importance*decayed + e.weights.Context*boost
	return total, decayed
}

// Retrieve returns up to topK item contents ordered by composite score
// across both tiers.
func (e *HumanCentricEngine) Retrieve(agentID string, topK int, boosters map[string]float64) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.storeFor(agentID)
	scored := e.scoreAll(st, boosters)

	if topK <= 0 || topK > len(scored) {
		topK = len(scored)
	}
	sortScoredDesc(scored)

	out := make([]string, 0, topK)
	for _, s := range scored[:topK] {
		out = append(out, s.item.Content)
	}
	return out, nil
}

// scoreAll recomputes decayed_importance for every item in both tiers,
// writing it back onto the stored Item (retrieval is where decay is
// "recomputed", per §3's Item invariant), and returns the scored list.
func (e *HumanCentricEngine) scoreAll(st *agentStore, boosters map[string]float64) []scoredItem {
	scored := make([]scoredItem, 0, len(st.working)+len(st.longTerm))
	for i := range st.working {
		total, decayed := e.score(st.working[i], false, boosters)
		st.working[i].DecayedImportance = decayed
		scored = append(scored, scoredItem{item: st.working[i], score: total})
	}
	for i := range st.longTerm {
		total, decayed := e.score(st.longTerm[i], true, boosters)
		st.longTerm[i].DecayedImportance = decayed
		scored = append(scored, scoredItem{item: st.longTerm[i], score: total})
	}
	return scored
}

func sortScoredDesc(scored []scoredItem) {
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].score > scored[j-1].score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}
}

// RetrieveStratified partitions both tiers by source and allocates slots
// per §4.2's default (or caller-supplied) budget.
func (e *HumanCentricEngine) RetrieveStratified(agentID string, allocation map[Source]int, totalK int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.storeFor(agentID)
	scored := e.scoreAll(st, nil)
	selected := stratifiedSelect(scored, allocation, totalK)

	out := make([]string, 0, len(selected))
	for _, it := range selected {
		out = append(out, it.Content)
	}
	return out, nil
}

// Snapshot returns a copy of every item (both tiers) for agentID.
func (e *HumanCentricEngine) Snapshot(agentID string) []Item {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, ok := e.agents[agentID]
	if !ok {
		return nil
	}
	out := make([]Item, 0, len(st.working)+len(st.longTerm))
	out = append(out, st.working...)
	out = append(out, st.longTerm...)
	return out
}

func (e *HumanCentricEngine) CurrentTime() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clock
}

func (e *HumanCentricEngine) Advance(tick int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = tick
}

// Consolidate sweeps agentID's working tier, promoting every item whose
// base importance exceeds the consolidation threshold into the long-term
// tier (§4.2). Promoted items are marked consolidated and removed from the
// working tier's eviction pool by virtue of living in long-term afterward.
func (e *HumanCentricEngine) Consolidate(agentID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.storeFor(agentID)
	var remaining []Item
	promoted := 0
	for _, it := range st.working {
		if it.BaseImportance > e.consolidationThr {
			it.Consolidated = true
			st.longTerm = append(st.longTerm, it)
			promoted++
			continue
		}
		remaining = append(remaining, it)
	}
	st.working = remaining
	return promoted
}

// ConsolidateAll runs Consolidate for every agent with a memory store.
func (e *HumanCentricEngine) ConsolidateAll() {
	e.mu.RLock()
	ids := make([]string, 0, len(e.agents))
	for id := range e.agents {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		e.Consolidate(id)
	}
}
