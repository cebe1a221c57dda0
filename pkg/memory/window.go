package memory

import "sync"

// WindowEngine is the smallest Memory Engine: it keeps only the most recent
// N items per agent and returns them in chronological order. Used as a
// baseline against which the importance and humancentric engines are judged.
type WindowEngine struct {
	mu     sync.RWMutex
	window int
	clock  int64
	agents map[string][]Item
}

// NewWindowEngine creates a WindowEngine retaining at most windowSize items
// per agent.
func NewWindowEngine(windowSize int) *WindowEngine {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &WindowEngine{
		window: windowSize,
		agents: make(map[string][]Item),
	}
}

func (e *WindowEngine) Add(agentID string, content string, meta Metadata) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	item := Item{
		Content:        content,
		Timestamp:      e.clock,
		Source:         meta.Source,
		Emotion:        meta.Emotion,
		Type:           meta.Type,
		Metadata:       meta.Extra,
		BaseImportance: 0,
	}
	if meta.Override != nil {
		if err := validateImportance(*meta.Override); err != nil {
			return err
		}
		item.BaseImportance = *meta.Override
	}
	item.DecayedImportance = item.BaseImportance

	items := append(e.agents[agentID], item)
	if len(items) > e.window {
		items = items[len(items)-e.window:]
	}
	e.agents[agentID] = items
	return nil
}

// Retrieve returns the last min(topK, window) items in chronological order.
func (e *WindowEngine) Retrieve(agentID string, topK int, _ map[string]float64) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	items := e.agents[agentID]
	if topK <= 0 || topK > len(items) {
		topK = len(items)
	}
	start := len(items) - topK
	out := make([]string, 0, topK)
	for _, it := range items[start:] {
		out = append(out, it.Content)
	}
	return out, nil
}

func (e *WindowEngine) RetrieveStratified(agentID string, allocation map[Source]int, totalK int) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	items := e.agents[agentID]
	scored := make([]scoredItem, 0, len(items))
	for i, it := range items {
		// Window engine has no importance signal; score by recency index
		// alone so stratified retrieval still prefers the newest items.
		scored = append(scored, scoredItem{item: it, score: float64(i)})
	}
	selected := stratifiedSelect(scored, allocation, totalK)
	out := make([]string, 0, len(selected))
	for _, it := range selected {
		out = append(out, it.Content)
	}
	return out, nil
}

func (e *WindowEngine) Snapshot(agentID string) []Item {
	e.mu.RLock()
	defer e.mu.RUnlock()

	items := e.agents[agentID]
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

func (e *WindowEngine) CurrentTime() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clock
}

func (e *WindowEngine) Advance(tick int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = tick
}
