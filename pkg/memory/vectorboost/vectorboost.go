// Package vectorboost is an optional extension point for the HumanCentric
// memory engine's contextual_boost term (SPEC_FULL.md §4.2): instead of
// (or alongside) the caller-supplied tag_key:tag_value booster map, it
// scores a new memory's similarity against the agent's long-term tier
// using an embedded chromem-go collection, modeled on a chromem-backed
// vector provider. It is deliberately optional — the core
// HumanCentric contract never requires it — and is wired in as the
// domain-stack's vector-backed long-term memory component (SPEC_FULL.md's
// DOMAIN STACK table).
package vectorboost

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/philippgille/chromem-go"
)

const embeddingDims = 64

// Booster scores free-text content against a per-agent chromem-go
// collection of previously stored memory contents, returning a
// contextual_boost in [0,1] suitable for HumanCentric's composite score
// (§4.2: "contextual_boost is the first matching booster from the
// caller-supplied map" — Booster.Score is an alternative source for that
// same term, plugged in by a caller that wants semantic rather than exact
// tag matching).
type Booster struct {
	db  *chromem.DB
	mu  sync.Mutex
	cfn chromem.EmbeddingFunc
}

// New creates an in-memory (non-persisted) Booster. The embedding function
// is a deterministic bag-of-words hash, not a real model: WAGF's core
// never embeds a concrete LLM/embedding provider (§1), so offline runs get
// a stable, dependency-free similarity signal instead of a network call.
func New() *Booster {
	b := &Booster{db: chromem.NewDB()}
	b.cfn = b.hashEmbed
	return b
}

// hashEmbed deterministically maps text to a fixed-width vector by hashing
// each token into one of embeddingDims buckets and accumulating counts,
// then L2-normalizing — a minimal stand-in for a real sentence embedder
// that still rewards lexical overlap.
func (b *Booster) hashEmbed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	token := make([]byte, 0, 16)
	flush := func() {
		if len(token) == 0 {
			return
		}
		h := fnv.New32a()
		_, _ = h.Write(token)
		vec[int(h.Sum32())%embeddingDims]++
		token = token[:0]
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			token = append(token, c)
			continue
		}
		flush()
	}
	flush()

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

// Index stores content under agentID's collection so later calls to Score
// can compare new candidates against it.
func (b *Booster) Index(ctx context.Context, agentID, itemID, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	col, err := b.db.GetOrCreateCollection(agentID, nil, b.cfn)
	if err != nil {
		return fmt.Errorf("vectorboost: collection for agent %s: %w", agentID, err)
	}
	doc := chromem.Document{ID: itemID, Content: content}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("vectorboost: indexing content for agent %s: %w", agentID, err)
	}
	return nil
}

// Score returns the best cosine similarity between query and anything
// indexed for agentID so far, in [0,1]. An agent with nothing indexed
// returns 0 (no boost), never an error — a missing collection is not a
// failure of the boosting contract.
func (b *Booster) Score(ctx context.Context, agentID, query string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	col, err := b.db.GetOrCreateCollection(agentID, nil, b.cfn)
	if err != nil {
		return 0, fmt.Errorf("vectorboost: collection for agent %s: %w", agentID, err)
	}
	if col.Count() == 0 {
		return 0, nil
	}

	topK := 1
	if col.Count() < topK {
		topK = col.Count()
	}
	results, err := col.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("vectorboost: querying agent %s: %w", agentID, err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	sim := float64(results[0].Similarity)
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return sim, nil
}
