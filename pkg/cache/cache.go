// Package cache implements the Efficiency Cache (SPEC_FULL.md §4.6, §2.9):
// a concurrent map from a fingerprint of (agent state, context hash) to a
// previously approved result, with entry-level invalidation on replay
// mismatch (P9).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Entry is one cached approved decision.
type Entry struct {
	AgentID       string
	ApprovedSkill string
	Reasoning     string
	Constructs    map[string]string
}

// Cache is a concurrent fingerprint -> Entry map. The Skill Registry and
// Agent Type Config are read-only after load, but the cache itself mutates
// on every put/invalidate, so every operation is mutex-guarded (§5's
// "entry-level invalidation" requirement).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Fingerprint hashes the agent state snapshot and context content into a
// stable cache key. Two attempts with identical bools/nums/contextHash
// collide onto the same fingerprint.
func Fingerprint(agentID string, bools map[string]bool, nums map[string]float64, contextHash string) string {
	h := sha256.New()
	fmt.Fprintf(h, "agent=%s\n", agentID)
	for _, k := range sortedBoolKeys(bools) {
		fmt.Fprintf(h, "b:%s=%v\n", k, bools[k])
	}
	for _, k := range sortedNumKeys(nums) {
		fmt.Fprintf(h, "n:%s=%v\n", k, nums[k])
	}
	fmt.Fprintf(h, "ctx=%s\n", contextHash)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached Entry for fingerprint, if present.
func (c *Cache) Get(fingerprint string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[fingerprint]
	return e, ok
}

// Put stores entry under fingerprint, overwriting any prior entry.
func (c *Cache) Put(fingerprint string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = entry
}

// Invalidate removes the entry for fingerprint. After Invalidate, Get on the
// same fingerprint is guaranteed to miss (P9) until a new Put occurs.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
}

// Len reports the number of cached entries (diagnostics/audit summary).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func sortedBoolKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	insertionSort(keys)
	return keys
}

func sortedNumKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	insertionSort(keys)
	return keys
}

func insertionSort(keys []string) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}
