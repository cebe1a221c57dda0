package contextbuilder

import (
	"hash/fnv"
	"math/rand"
)

// seedFor derives a deterministic RNG seed from (agentID, year), per the
// option-shuffling anchoring rule (§4.3): the presentation order of the
// skill list is permuted per decision to defeat first-option preference,
// but must reproduce identically for the same agent/year across reruns.
func seedFor(agentID string, year int64) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(agentID))
	sum := h.Sum64()
	return int64(sum) ^ year
}

// shuffleSkills returns a copy of skills permuted by a seeded RNG derived
// from (agentID, year). The input slice is never mutated.
func shuffleSkills(skills []SkillPresentation, agentID string, year int64) []SkillPresentation {
	out := make([]SkillPresentation, len(skills))
	copy(out, skills)

	rng := rand.New(rand.NewSource(seedFor(agentID, year)))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
