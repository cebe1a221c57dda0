package memory

import "sort"

// scoredItem pairs an Item with the composite score an engine computed for
// it, so stratifiedSelect can sort and cascade without recomputing scores.
type scoredItem struct {
	item  Item
	score float64
}

// stratifiedSelect implements the §4.2 "stratified retrieval" algorithm
// shared by all three engines: partition by source, fill each bucket up to
// its allocation (highest score first), then cascade unused slots to the
// highest-scoring remaining items regardless of source.
func stratifiedSelect(scored []scoredItem, allocation map[Source]int, totalK int) []Item {
	if totalK <= 0 {
		return nil
	}
	if allocation == nil {
		allocation = DefaultStratifiedAllocation()
	}

	buckets := make(map[Source][]scoredItem)
	for _, s := range scored {
		buckets[s.item.Source] = append(buckets[s.item.Source], s)
	}
	for src := range buckets {
		sort.SliceStable(buckets[src], func(i, j int) bool {
			return buckets[src][i].score > buckets[src][j].score
		})
	}

	selected := make([]Item, 0, totalK)
	used := make(map[int]bool) // index into `scored`, to exclude from cascade

	// Sources are visited in a fixed order (not map iteration order) so the
	// selection is deterministic (P4) even when a caller-supplied
	// allocation's total exceeds totalK and budgetLeft caps an in-progress
	// bucket.
	sources := make([]Source, 0, len(allocation))
	for src := range allocation {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	budgetLeft := totalK
	for _, src := range sources {
		if budgetLeft <= 0 {
			break
		}
		take := allocation[src]
		if take > budgetLeft {
			take = budgetLeft
		}
		bucket := buckets[src]
		for i := 0; i < take && i < len(bucket); i++ {
			selected = append(selected, bucket[i].item)
			used[globalIndex(scored, bucket[i], used)] = true
			budgetLeft--
		}
	}

	if budgetLeft > 0 {
		remaining := make([]scoredItem, 0, len(scored))
		for i, s := range scored {
			if !used[i] {
				remaining = append(remaining, s)
			}
		}
		sort.SliceStable(remaining, func(i, j int) bool {
			return remaining[i].score > remaining[j].score
		})
		for i := 0; i < budgetLeft && i < len(remaining); i++ {
			selected = append(selected, remaining[i].item)
		}
	}

	return selected
}

// globalIndex finds the first not-yet-used position within scored whose Item
// matches target's content+timestamp+source (scoredItem values are copied
// into buckets, so pointer identity doesn't survive; compare by value
// instead, skipping used positions so identical items each claim their own).
func globalIndex(scored []scoredItem, target scoredItem, used map[int]bool) int {
	for i, s := range scored {
		if !used[i] && s.item.Content == target.item.Content && s.item.Timestamp == target.item.Timestamp && s.item.Source == target.item.Source {
			return i
		}
	}
	return -1
}
