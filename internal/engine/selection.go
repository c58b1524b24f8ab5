package engine

import (
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/lazypower/polymath/internal/store"
)

// SlotType decides how a slot picks its capabilities.
type SlotType string

const (
	SlotStandard SlotType = "standard"
	SlotWildcard SlotType = "wildcard"
	SlotCreative SlotType = "creative"
)

// SlotSchedule assigns a type to each slot of a batch. Slot numbers are
// 1-based: every wildcardFreq-th slot is a wildcard, otherwise every
// creativeFreq-th slot is creative when there are at least two interests,
// and the rest are standard.
func SlotSchedule(batchSize, wildcardFreq, creativeFreq, interestCount int) []SlotType {
	slots := make([]SlotType, batchSize)
	for i := range slots {
		n := i + 1
		switch {
		case wildcardFreq > 0 && n%wildcardFreq == 0:
			slots[i] = SlotWildcard
		case creativeFreq > 0 && n%creativeFreq == 0 && interestCount >= 2:
			slots[i] = SlotCreative
		default:
			slots[i] = SlotStandard
		}
	}
	return slots
}

// WildcardStrategy picks the capability pair of a wildcard slot.
type WildcardStrategy int

const (
	LeastUsedPair WildcardStrategy = iota
	LowStrengthPair
	RandomPair
)

func (w WildcardStrategy) String() string {
	switch w {
	case LeastUsedPair:
		return "least-used"
	case LowStrengthPair:
		return "low-strength"
	default:
		return "random"
	}
}

// WildcardStrategyFor rotates through least-used, low-strength, random,
// random, keyed by the 0-based slot index mod 4.
func WildcardStrategyFor(slotIndex int) WildcardStrategy {
	switch slotIndex % 4 {
	case 0:
		return LeastUsedPair
	case 1:
		return LowStrengthPair
	default:
		return RandomPair
	}
}

// Probabilities for standard selection.
const (
	pairProbability      = 0.6 // else a triple
	strengthWeightedPick = 0.6 // else uniform
)

// selectStandard picks 2 or 3 capabilities. Each pick is strength-weighted
// with probability 0.6 and uniform otherwise.
func selectStandard(rng *rand.Rand, caps []store.Capability) []store.Capability {
	count := 3
	if rng.Float64() < pairProbability {
		count = 2
	}
	count = min(count, len(caps))

	pool := slices.Clone(caps)
	picked := make([]store.Capability, 0, count)
	for len(picked) < count {
		var i int
		if rng.Float64() < strengthWeightedPick {
			i = weightedIndex(rng, pool)
		} else {
			i = rng.IntN(len(pool))
		}
		picked = append(picked, pool[i])
		pool = slices.Delete(pool, i, i+1)
	}
	return picked
}

// weightedIndex samples an index proportional to strength. Every capability
// keeps a small floor weight so zero-strength entries stay reachable.
func weightedIndex(rng *rand.Rand, pool []store.Capability) int {
	var total float64
	for _, c := range pool {
		total += math.Max(c.Strength, 0) + 0.1
	}
	r := rng.Float64() * total
	for i, c := range pool {
		r -= math.Max(c.Strength, 0) + 0.1
		if r < 0 {
			return i
		}
	}
	return len(pool) - 1
}

// selectLeastUsed returns the pair with the lowest combined usage whose key
// is not excluded. Ties prefer weaker capabilities, then lower IDs. Falls
// back to the overall least-used pair when every pair is excluded.
func selectLeastUsed(caps []store.Capability, usage map[int64]int, exclude func(key string) bool) []store.Capability {
	ordered := slices.Clone(caps)
	sort.SliceStable(ordered, func(i, j int) bool {
		ui, uj := usage[ordered[i].ID], usage[ordered[j].ID]
		if ui != uj {
			return ui < uj
		}
		if ordered[i].Strength != ordered[j].Strength {
			return ordered[i].Strength < ordered[j].Strength
		}
		return ordered[i].ID < ordered[j].ID
	})

	type pair struct {
		a, b  int
		score int
	}
	var pairs []pair
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			pairs = append(pairs, pair{i, j, usage[ordered[i].ID] + usage[ordered[j].ID]})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	for _, p := range pairs {
		chosen := []store.Capability{ordered[p.a], ordered[p.b]}
		if exclude == nil || !exclude(store.CombinationKey(capabilityIDs(chosen))) {
			return chosen
		}
	}
	return ordered[:2]
}

// selectLowStrength picks a random pair from the weaker half of the pool.
func selectLowStrength(rng *rand.Rand, caps []store.Capability) []store.Capability {
	ordered := slices.Clone(caps)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Strength < ordered[j].Strength })
	half := max(2, (len(ordered)+1)/2)
	return selectRandomPair(rng, ordered[:half])
}

// selectRandomPair picks two distinct capabilities uniformly.
func selectRandomPair(rng *rand.Rand, caps []store.Capability) []store.Capability {
	perm := rng.Perm(len(caps))
	return []store.Capability{caps[perm[0]], caps[perm[1]]}
}

func capabilityIDs(caps []store.Capability) []int64 {
	ids := make([]int64, len(caps))
	for i, c := range caps {
		ids[i] = c.ID
	}
	return ids
}
