// Package index implements the triple store, the distinct-presence
// normalisation that sits in front of it, the keyed intermediate-relation
// index used for negation/disjunction/aggregation, and the watch-diff
// accumulator.
package index

// RoundDelta is a signed transition of the 0/1 presence signal at a round:
// Delta is always -1, 0 (never emitted), or +1.
type RoundDelta struct {
	Round uint32
	Delta int32
}

func sign(x int32) int32 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// getDelta is the sign-transition helper driving every distinct
// normalisation: the change in sign between two cumulative sums.
func getDelta(last, next int32) int32 {
	return sign(next) - sign(last)
}

// ensureLen grows counts so that index `round` is addressable, matching the
// original's lazily-extended per-triple count vector.
func ensureLen(counts []int32, round uint32) []int32 {
	for uint32(len(counts)) <= round {
		counts = append(counts, 0)
	}
	return counts
}

// applyDelta applies a signed Δcount at `round` to a round-indexed count
// history and returns the updated history plus every distinct delta the
// change produces, both at `round` itself and as corrections to every later
// round whose own local count is non-zero.
//
// This is the one sign-transition algorithm the whole engine relies on: it
// is shared between DistinctIndex (keyed by triple) and IntermediateIndex
// (keyed by intermediate record) because both normalise a multi-count
// history to 0/1 presence the same way.
func applyDelta(counts []int32, round uint32, delta int32) ([]int32, []RoundDelta) {
	counts = ensureLen(counts, round)

	var prefixBefore int32
	for r := uint32(0); r <= round; r++ {
		prefixBefore += counts[r]
	}
	prefixAfter := prefixBefore + delta

	var deltas []RoundDelta
	if d := getDelta(prefixBefore, prefixAfter); d != 0 {
		deltas = append(deltas, RoundDelta{Round: round, Delta: d})
	}
	counts[round] += delta

	runningWithout := prefixBefore
	for r := round + 1; r < uint32(len(counts)); r++ {
		c := counts[r]
		if c == 0 {
			continue
		}
		beforeWithout := runningWithout
		afterWithout := runningWithout + c
		beforeWith := beforeWithout + delta
		afterWith := afterWithout + delta

		tWithout := getDelta(beforeWithout, afterWithout)
		tWith := getDelta(beforeWith, afterWith)
		if tWith != tWithout {
			deltas = append(deltas, RoundDelta{Round: r, Delta: tWith - tWithout})
		}
		runningWithout = afterWithout
	}

	return counts, deltas
}

// currentDeltas reconstructs the full sequence of (round, delta) sign
// transitions a count history currently represents, independent of the
// order in which changes produced it. Used for the iterator round-trip law:
// summing this sequence must reproduce the 0/1 presence curve.
func currentDeltas(counts []int32) []RoundDelta {
	var deltas []RoundDelta
	var running int32
	for r, c := range counts {
		if c == 0 {
			continue
		}
		next := running + c
		if d := getDelta(running, next); d != 0 {
			deltas = append(deltas, RoundDelta{Round: uint32(r), Delta: d})
		}
		running = next
	}
	return deltas
}

// Triple is an (entity, attribute, value) of interned ids.
type Triple struct {
	E, A, V uint32
}

// DistinctIndex collapses multi-count histories into the 0/1 presence
// signal the rest of the engine relies on: downstream code never sees raw
// counts, only transitions of presence.
type DistinctIndex struct {
	counts map[Triple][]int32
}

func NewDistinctIndex() *DistinctIndex {
	return &DistinctIndex{counts: make(map[Triple][]int32)}
}

// Distinct applies a signed count change to triple at round and returns the
// distinct deltas it produces, see applyDelta.
func (d *DistinctIndex) Distinct(t Triple, round uint32, delta int32) []RoundDelta {
	counts, deltas := applyDelta(d.counts[t], round, delta)
	d.counts[t] = counts
	return deltas
}

// Iter reconstructs the current (round, delta) sequence for t.
func (d *DistinctIndex) Iter(t Triple) []RoundDelta {
	return currentDeltas(d.counts[t])
}

// IsPresent reports whether t's cumulative count is currently positive.
func (d *DistinctIndex) IsPresent(t Triple) bool {
	var sum int32
	for _, c := range d.counts[t] {
		sum += c
	}
	return sum > 0
}
