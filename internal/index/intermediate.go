package index

import (
	"encoding/binary"
)

// EncodeIDs packs a tuple of interned ids into a comparable map key. Order
// matters and is preserved.
func EncodeIDs(ids []uint32) string {
	buf := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(buf[i*4:], id)
	}
	return string(buf)
}

type intermediateEntry struct {
	key   []uint32
	value []uint32
}

// IntermediateIndex stores keyed records produced by sub-blocks (negation,
// disjunction, aggregation) with the same round-indexed distinct
// normalisation DistinctIndex applies to triples, but keyed by an arbitrary
// id tuple instead of (e,a,v). The first field of key names the
// intermediate relation (an aggregate-scan or sub-block id); the remainder
// is the group/value tuple the relation is keyed on.
type IntermediateIndex struct {
	counts   map[string][]int32
	entries  map[string]intermediateEntry
	byPrefix map[string]map[string]bool
	dirty    map[uint32]bool
}

func NewIntermediateIndex() *IntermediateIndex {
	return &IntermediateIndex{
		counts:   make(map[string][]int32),
		entries:  make(map[string]intermediateEntry),
		byPrefix: make(map[string]map[string]bool),
		dirty:    make(map[uint32]bool),
	}
}

func currentSum(counts []int32) int32 {
	var sum int32
	for _, c := range counts {
		sum += c
	}
	return sum
}

// Distinct applies a signed count change to an intermediate record,
// producing distinct deltas just like DistinctIndex.Distinct. negate flips
// the sign of count, as InsertIntermediate's negate flag requires (§4.5,
// §8 boundary behaviours). fullKey must be key's bytes followed by value's.
func (ix *IntermediateIndex) Distinct(fullKey, key, value []uint32, round uint32, count int32, negate bool) []RoundDelta {
	if negate {
		count = -count
	}
	fk := EncodeIDs(fullKey)
	kk := EncodeIDs(key)

	counts, deltas := applyDelta(ix.counts[fk], round, count)
	ix.counts[fk] = counts

	if currentSum(counts) > 0 {
		ix.entries[fk] = intermediateEntry{key: key, value: value}
		if ix.byPrefix[kk] == nil {
			ix.byPrefix[kk] = make(map[string]bool)
		}
		ix.byPrefix[kk][fk] = true
	} else {
		delete(ix.entries, fk)
		if set, ok := ix.byPrefix[kk]; ok {
			delete(set, fk)
			if len(set) == 0 {
				delete(ix.byPrefix, kk)
			}
		}
	}

	if len(key) > 0 {
		ix.dirty[key[0]] = true
	}
	return deltas
}

// Propose returns the value tuples of every currently-present record whose
// key matches the given prefix, used to join an IntermediateScan constraint
// against the index.
func (ix *IntermediateIndex) Propose(key []uint32) [][]uint32 {
	kk := EncodeIDs(key)
	set := ix.byPrefix[kk]
	out := make([][]uint32, 0, len(set))
	for fk := range set {
		out = append(out, ix.entries[fk].value)
	}
	return out
}

// Check reports whether a full (key, value) tuple is currently present.
func (ix *IntermediateIndex) Check(fullKey []uint32) bool {
	_, ok := ix.entries[EncodeIDs(fullKey)]
	return ok
}

// Iter reconstructs the current distinct-delta sequence for a full key,
// mirroring DistinctIndex.Iter.
func (ix *IntermediateIndex) Iter(fullKey []uint32) []RoundDelta {
	return currentDeltas(ix.counts[EncodeIDs(fullKey)])
}

// DrainDirty returns every relation id that received a write since the last
// drain and clears the dirty set, letting the transaction loop know which
// blocks reading those relations must be re-run.
func (ix *IntermediateIndex) DrainDirty() []uint32 {
	out := make([]uint32, 0, len(ix.dirty))
	for id := range ix.dirty {
		out = append(out, id)
	}
	ix.dirty = make(map[uint32]bool)
	return out
}
