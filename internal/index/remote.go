package index

// RemoteChange is the distinct-normalised form of a cross-Program fact: the
// same (e,a,v) triple-shaped payload as a local Change, tagged with the
// sender program's identity (for/type/from/to) so a LookupRemote constraint
// can join against it like any other scan-like source.
type RemoteChange struct {
	E, A, V            uint32
	For, Type, From, To uint32
	Round               uint32
	Count               int32
}

func (c RemoteChange) key() []uint32 {
	return []uint32{c.For, c.Type, c.From, c.To, c.E, c.A, c.V}
}

// RemoteIndex stores the distinct-normalised presence history of every
// remote fact a Program has received via RemoteTransaction, keyed the same
// way IntermediateIndex keys sub-block output: a full tuple plus a
// prefix-queryable key, so a partially-bound LookupRemote can still
// propose candidates for its unbound fields.
type RemoteIndex struct {
	counts   map[string][]int32
	entries  map[string][]uint32
	byPrefix map[string]map[string]bool
	dirty    bool
}

func NewRemoteIndex() *RemoteIndex {
	return &RemoteIndex{
		counts:   make(map[string][]int32),
		entries:  make(map[string][]uint32),
		byPrefix: make(map[string]map[string]bool),
	}
}

// Distinct applies a signed count change for one remote fact, returning the
// distinct deltas it produces.
func (ix *RemoteIndex) Distinct(c RemoteChange, round uint32, count int32) []RoundDelta {
	full := c.key()
	fk := EncodeIDs(full)

	counts, deltas := applyDelta(ix.counts[fk], round, count)
	ix.counts[fk] = counts

	if currentSum(counts) > 0 {
		ix.entries[fk] = full
		for prefixLen := 0; prefixLen < len(full); prefixLen++ {
			kk := EncodeIDs(full[:prefixLen])
			if ix.byPrefix[kk] == nil {
				ix.byPrefix[kk] = make(map[string]bool)
			}
			ix.byPrefix[kk][fk] = true
		}
	} else {
		delete(ix.entries, fk)
		for prefixLen := 0; prefixLen < len(full); prefixLen++ {
			kk := EncodeIDs(full[:prefixLen])
			if set, ok := ix.byPrefix[kk]; ok {
				delete(set, fk)
				if len(set) == 0 {
					delete(ix.byPrefix, kk)
				}
			}
		}
	}
	if len(deltas) > 0 {
		ix.dirty = true
	}
	return deltas
}

// Propose returns every currently-present full tuple whose prefix matches
// prefix, for an under-bound LookupRemote to iterate.
func (ix *RemoteIndex) Propose(prefix []uint32) [][]uint32 {
	kk := EncodeIDs(prefix)
	set := ix.byPrefix[kk]
	out := make([][]uint32, 0, len(set))
	for fk := range set {
		out = append(out, ix.entries[fk])
	}
	return out
}

// Check reports whether a fully-bound remote fact is currently present.
func (ix *RemoteIndex) Check(full []uint32) bool {
	_, ok := ix.entries[EncodeIDs(full)]
	return ok
}

// Iter reconstructs the current distinct-delta sequence for a full tuple.
func (ix *RemoteIndex) Iter(full []uint32) []RoundDelta {
	return currentDeltas(ix.counts[EncodeIDs(full)])
}

// Dirty/ClearDirty let the transaction loop know a remote write landed
// since the last evaluation pass and needs another dispatch sweep.
func (ix *RemoteIndex) Dirty() bool    { return ix.dirty }
func (ix *RemoteIndex) ClearDirty()    { ix.dirty = false }
