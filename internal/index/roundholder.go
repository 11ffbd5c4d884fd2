package index

// ChangeType distinguishes a staged commit's direction; it is orthogonal to
// Change.Count's sign because a partial-key remove (e,_,_) or (e,a,_)
// doesn't know its count until it is expanded against the HashIndex.
type ChangeType int

const (
	ChangeInsert ChangeType = iota
	ChangeRemove
)

// Change is the engine's 7-tuple unit of propagation: a triple plus
// provenance, round, transaction and signed count.
type Change struct {
	E, A, V     uint32
	N           uint32
	Round       uint32
	Transaction uint32
	Count       int32
}

func (c Change) Triple() Triple { return Triple{c.E, c.A, c.V} }

type commitKey struct {
	N       uint32
	E, A, V uint32
}

type stagedCommit struct {
	typ    ChangeType
	change Change
}

// RoundHolder stages pending changes per round and pending commits per
// provenance node, and drives commits through a DistinctIndex between
// evaluation frames.
type RoundHolder struct {
	rounds   []map[Triple]Change
	commits  map[commitKey]stagedCommit
	maxRound uint32
}

func NewRoundHolder() *RoundHolder {
	return &RoundHolder{commits: make(map[commitKey]stagedCommit)}
}

func (rh *RoundHolder) ensureRound(r uint32) {
	for uint32(len(rh.rounds)) <= r {
		rh.rounds = append(rh.rounds, nil)
	}
	if rh.rounds[r] == nil {
		rh.rounds[r] = make(map[Triple]Change)
	}
	if r > rh.maxRound {
		rh.maxRound = r
	}
}

// Insert stages a change at its round, coalescing with any pending change
// for the same triple at that round by summing counts.
func (rh *RoundHolder) Insert(c Change) {
	rh.ensureRound(c.Round)
	t := c.Triple()
	if existing, ok := rh.rounds[c.Round][t]; ok {
		existing.Count += c.Count
		rh.rounds[c.Round][t] = existing
	} else {
		rh.rounds[c.Round][t] = c
	}
}

// Commit stages a change into the commit table, keyed by its provenance
// node so repeated commits of the same fact coalesce to the latest intent.
func (rh *RoundHolder) Commit(c Change, typ ChangeType) {
	rh.commits[commitKey{c.N, c.E, c.A, c.V}] = stagedCommit{typ: typ, change: c}
}

// MaxRound reports the highest round index with any staged activity.
func (rh *RoundHolder) MaxRound() uint32 { return rh.maxRound }

// GetRound drains round r's pending changes (dropping any that coalesced
// to a net-zero count) and clears it.
func (rh *RoundHolder) GetRound(r uint32) []Change {
	if uint32(len(rh.rounds)) <= r || rh.rounds[r] == nil {
		return nil
	}
	m := rh.rounds[r]
	rh.rounds[r] = nil
	out := make([]Change, 0, len(m))
	for _, c := range m {
		if c.Count != 0 {
			out = append(out, c)
		}
	}
	return out
}

// Clear discards all staged rounds and commits.
func (rh *RoundHolder) Clear() {
	rh.rounds = nil
	rh.commits = make(map[commitKey]stagedCommit)
	rh.maxRound = 0
}

// PrepareCommits applies every staged commit through distinct. A commit is
// directional and does not reverse itself just because the search clause
// that produced it later flips sign: an Insert-type commit only takes
// effect while its staged count is positive, a Remove-type commit only
// while its staged count is negative. The opposite sign for either type is
// silently dropped, mirroring ops.rs's prepare_commits two-pass structure.
// It returns true iff any commit produced a distinct delta, signalling the
// transaction loop must run another evaluation frame.
func (rh *RoundHolder) PrepareCommits(distinct *DistinctIndex, hindex *HashIndex) bool {
	staged := rh.commits
	rh.commits = make(map[commitKey]stagedCommit)

	collapsed := make(map[commitKey]Change)

	// First pass: expand partial-key removes (RemoveAttribute/RemoveEntity)
	// against the live HashIndex into every full triple they currently
	// address. The pre-expansion count must still be negative — a positive
	// count here is the mirror image of the removing condition becoming
	// newly true, i.e. support for the removal was withdrawn, not added,
	// and must not expand at all. Every staged partial-key remove is
	// resolved in this pass (fired or dropped) and removed from staged so
	// the second pass only ever sees full-key commits.
	for key, sc := range staged {
		if sc.typ != ChangeRemove || (sc.change.A != 0 && sc.change.V != 0) {
			continue
		}
		if sc.change.Count < 0 {
			for _, t := range rh.expandCommit(sc, hindex) {
				if !distinct.IsPresent(t) {
					continue
				}
				c := sc.change
				c.E, c.A, c.V = t.E, t.A, t.V
				collapsed[commitKey{c.N, c.E, c.A, c.V}] = c
			}
		}
		delete(staged, key)
	}

	// Second pass: remaining (full-key) commits, gated on direction.
	for _, sc := range staged {
		switch {
		case sc.typ == ChangeInsert && sc.change.Count > 0:
			collapsed[commitKey{sc.change.N, sc.change.E, sc.change.A, sc.change.V}] = sc.change
		case sc.typ == ChangeRemove && sc.change.Count < 0:
			collapsed[commitKey{sc.change.N, sc.change.E, sc.change.A, sc.change.V}] = sc.change
		}
	}

	produced := false
	for _, c := range collapsed {
		deltas := distinct.Distinct(c.Triple(), 0, c.Count)
		for _, d := range deltas {
			produced = true
			rh.Insert(Change{
				E: c.E, A: c.A, V: c.V,
				N:           c.N,
				Round:       d.Round,
				Transaction: c.Transaction,
				Count:       d.Delta,
			})
		}
	}
	return produced
}

// expandCommit turns a staged commit's possibly-partial key into the full
// set of triples it actually addresses: inserts are always fully bound;
// removes with a free value or free attribute+value expand against the
// live HashIndex (RemoveAttribute / RemoveEntity semantics).
func (rh *RoundHolder) expandCommit(sc stagedCommit, hindex *HashIndex) []Triple {
	c := sc.change
	if sc.typ == ChangeInsert || (c.A != 0 && c.V != 0) {
		return []Triple{{c.E, c.A, c.V}}
	}
	var out []Triple
	if c.A == 0 {
		_, attrs, _ := hindex.Propose(c.E, 0, 0)
		for _, a := range attrs {
			_, vals, _ := hindex.Propose(c.E, a, 0)
			for _, v := range vals {
				out = append(out, Triple{c.E, a, v})
			}
		}
		return out
	}
	_, vals, _ := hindex.Propose(c.E, c.A, 0)
	for _, v := range vals {
		out = append(out, Triple{c.E, c.A, v})
	}
	return out
}
