package index

import "testing"

func TestRoundHolderCoalesce(t *testing.T) {
	rh := NewRoundHolder()
	rh.Insert(Change{E: 1, A: 2, V: 3, Round: 0, Count: 1})
	rh.Insert(Change{E: 1, A: 2, V: 3, Round: 0, Count: 1})

	changes := rh.GetRound(0)
	if len(changes) != 1 {
		t.Fatalf("expected coalesced single change, got %d", len(changes))
	}
	if changes[0].Count != 2 {
		t.Fatalf("expected coalesced count 2, got %d", changes[0].Count)
	}
}

func TestRoundHolderCoalesceToZeroDrops(t *testing.T) {
	rh := NewRoundHolder()
	rh.Insert(Change{E: 1, A: 2, V: 3, Round: 0, Count: 1})
	rh.Insert(Change{E: 1, A: 2, V: 3, Round: 0, Count: -1})

	changes := rh.GetRound(0)
	if len(changes) != 0 {
		t.Fatalf("expected net-zero change to be dropped, got %v", changes)
	}
}

func TestRoundHolderPrepareCommitsFullTriple(t *testing.T) {
	rh := NewRoundHolder()
	d := NewDistinctIndex()
	h := NewHashIndex()

	rh.Commit(Change{E: 1, A: 2, V: 3, Count: 1}, ChangeInsert)
	produced := rh.PrepareCommits(d, h)
	if !produced {
		t.Fatalf("expected PrepareCommits to report a produced delta")
	}
	changes := rh.GetRound(0)
	if len(changes) != 1 || changes[0].Count != 1 {
		t.Fatalf("expected one insert delta at round 0, got %v", changes)
	}
}

func TestRoundHolderPrepareCommitsExpandsPartialRemove(t *testing.T) {
	rh := NewRoundHolder()
	d := NewDistinctIndex()
	h := NewHashIndex()

	// seed presence directly in distinct + hash index, as if a prior
	// transaction had committed these triples.
	d.Distinct(Triple{1, 2, 3}, 0, 1)
	d.Distinct(Triple{1, 2, 4}, 0, 1)
	h.Insert(1, 2, 3)
	h.Insert(1, 2, 4)

	// RemoveAttribute-shaped commit: entity 1, attribute 2, value wildcard.
	// Count -1 is the removing condition's support becoming true, so it
	// must expand against the hash index and fire.
	rh.Commit(Change{E: 1, A: 2, V: 0, Count: -1}, ChangeRemove)
	produced := rh.PrepareCommits(d, h)
	if !produced {
		t.Fatalf("expected expansion to produce retraction deltas")
	}
	changes := rh.GetRound(0)
	if len(changes) != 2 {
		t.Fatalf("expected both (1,2,3) and (1,2,4) retracted, got %v", changes)
	}
	for _, c := range changes {
		if c.Count != -1 {
			t.Fatalf("expected retraction count -1, got %d", c.Count)
		}
	}
}

func TestRoundHolderPrepareCommitsDropsPositiveCountPartialRemove(t *testing.T) {
	rh := NewRoundHolder()
	d := NewDistinctIndex()
	h := NewHashIndex()

	d.Distinct(Triple{1, 2, 3}, 0, 1)
	h.Insert(1, 2, 3)

	// Count +1 here is the mirror image of the removing condition becoming
	// newly true: support for the removal was withdrawn, not added. A
	// commit, once asserted, must not reverse itself just because the
	// search clause that produced it flips back -- this must not expand
	// or fire at all.
	rh.Commit(Change{E: 1, A: 2, V: 0, Count: 1}, ChangeRemove)
	produced := rh.PrepareCommits(d, h)
	if produced {
		t.Fatalf("expected a positive-count partial remove to be dropped, not fired")
	}
	changes := rh.GetRound(0)
	if len(changes) != 0 {
		t.Fatalf("expected no retraction, got %v", changes)
	}
}

func TestRoundHolderPrepareCommitsNoOpWhenAbsent(t *testing.T) {
	rh := NewRoundHolder()
	d := NewDistinctIndex()
	h := NewHashIndex()

	rh.Commit(Change{E: 1, A: 2, V: 3, Count: 1}, ChangeRemove)
	produced := rh.PrepareCommits(d, h)
	if produced {
		t.Fatalf("expected no-op retraction of an absent triple to produce nothing")
	}
}
