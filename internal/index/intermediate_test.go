package index

import "testing"

func TestIntermediateDistinctAndPropose(t *testing.T) {
	ix := NewIntermediateIndex()
	relID := uint32(7)
	key := []uint32{relID, 100} // relation id + group key
	value := []uint32{200}
	fullKey := append(append([]uint32{}, key...), value...)

	ix.Distinct(fullKey, key, value, 0, 1, false)

	got := ix.Propose(key)
	if len(got) != 1 || got[0][0] != 200 {
		t.Fatalf("expected one proposed value [200], got %v", got)
	}
	if !ix.Check(fullKey) {
		t.Fatalf("expected fullKey present")
	}
}

func TestIntermediateNegateFlipsSign(t *testing.T) {
	ix := NewIntermediateIndex()
	key := []uint32{1, 2}
	value := []uint32{3}
	fullKey := []uint32{1, 2, 3}

	// a negated insert of a positive count retracts it immediately: net
	// contribution is -1, so the record never becomes present.
	ix.Distinct(fullKey, key, value, 0, 1, true)
	if ix.Check(fullKey) {
		t.Fatalf("expected fullKey absent after negated insert")
	}
}

func TestIntermediateRetractRemovesFromPropose(t *testing.T) {
	ix := NewIntermediateIndex()
	key := []uint32{1, 2}
	value := []uint32{3}
	fullKey := []uint32{1, 2, 3}

	ix.Distinct(fullKey, key, value, 0, 1, false)
	ix.Distinct(fullKey, key, value, 0, -1, false)

	if ix.Check(fullKey) {
		t.Fatalf("expected fullKey absent after retraction")
	}
	if got := ix.Propose(key); len(got) != 0 {
		t.Fatalf("expected no proposed values after retraction, got %v", got)
	}
}

func TestIntermediateDirtyTracksRelation(t *testing.T) {
	ix := NewIntermediateIndex()
	key := []uint32{42, 2}
	value := []uint32{3}
	fullKey := []uint32{42, 2, 3}

	ix.Distinct(fullKey, key, value, 0, 1, false)
	dirty := ix.DrainDirty()
	if len(dirty) != 1 || dirty[0] != 42 {
		t.Fatalf("expected relation 42 dirty, got %v", dirty)
	}
	if drained := ix.DrainDirty(); len(drained) != 0 {
		t.Fatalf("expected dirty set empty after drain, got %v", drained)
	}
}

func TestWatchIndexReconcile(t *testing.T) {
	w := NewWatchIndex("result")
	row := WatchRow{1, 2}

	w.Insert(row, 1)
	diff := w.Reconcile()
	if len(diff.Adds) != 1 || len(diff.Removes) != 0 {
		t.Fatalf("expected one add, got %+v", diff)
	}

	w.Insert(row, -1)
	diff = w.Reconcile()
	if len(diff.Removes) != 1 || len(diff.Adds) != 0 {
		t.Fatalf("expected one remove, got %+v", diff)
	}
}

func TestWatchIndexNoChangeNoDiff(t *testing.T) {
	w := NewWatchIndex("result")
	row := WatchRow{1}
	w.Insert(row, 1)
	w.Reconcile()

	w.Insert(row, 1) // still positive, no transition
	diff := w.Reconcile()
	if len(diff.Adds) != 0 || len(diff.Removes) != 0 {
		t.Fatalf("expected no diff on steady state, got %+v", diff)
	}
}
