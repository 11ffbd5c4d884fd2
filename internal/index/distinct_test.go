package index

import "testing"

// These cases exercise the sign-transition algorithm against hand-verified
// sequences: a single triple driven through a series of (round, delta)
// applications, checking the distinct deltas each step produces.

func apply(t *testing.T, d *DistinctIndex, tr Triple, round uint32, delta int32) []RoundDelta {
	t.Helper()
	return d.Distinct(tr, round, delta)
}

func TestDistinctBasic(t *testing.T) {
	d := NewDistinctIndex()
	tr := Triple{1, 2, 3}

	got := apply(t, d, tr, 0, 1)
	assertDeltas(t, got, []RoundDelta{{0, 1}})

	got = apply(t, d, tr, 0, -1)
	assertDeltas(t, got, []RoundDelta{{0, -1}})
}

func TestDistinctBasic2(t *testing.T) {
	d := NewDistinctIndex()
	tr := Triple{1, 2, 3}

	apply(t, d, tr, 0, 1)
	got := apply(t, d, tr, 1, 1)
	// already present from round 0; a second independent contribution at a
	// later round doesn't change the presence signal.
	assertDeltas(t, got, nil)
}

func TestDistinctBasic2ReverseOrder(t *testing.T) {
	d := NewDistinctIndex()
	tr := Triple{1, 2, 3}

	apply(t, d, tr, 1, 1)
	got := apply(t, d, tr, 0, 1)
	// the round-0 contribution makes it present starting at round 0 instead
	// of round 1: round 0 gains a delta and round 1's original delta is
	// cancelled since the triple was already present by then.
	assertDeltas(t, got, []RoundDelta{{0, 1}, {1, -1}})
}

func TestDistinctBasic2Undone(t *testing.T) {
	d := NewDistinctIndex()
	tr := Triple{1, 2, 3}

	apply(t, d, tr, 0, 1)
	apply(t, d, tr, 1, 1)
	got := apply(t, d, tr, 0, -1)
	// removing the round-0 contribution: round 0 goes absent, but round 1's
	// own +1 keeps the triple present from round 1, so a corrective +1 must
	// appear at round 1.
	assertDeltas(t, got, []RoundDelta{{0, -1}, {1, 1}})
}

func TestDistinctBasicMultipleNegativeFirst(t *testing.T) {
	d := NewDistinctIndex()
	tr := Triple{1, 2, 3}

	got := apply(t, d, tr, 0, -1)
	assertDeltas(t, got, []RoundDelta{{0, -1}})
}

func TestDistinctSimpleRoundPromotion(t *testing.T) {
	d := NewDistinctIndex()
	tr := Triple{1, 2, 3}

	apply(t, d, tr, 1, 1)
	got := apply(t, d, tr, 0, -1)
	// round 1 was already present on its own; retracting a round-0 insert
	// that was never the reason round 1 was present emits nothing there.
	assertDeltas(t, got, []RoundDelta{{0, -1}})
}

func TestDistinctFullPromotion(t *testing.T) {
	d := NewDistinctIndex()
	tr := Triple{1, 2, 3}

	apply(t, d, tr, 0, 1)
	apply(t, d, tr, 1, -1)
	got := apply(t, d, tr, 0, -1)
	assertDeltas(t, got, []RoundDelta{{0, -1}})
}

func TestDistinctPositiveFullPromotion(t *testing.T) {
	d := NewDistinctIndex()
	tr := Triple{1, 2, 3}

	apply(t, d, tr, 0, 1)
	apply(t, d, tr, 1, 1)
	apply(t, d, tr, 0, -1)
	got := apply(t, d, tr, 1, -1)
	assertDeltas(t, got, []RoundDelta{{1, -1}})
}

func TestDistinctBasicInterleaved(t *testing.T) {
	d := NewDistinctIndex()
	tr := Triple{1, 2, 3}

	apply(t, d, tr, 0, 1)
	apply(t, d, tr, 2, 1)
	got := apply(t, d, tr, 1, -1)
	assertDeltas(t, got, []RoundDelta{{1, -1}, {2, 1}})
}

func TestDistinctIterRoundTrip(t *testing.T) {
	d := NewDistinctIndex()
	tr := Triple{5, 6, 7}
	apply(t, d, tr, 0, 1)
	apply(t, d, tr, 2, 1)
	apply(t, d, tr, 2, -1)

	var sum int32
	for _, rd := range d.Iter(tr) {
		sum += rd.Delta
	}
	present := sum > 0
	if present != d.IsPresent(tr) {
		t.Fatalf("iterator reconstruction disagrees with IsPresent: iter sum %d present %v, IsPresent %v", sum, present, d.IsPresent(tr))
	}
}

func assertDeltas(t *testing.T, got, want []RoundDelta) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("delta count mismatch: got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("delta[%d] mismatch: got %v, want %v", i, got[i], want[i])
		}
	}
}
