package aggregate

import (
	"testing"

	"github.com/evelang/eve-core/pkg/values"
)

func TestSumAddRemove(t *testing.T) {
	e := NewEntry(Sum, 0)
	e.AddScalar(1, 1)
	e.AddScalar(2, 1)
	e.AddScalar(3, 1)
	if e.SumResult() != 6 {
		t.Fatalf("expected sum 6, got %v", e.SumResult())
	}
	e.AddScalar(2, -1)
	if e.SumResult() != 4 {
		t.Fatalf("expected sum 4 after retracting 2, got %v", e.SumResult())
	}
}

func TestCountAndAverage(t *testing.T) {
	e := NewEntry(Average, 0)
	e.AddScalar(10, 1)
	e.AddScalar(20, 1)
	avg, ok := e.AverageResult()
	if !ok || avg != 15 {
		t.Fatalf("expected average 15, got %v, %v", avg, ok)
	}
}

func TestAverageEmptyGroupNoResult(t *testing.T) {
	e := NewEntry(Average, 0)
	_, ok := e.AverageResult()
	if ok {
		t.Fatalf("expected no result for an empty average group")
	}
}

func TestSortTop(t *testing.T) {
	e := NewEntry(SortTop, 2)
	for _, n := range []float32{1, 5, 3, 9, 2} {
		e.AddMember(0, []values.Value{values.NewNumber(n)}, values.NewNumber(n), 1)
	}
	rows := e.Rows(0)
	if len(rows) != 2 {
		t.Fatalf("expected top-2, got %d rows", len(rows))
	}
	if rows[0].Value.Float() != 9 || rows[1].Value.Float() != 5 {
		t.Fatalf("expected [9,5] descending, got %v, %v", rows[0].Value, rows[1].Value)
	}
}

func TestSortBottom(t *testing.T) {
	e := NewEntry(SortBottom, 2)
	for _, n := range []float32{1, 5, 3, 9, 2} {
		e.AddMember(0, []values.Value{values.NewNumber(n)}, values.NewNumber(n), 1)
	}
	rows := e.Rows(0)
	if len(rows) != 2 || rows[0].Value.Float() != 1 || rows[1].Value.Float() != 2 {
		t.Fatalf("expected [1,2] ascending, got %v", rows)
	}
}

func TestMemberRoundFiltering(t *testing.T) {
	e := NewEntry(SortTop, 10)
	e.AddMember(0, []values.Value{values.NewNumber(1)}, values.NewNumber(1), 1)
	e.AddMember(5, []values.Value{values.NewNumber(2)}, values.NewNumber(2), 1)

	if len(e.Rows(0)) != 1 {
		t.Fatalf("expected only round-0 member visible at round 0")
	}
	if len(e.Rows(5)) != 2 {
		t.Fatalf("expected both members visible by round 5")
	}
}

func TestNeedleNeighbor(t *testing.T) {
	e := NewEntry(NeedleNext, 0)
	for _, n := range []float32{1, 3, 5, 7} {
		e.AddMember(0, []values.Value{values.NewNumber(n)}, values.NewNumber(n), 1)
	}
	row, ok := e.Neighbor(0, []values.Value{values.NewNumber(4)}, true)
	if !ok || row.Value.Float() != 5 {
		t.Fatalf("expected next-after-4 to be 5, got %v, %v", row, ok)
	}
	row, ok = e.Neighbor(0, []values.Value{values.NewNumber(4)}, false)
	if !ok || row.Value.Float() != 3 {
		t.Fatalf("expected prev-before-4 to be 3, got %v, %v", row, ok)
	}
}

func TestMembershipRetraction(t *testing.T) {
	e := NewEntry(SortTop, 10)
	proj := []values.Value{values.NewNumber(1)}
	e.AddMember(0, proj, values.NewNumber(1), 1)
	if len(e.Rows(0)) != 1 {
		t.Fatalf("expected member present")
	}
	e.AddMember(0, proj, values.NewNumber(1), -1)
	if len(e.Rows(0)) != 0 {
		t.Fatalf("expected member gone after retraction")
	}
}
