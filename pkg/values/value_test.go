package values

import "testing"

func TestSortOrder(t *testing.T) {
	vals := []Value{
		NewString("b"),
		Null,
		NewNumber(3.5),
		NewRecordID("x"),
		NewNumber(-1),
	}
	for i := range vals {
		for j := range vals {
			if i == j {
				continue
			}
			if vals[i].Less(vals[j]) && vals[j].Less(vals[i]) {
				t.Fatalf("Less is not antisymmetric for %v, %v", vals[i], vals[j])
			}
		}
	}
	if !Null.Less(NewNumber(-100)) {
		t.Fatalf("Null must sort before every Number")
	}
	if !NewNumber(100).Less(NewString("a")) {
		t.Fatalf("Number must sort before every String")
	}
	if !NewString("z").Less(NewRecordID("a")) {
		t.Fatalf("String must sort before RecordID")
	}
}

func TestNaturalOrder(t *testing.T) {
	if !naturalLess("item2", "item10") {
		t.Fatalf("expected item2 < item10 under natural order")
	}
	if naturalLess("item10", "item2") == false && naturalLess("item2", "item10") == false {
		t.Fatalf("natural order comparison broken")
	}
	if !naturalLess("abc", "abd") {
		t.Fatalf("plain lexical fallback broken")
	}
}

func TestNumberBitPattern(t *testing.T) {
	a := NewNumber(0.0)
	b := NewNumberBits(0x80000000) // -0.0
	if a.Equal(b) {
		t.Fatalf("0.0 and -0.0 must not be equal as distinct bit patterns")
	}
	if !a.Equal(NewNumber(0.0)) {
		t.Fatalf("identical bit patterns must be equal")
	}
}

func TestResolveNull(t *testing.T) {
	if !Null.IsNull() {
		t.Fatalf("Null.IsNull() must be true")
	}
}
