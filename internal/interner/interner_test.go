package interner

import (
	"testing"

	"github.com/evelang/eve-core/pkg/values"
)

func TestInternResolveRoundTrip(t *testing.T) {
	in := New()
	cases := []values.Value{
		values.NewString("hello"),
		values.NewNumber(3.14),
		values.NewRecordID("e1"),
		values.Null,
	}
	for _, v := range cases {
		id := in.Intern(v)
		got := in.Resolve(id)
		if !got.Equal(v) {
			t.Fatalf("resolve(intern(%v)) = %v, want %v", v, got, v)
		}
	}
}

func TestInternIdempotent(t *testing.T) {
	in := New()
	a := in.Intern(values.NewString("same"))
	b := in.Intern(values.NewString("same"))
	if a != b {
		t.Fatalf("interning the same value twice must return the same id: %d != %d", a, b)
	}
}

func TestInternDistinct(t *testing.T) {
	in := New()
	a := in.Intern(values.NewString("foo"))
	b := in.Intern(values.NewString("bar"))
	if a == b {
		t.Fatalf("distinct values must not share an id")
	}
}

func TestTagPreinterned(t *testing.T) {
	in := New()
	id := in.Intern(values.NewString("tag"))
	if id != TagAttr {
		t.Fatalf("\"tag\" must intern to the well-known TagAttr id %d, got %d", TagAttr, id)
	}
}

func TestNullIsZero(t *testing.T) {
	in := New()
	if in.Intern(values.Null) != 0 {
		t.Fatalf("Null must always intern to id 0")
	}
	if !in.Resolve(0).IsNull() {
		t.Fatalf("id 0 must resolve to Null")
	}
}

func TestResolveUnknownPanics(t *testing.T) {
	in := New()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on unknown id")
		}
	}()
	in.Resolve(9999)
}
