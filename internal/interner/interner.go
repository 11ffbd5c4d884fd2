// Package interner maps domain values to dense integer ids and back, the
// foundation every index and the solver build on.
package interner

import (
	"fmt"

	"github.com/evelang/eve-core/pkg/values"
)

// TagAttr is the fixed, well-known id of the pre-interned "tag" attribute
// string, matching the original runtime's convention that every entity's
// kind markers live under attribute "tag".
const TagAttr uint32 = 1

// Interner assigns dense non-negative ids to values. Id 0 is reserved for
// Null/wildcard; ids are never reused and allocation is monotonic.
type Interner struct {
	idToValue []values.Value
	valueToID map[values.Value]uint32
	nextID    uint32
}

// New returns an Interner with id 0 bound to Null and "tag" pre-interned at
// TagAttr.
func New() *Interner {
	in := &Interner{
		idToValue: make([]values.Value, 0, 64),
		valueToID: make(map[values.Value]uint32, 64),
	}
	in.idToValue = append(in.idToValue, values.Null)
	in.valueToID[values.Null] = 0
	in.nextID = 1

	id := in.Intern(values.NewString("tag"))
	if id != TagAttr {
		panic(fmt.Sprintf("interner: expected \"tag\" to intern to %d, got %d", TagAttr, id))
	}
	return in
}

// Intern returns the id for v, allocating a new one on first sight.
// intern(v1) == intern(v2) iff v1.Equal(v2).
func (in *Interner) Intern(v values.Value) uint32 {
	if v.IsNull() {
		return 0
	}
	if id, ok := in.valueToID[v]; ok {
		return id
	}
	id := in.nextID
	in.nextID++
	in.valueToID[v] = id
	in.idToValue = append(in.idToValue, v)
	return id
}

// Resolve returns the value behind id. Unknown ids are a fatal invariant
// violation — the caller handed back an id this interner never allocated.
func (in *Interner) Resolve(id uint32) values.Value {
	if id == 0 {
		return values.Null
	}
	if int(id) >= len(in.idToValue) {
		panic(fmt.Sprintf("interner: unknown id %d", id))
	}
	return in.idToValue[id]
}

// InternString is a convenience for the common case of interning a plain
// string (attribute names, op names, tags).
func (in *Interner) InternString(s string) uint32 {
	return in.Intern(values.NewString(s))
}

// InternNumber is a convenience for interning a float32 constant.
func (in *Interner) InternNumber(f float32) uint32 {
	return in.Intern(values.NewNumber(f))
}

// Len reports how many ids (including 0) have been allocated.
func (in *Interner) Len() int { return len(in.idToValue) }
