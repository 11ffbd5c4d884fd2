package index

import "fmt"

// HashIndexLevel is the per-attribute bucket of a HashIndex: bidirectional
// entity<->value maps plus the flat distinct-entity and distinct-value
// lists used to estimate proposal cardinality.
type HashIndexLevel struct {
	e  map[uint32][]uint32
	v  map[uint32][]uint32
	es []uint32
	vs []uint32
}

func newHashIndexLevel() *HashIndexLevel {
	return &HashIndexLevel{e: map[uint32][]uint32{}, v: map[uint32][]uint32{}}
}

func appendUnique(list []uint32, id uint32) []uint32 {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}

func removeFromSlice(list []uint32, id uint32) []uint32 {
	for i, x := range list {
		if x == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (l *HashIndexLevel) insert(e, v uint32) {
	if _, ok := l.e[e]; !ok {
		l.es = appendUnique(l.es, e)
	}
	l.e[e] = appendUnique(l.e[e], v)
	if _, ok := l.v[v]; !ok {
		l.vs = appendUnique(l.vs, v)
	}
	l.v[v] = appendUnique(l.v[v], e)
}

func (l *HashIndexLevel) remove(e, v uint32) {
	if vs, ok := l.e[e]; ok {
		vs = removeFromSlice(vs, v)
		if len(vs) == 0 {
			delete(l.e, e)
			l.es = removeFromSlice(l.es, e)
		} else {
			l.e[e] = vs
		}
	}
	if es, ok := l.v[v]; ok {
		es = removeFromSlice(es, e)
		if len(es) == 0 {
			delete(l.v, v)
			l.vs = removeFromSlice(l.vs, v)
		} else {
			l.v[v] = es
		}
	}
}

func (l *HashIndexLevel) check(e, v uint32) bool {
	switch {
	case e != 0 && v != 0:
		for _, x := range l.e[e] {
			if x == v {
				return true
			}
		}
		return false
	case e != 0:
		return len(l.e[e]) > 0
	case v != 0:
		return len(l.v[v]) > 0
	default:
		return len(l.es) > 0
	}
}

func (l *HashIndexLevel) findValues(e uint32) []uint32 { return l.e[e] }
func (l *HashIndexLevel) findEntities(v uint32) []uint32 { return l.v[v] }

// HashIndex stores (e,a,v) triples, indexed by attribute and then
// bidirectionally by entity and value. It only ever holds distinct (0/1)
// presence — callers feed it transitions produced by a DistinctIndex, never
// raw counts.
type HashIndex struct {
	attrs     map[uint32]*HashIndexLevel
	attrsList []uint32
	eavs      map[Triple]bool
}

func NewHashIndex() *HashIndex {
	return &HashIndex{attrs: map[uint32]*HashIndexLevel{}, eavs: map[Triple]bool{}}
}

func (h *HashIndex) level(a uint32) *HashIndexLevel {
	l, ok := h.attrs[a]
	if !ok {
		l = newHashIndexLevel()
		h.attrs[a] = l
		h.attrsList = appendUnique(h.attrsList, a)
	}
	return l
}

// Insert adds a triple. a, e, and v must all be non-zero (a real attribute,
// entity, and value); 0 is reserved for wildcard queries only.
func (h *HashIndex) Insert(e, a, v uint32) {
	t := Triple{e, a, v}
	if h.eavs[t] {
		return
	}
	h.level(a).insert(e, v)
	h.eavs[t] = true
}

// Remove drops a triple.
func (h *HashIndex) Remove(e, a, v uint32) {
	t := Triple{e, a, v}
	if !h.eavs[t] {
		return
	}
	if l, ok := h.attrs[a]; ok {
		l.remove(e, v)
		if len(l.es) == 0 {
			delete(h.attrs, a)
			h.attrsList = removeFromSlice(h.attrsList, a)
		}
	}
	delete(h.eavs, t)
}

// Check reports triple membership. 0 in e or v means wildcard over that
// field; a must be bound — there is no index to answer a free-attribute
// membership query efficiently, matching the original runtime's contract.
func (h *HashIndex) Check(e, a, v uint32) bool {
	if a == 0 {
		panic(fmt.Sprintf("index: Check called with free attribute (e=%d,v=%d)", e, v))
	}
	l, ok := h.attrs[a]
	if !ok {
		return false
	}
	return l.check(e, v)
}

// ProposeField names which field Propose filled in.
type ProposeField int

const (
	ProposeNone ProposeField = iota
	ProposeEntity
	ProposeAttribute
	ProposeValue
)

// Propose returns, for a partially bound (e,a,v) pattern (0 = unbound), the
// single free field and candidate ids for it, with an estimated
// cardinality. If every field is already bound, field is ProposeNone and
// the caller should use Check instead.
func (h *HashIndex) Propose(e, a, v uint32) (field ProposeField, ids []uint32, estimate int) {
	if a == 0 {
		return ProposeAttribute, h.attrsList, len(h.attrsList)
	}
	l, ok := h.attrs[a]
	if !ok {
		switch {
		case e == 0 && v != 0:
			return ProposeEntity, nil, 0
		case e != 0 && v == 0:
			return ProposeValue, nil, 0
		default:
			return ProposeNone, nil, 0
		}
	}
	switch {
	case e == 0 && v == 0:
		if len(l.es) <= len(l.vs) {
			return ProposeEntity, l.es, len(l.es)
		}
		return ProposeValue, l.vs, len(l.vs)
	case e != 0 && v == 0:
		vs := l.findValues(e)
		return ProposeValue, vs, len(vs)
	case e == 0 && v != 0:
		es := l.findEntities(v)
		return ProposeEntity, es, len(es)
	default:
		return ProposeNone, nil, 0
	}
}
