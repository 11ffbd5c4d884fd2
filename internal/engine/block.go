package engine

import "github.com/evelang/eve-core/internal/interner"

// Shape is a partially bound (tag, attribute, value) triple pattern used to
// pre-index which blocks a triple change might affect. 0 in any field is a
// wildcard.
type Shape struct {
	Tag, Attribute, Value uint32
}

// Block is a compiled rule: a name, an id, its ordered constraint list, and
// the precomputed shapes dispatch uses to find it.
type Block struct {
	Name         string
	ID           uint32
	NumRegisters int
	Constraints  []Constraint

	TripleShapes       []Shape
	IntermediateShapes []uint32
	RemoteShapes       []RemoteShape

	// TripleTriggers/IntermediateTriggers/RemoteTriggers map each
	// shape/relation id/remote shape back to the constraint index a
	// dispatcher should specialize a Solver against, so a dispatch match
	// can be turned directly into a Run call.
	TripleTriggers       map[Shape][]int
	IntermediateTriggers map[uint32][]int
	RemoteTriggers       map[RemoteShape][]int
}

// RemoteShape is the LookupRemote analogue of Shape: a partially bound
// (for, type) pair identifying which peer program and remote relation kind
// a RemoteTransaction might affect. 0 in either field is a wildcard.
type RemoteShape struct {
	For, Type uint32
}

// NewBlock computes a block's shapes from its constraints and returns it
// ready for registration.
func NewBlock(name string, id uint32, numRegisters int, constraints []Constraint) *Block {
	b := &Block{Name: name, ID: id, NumRegisters: numRegisters, Constraints: constraints}
	b.computeShapes()
	return b
}

// computeShapes implements §4.9: every scan-like constraint gets a
// wildcard-tag shape, plus one shape per tag already known (from another
// Scan of the same entity register against the "tag" attribute with a
// bound value) to be required on that entity. Intermediate-relation reads
// get one shape per relation id.
func (b *Block) computeShapes() {
	tagsByRegister := map[int][]uint32{}
	for _, c := range b.Constraints {
		if c.Kind != KindScan {
			continue
		}
		if !c.A.IsRegister() && c.A.Resolve(nil) == interner.TagAttr && !c.V.IsRegister() && c.E.IsRegister() {
			reg := c.E.RegisterIndex()
			tagsByRegister[reg] = append(tagsByRegister[reg], c.V.Resolve(nil))
		}
	}

	b.TripleTriggers = map[Shape][]int{}
	b.IntermediateTriggers = map[uint32][]int{}
	b.RemoteTriggers = map[RemoteShape][]int{}

	seen := map[Shape]bool{}
	seenRemote := map[RemoteShape]bool{}
	for idx, c := range b.Constraints {
		switch c.Kind {
		case KindScan, KindAntiScan, KindLookupCommit:
			attr := fieldOrWildcard(c.A)
			val := fieldOrWildcard(c.V)
			b.addTripleShape(seen, Shape{0, attr, val}, idx)
			if c.E.IsRegister() {
				for _, tag := range tagsByRegister[c.E.RegisterIndex()] {
					b.addTripleShape(seen, Shape{tag, attr, val}, idx)
				}
			}
		case KindIntermediateScan:
			b.IntermediateShapes = appendUniqueID(b.IntermediateShapes, c.RelationID)
			b.IntermediateTriggers[c.RelationID] = appendUniqueInt(b.IntermediateTriggers[c.RelationID], idx)
		case KindLookupRemote:
			rs := RemoteShape{For: fieldOrWildcard(c.For), Type: fieldOrWildcard(c.RemoteType)}
			b.addRemoteShape(seenRemote, rs, idx)
		}
	}
}

func (b *Block) addRemoteShape(seen map[RemoteShape]bool, s RemoteShape, constraintIdx int) {
	b.RemoteTriggers[s] = appendUniqueInt(b.RemoteTriggers[s], constraintIdx)
	if seen[s] {
		return
	}
	seen[s] = true
	b.RemoteShapes = append(b.RemoteShapes, s)
}

func (b *Block) addTripleShape(seen map[Shape]bool, s Shape, constraintIdx int) {
	b.TripleTriggers[s] = appendUniqueInt(b.TripleTriggers[s], constraintIdx)
	if seen[s] {
		return
	}
	seen[s] = true
	b.TripleShapes = append(b.TripleShapes, s)
}

func appendUniqueInt(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func appendUniqueID(list []uint32, id uint32) []uint32 {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}

// fieldOrWildcard returns a constant field's id, or 0 (wildcard) for a
// register field whose value isn't known until evaluation.
func fieldOrWildcard(f Field) uint32 {
	if f.IsRegister() {
		return 0
	}
	return f.Resolve(nil)
}
