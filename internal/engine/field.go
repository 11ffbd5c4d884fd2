// Package engine implements the per-block join plan: constraints, the
// shape-indexed Block they compose into, and the Solver that evaluates
// them via variable elimination with cost estimates.
package engine

// Field is either a register (an index into the per-frame Row, i.e. a join
// variable) or a constant interned id resolved at compile time.
type Field struct {
	register int
	value    uint32
	isReg    bool
}

// Reg names a row register.
func Reg(r int) Field { return Field{register: r, isReg: true} }

// Val names a constant interned id.
func Val(id uint32) Field { return Field{value: id} }

func (f Field) IsRegister() bool { return f.isReg }
func (f Field) RegisterIndex() int { return f.register }

// Resolve returns the id f names, reading from row if it is a register.
func (f Field) Resolve(row *Row) uint32 {
	if f.isReg {
		return row.Get(f.register)
	}
	return f.value
}

// Bound reports whether f can be resolved right now: always true for a
// constant, true for a register only once the row has bound it.
func (f Field) Bound(row *Row) bool {
	if !f.isReg {
		return true
	}
	return row.IsSolved(f.register)
}

// registerMask ORs in f's register, if it has one, to mask.
func (f Field) registerMask(mask uint64) uint64 {
	if f.isReg {
		mask |= uint64(1) << uint(f.register)
	}
	return mask
}
