package engine

import (
	"github.com/evelang/eve-core/internal/aggregate"
	"github.com/evelang/eve-core/internal/funcs"
	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/pkg/values"
)

// proposal is what a constraint's getIterator offers the variable
// elimination loop: one or more still-unbound registers, a set of
// candidate value tuples for them, and an estimated cardinality used to
// pick the most selective proposer first.
type proposal struct {
	registers []int
	values    [][]uint32
	estimate  int
}

// opFuncs is the precomputed closure set for one constraint: which
// operation(s) it supports depends on its Kind, decided once at Solver
// construction rather than re-dispatched on every row.
type opFuncs struct {
	constraint  Constraint
	mask        uint64
	getIterator func(fr *Frame) (proposal, bool)
	accept      func(fr *Frame) bool
	getRounds   func(fr *Frame) []index.RoundDelta
	isTrigger   bool
}

// Solver is the precomputed join plan for one block, entered either by a
// specific triggering Scan/IntermediateScan/LookupRemote constraint
// (incremental mode) or with no trigger at all (full-scan mode, used at block install).
type Solver struct {
	Block       *Block
	ops         []opFuncs
	outputs     []outputFunc
	triggerKind Kind // KindScan, KindIntermediateScan or KindLookupRemote; meaningless if no trigger
}

type outputFunc func(fr *Frame, outputRounds []index.RoundDelta)

// NewSolver builds the join plan for block. triggerIdx is the index into
// block.Constraints of the constraint this entry point is specialised for,
// or -1 for the full-scan entry point used at install/uninstall.
func NewSolver(block *Block, triggerIdx int) *Solver {
	s := &Solver{Block: block}
	for i, c := range block.Constraints {
		isTrigger := i == triggerIdx
		op := opFuncs{constraint: c, isTrigger: isTrigger}
		for _, f := range c.readFields() {
			op.mask = f.registerMask(op.mask)
		}
		switch c.Kind {
		case KindScan, KindLookupCommit:
			op.getIterator = s.scanGetIterator(c)
			op.accept = s.scanAccept(c)
			op.getRounds = s.scanGetRounds(c, isTrigger, false)
		case KindAntiScan:
			op.accept = s.antiScanAccept(c)
			op.getRounds = s.scanGetRounds(c, isTrigger, true)
		case KindIntermediateScan:
			op.getIterator = s.intermediateGetIterator(c)
			op.accept = s.intermediateAccept(c)
			op.getRounds = s.intermediateGetRounds(c, isTrigger)
		case KindLookupRemote:
			op.getIterator = s.remoteGetIterator(c)
			op.accept = s.remoteAccept(c)
			op.getRounds = s.remoteGetRounds(c, isTrigger)
		case KindFunction:
			op.getIterator = s.functionGetIterator(c)
			op.accept = s.functionAccept(c)
		case KindMultiFunction:
			op.getIterator = s.multiFunctionGetIterator(c)
		case KindFilter:
			op.accept = s.filterAccept(c)
		case KindInsert:
			s.outputs = append(s.outputs, s.outputInsert(c))
		case KindRemove:
			s.outputs = append(s.outputs, s.outputCommit(c, index.ChangeRemove))
		case KindRemoveAttribute:
			s.outputs = append(s.outputs, s.outputRemoveAttribute(c))
		case KindRemoveEntity:
			s.outputs = append(s.outputs, s.outputRemoveEntity(c))
		case KindDynamicCommit:
			s.outputs = append(s.outputs, s.outputDynamicCommit(c))
		case KindInsertIntermediate:
			s.outputs = append(s.outputs, s.outputIntermediateInsert(c))
		case KindAggregate:
			s.outputs = append(s.outputs, s.outputAggregate(c))
		case KindProject:
			s.outputs = append(s.outputs, s.outputProject(c))
		case KindWatch:
			s.outputs = append(s.outputs, s.outputWatch(c))
		}
		if isTrigger {
			s.triggerKind = c.Kind
		}
		s.ops = append(s.ops, op)
	}
	return s
}

func resolveAll(fields []Field, row *Row) []uint32 {
	out := make([]uint32, len(fields))
	for i, f := range fields {
		out[i] = f.Resolve(row)
	}
	return out
}

// Run executes one evaluation of the block against fr, which must already
// have Input, Intermediate or Remote set for incremental entry points. It performs
// the trigger's moves, then the variable-elimination loop, emitting
// outputs for every fully bound, accepted row.
func (s *Solver) Run(fr *Frame) {
	fr.Row.Reset()
	if !s.applyMoves(fr) {
		return
	}
	remaining := make([]int, 0, len(s.ops))
	for i, op := range s.ops {
		if op.getIterator != nil || op.accept != nil {
			remaining = append(remaining, i)
		}
	}
	s.solve(fr, remaining)
}

// applyMoves seeds the row from the triggering change's fields and checks
// that any constant fields on the trigger constraint actually match it —
// true unless the caller mis-dispatched.
func (s *Solver) applyMoves(fr *Frame) bool {
	if fr.Input == nil && fr.Intermediate == nil && fr.Remote == nil {
		return true
	}
	for _, op := range s.ops {
		if !op.isTrigger {
			continue
		}
		c := op.constraint
		switch c.Kind {
		case KindScan:
			if !bindOrCheck(fr.Row, c.E, fr.Input.E) || !bindOrCheck(fr.Row, c.A, fr.Input.A) || !bindOrCheck(fr.Row, c.V, fr.Input.V) {
				return false
			}
		case KindIntermediateScan:
			// fr.Intermediate.Key is relation-id-prefixed (index 0 is the
			// relation id); c.Key holds only the caller's key fields, so
			// they line up against Key[1:].
			for i, f := range c.Key {
				if !bindOrCheck(fr.Row, f, fr.Intermediate.Key[i+1]) {
					return false
				}
			}
			for i, f := range c.Value {
				if !bindOrCheck(fr.Row, f, fr.Intermediate.Value[i]) {
					return false
				}
			}
		case KindLookupRemote:
			if !bindOrCheck(fr.Row, c.E, fr.Remote.E) || !bindOrCheck(fr.Row, c.A, fr.Remote.A) || !bindOrCheck(fr.Row, c.V, fr.Remote.V) {
				return false
			}
			if !bindOrCheck(fr.Row, c.For, fr.Remote.For) || !bindOrCheck(fr.Row, c.RemoteType, fr.Remote.Type) {
				return false
			}
			if !bindOrCheck(fr.Row, c.From, fr.Remote.From) || !bindOrCheck(fr.Row, c.To, fr.Remote.To) {
				return false
			}
		}
	}
	return true
}

func bindOrCheck(row *Row, f Field, val uint32) bool {
	if f.IsRegister() {
		row.Set(f.RegisterIndex(), val)
		return true
	}
	return f.Resolve(row) == val
}

// solve is the variable-elimination recursion: pick the best proposer,
// try each candidate, accept-prune, recurse; on full binding, compose
// rounds and emit outputs.
func (s *Solver) solve(fr *Frame, remaining []int) {
	if fr.Row.FullyBound(s.Block.NumRegisters) {
		if !s.runAccepts(fr, remaining) {
			return
		}
		s.finish(fr)
		return
	}

	// The chosen proposer stays in remaining: a Scan binds one register per
	// proposal, so it may still have to propose its other unbound fields.
	_, best, ok := s.pickBest(fr, remaining)
	if !ok {
		return
	}

	for _, cand := range best.values {
		for i, reg := range best.registers {
			fr.Row.Set(reg, cand[i])
		}
		if s.runAccepts(fr, remaining) {
			s.solve(fr, remaining)
		}
		for _, reg := range best.registers {
			fr.Row.Clear(reg)
		}
	}
}

func (s *Solver) pickBest(fr *Frame, remaining []int) (int, proposal, bool) {
	bestPos := -1
	var best proposal
	for pos, idx := range remaining {
		op := s.ops[idx]
		if op.getIterator == nil {
			continue
		}
		p, ok := op.getIterator(fr)
		if !ok {
			continue
		}
		if bestPos == -1 || p.estimate < best.estimate {
			bestPos = pos
			best = p
		}
	}
	return bestPos, best, bestPos != -1
}

// runAccepts runs every accept function among remaining whose registers
// are all currently bound. Calling an already-satisfied accept again is
// harmless (accepts are pure predicates), so this is simply re-checked
// after every binding rather than tracked precisely.
func (s *Solver) runAccepts(fr *Frame, remaining []int) bool {
	for _, idx := range remaining {
		op := s.ops[idx]
		if op.accept == nil {
			continue
		}
		if fr.Row.Solved()&op.mask != op.mask {
			continue
		}
		if !op.accept(fr) {
			return false
		}
	}
	return true
}

func (s *Solver) finish(fr *Frame) {
	rounds := []index.RoundDelta{{Round: 0, Delta: 1}}
	for _, op := range s.ops {
		if op.getRounds == nil {
			continue
		}
		contrib := op.getRounds(fr)
		rounds = composeRounds(rounds, contrib)
		if len(rounds) == 0 {
			return
		}
	}
	if fr.NegateOutputs {
		for i := range rounds {
			rounds[i].Delta = -rounds[i].Delta
		}
	}
	for _, out := range s.outputs {
		out(fr, rounds)
	}
}

// composeRounds implements §4.6's round composition: for every previously
// computed (r_l, c_l) and incoming (r_r, c_r), emit (max(r_l,r_r),
// c_l*c_r), then collapse same-round zero-sum runs.
func composeRounds(left, right []index.RoundDelta) []index.RoundDelta {
	if len(left) == 0 || len(right) == 0 {
		return nil
	}
	out := make([]index.RoundDelta, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			round := l.Round
			if r.Round > round {
				round = r.Round
			}
			out = append(out, index.RoundDelta{Round: round, Delta: l.Delta * r.Delta})
		}
	}
	return collapseRounds(out)
}

func collapseRounds(deltas []index.RoundDelta) []index.RoundDelta {
	byRound := map[uint32]int32{}
	order := make([]uint32, 0, len(deltas))
	for _, d := range deltas {
		if _, ok := byRound[d.Round]; !ok {
			order = append(order, d.Round)
		}
		byRound[d.Round] += d.Delta
	}
	out := make([]index.RoundDelta, 0, len(order))
	for _, r := range order {
		if c := byRound[r]; c != 0 {
			out = append(out, index.RoundDelta{Round: r, Delta: c})
		}
	}
	return out
}

// ---- Scan / AntiScan / LookupCommit ----

func (s *Solver) scanGetIterator(c Constraint) func(fr *Frame) (proposal, bool) {
	return func(fr *Frame) (proposal, bool) {
		row := fr.Row
		if c.E.Bound(row) && c.A.Bound(row) && c.V.Bound(row) {
			return proposal{}, false
		}
		e, a, v := fieldOrZero(c.E, row), fieldOrZero(c.A, row), fieldOrZero(c.V, row)
		field, ids, estimate := fr.Hash.Propose(e, a, v)
		var reg int
		switch field {
		case index.ProposeEntity:
			reg = c.E.RegisterIndex()
		case index.ProposeValue:
			reg = c.V.RegisterIndex()
		case index.ProposeAttribute:
			reg = c.A.RegisterIndex()
		default:
			return proposal{}, false
		}
		if row.IsSolved(reg) {
			return proposal{}, false
		}
		vals := make([][]uint32, len(ids))
		for i, id := range ids {
			vals[i] = []uint32{id}
		}
		return proposal{registers: []int{reg}, values: vals, estimate: estimate}, true
	}
}

func fieldOrZero(f Field, row *Row) uint32 {
	if !f.Bound(row) {
		return 0
	}
	return f.Resolve(row)
}

func (s *Solver) scanAccept(c Constraint) func(fr *Frame) bool {
	return func(fr *Frame) bool {
		e, a, v := c.E.Resolve(fr.Row), c.A.Resolve(fr.Row), c.V.Resolve(fr.Row)
		return fr.Hash.Check(e, a, v)
	}
}

// antiScanAccept is a Scan's check inverted: the row is accepted only when
// the triple is NOT present, implementing negation.
func (s *Solver) antiScanAccept(c Constraint) func(fr *Frame) bool {
	return func(fr *Frame) bool {
		e, a, v := c.E.Resolve(fr.Row), c.A.Resolve(fr.Row), c.V.Resolve(fr.Row)
		return !fr.Hash.Check(e, a, v)
	}
}

func (s *Solver) scanGetRounds(c Constraint, isTrigger, negate bool) func(fr *Frame) []index.RoundDelta {
	if negate {
		return s.antiScanGetRounds(c)
	}
	return func(fr *Frame) []index.RoundDelta {
		if isTrigger && fr.Input != nil {
			return []index.RoundDelta{{Round: fr.Input.Round, Delta: fr.Input.Count}}
		}
		e, a, v := c.E.Resolve(fr.Row), c.A.Resolve(fr.Row), c.V.Resolve(fr.Row)
		return fr.Distinct.Iter(index.Triple{E: e, A: a, V: v})
	}
}

// antiScanGetRounds computes the complement of a triple's presence curve:
// true from round 0 by default, toggled by the negation of every real
// transition the triple goes through. This is additive (merge transition
// events into one timeline), not the multiplicative composeRounds used to
// AND positive conjuncts together — negating an absent fact must leave the
// rest of the join's rounds untouched, not collapse them to nothing.
func (s *Solver) antiScanGetRounds(c Constraint) func(fr *Frame) []index.RoundDelta {
	return func(fr *Frame) []index.RoundDelta {
		e, a, v := c.E.Resolve(fr.Row), c.A.Resolve(fr.Row), c.V.Resolve(fr.Row)
		rounds := fr.Distinct.Iter(index.Triple{E: e, A: a, V: v})
		out := make([]index.RoundDelta, 0, len(rounds)+1)
		out = append(out, index.RoundDelta{Round: 0, Delta: 1})
		for _, r := range rounds {
			out = append(out, index.RoundDelta{Round: r.Round, Delta: -r.Delta})
		}
		return collapseRounds(out)
	}
}

// ---- IntermediateScan ----

func (s *Solver) intermediateGetIterator(c Constraint) func(fr *Frame) (proposal, bool) {
	return func(fr *Frame) (proposal, bool) {
		row := fr.Row
		allBound := true
		for _, f := range c.Value {
			if !f.Bound(row) {
				allBound = false
				break
			}
		}
		if allBound {
			return proposal{}, false
		}
		key := make([]uint32, 0, len(c.Key)+1)
		key = append(key, c.RelationID)
		for _, f := range c.Key {
			if !f.Bound(row) {
				return proposal{}, false // key must be fully bound to propose
			}
			key = append(key, f.Resolve(row))
		}
		candidates := fr.Intermediates.Propose(key)
		var regs []int
		for _, f := range c.Value {
			regs = append(regs, f.RegisterIndex())
		}
		vals := make([][]uint32, 0, len(candidates))
		for _, cand := range candidates {
			if len(cand) == len(regs) {
				vals = append(vals, cand)
			}
		}
		return proposal{registers: regs, values: vals, estimate: len(vals)}, true
	}
}

func (s *Solver) intermediateAccept(c Constraint) func(fr *Frame) bool {
	return func(fr *Frame) bool {
		full := make([]uint32, 0, len(c.Key)+len(c.Value)+1)
		full = append(full, c.RelationID)
		for _, f := range c.Key {
			full = append(full, f.Resolve(fr.Row))
		}
		for _, f := range c.Value {
			full = append(full, f.Resolve(fr.Row))
		}
		return fr.Intermediates.Check(full)
	}
}

func (s *Solver) intermediateGetRounds(c Constraint, isTrigger bool) func(fr *Frame) []index.RoundDelta {
	return func(fr *Frame) []index.RoundDelta {
		if isTrigger && fr.Intermediate != nil {
			return []index.RoundDelta{{Round: fr.Intermediate.Round, Delta: fr.Intermediate.Count}}
		}
		full := make([]uint32, 0, len(c.Key)+len(c.Value)+1)
		full = append(full, c.RelationID)
		for _, f := range c.Key {
			full = append(full, f.Resolve(fr.Row))
		}
		for _, f := range c.Value {
			full = append(full, f.Resolve(fr.Row))
		}
		return fr.Intermediates.Iter(full)
	}
}

// ---- LookupRemote ----

// remoteFields returns a LookupRemote constraint's seven join fields in the
// same order RemoteChange.key() encodes them, so a leading-bound prefix of
// this slice lines up with what RemoteIndex.Propose expects.
func remoteFields(c Constraint) []Field {
	return []Field{c.For, c.RemoteType, c.From, c.To, c.E, c.A, c.V}
}

// remoteGetIterator proposes candidates for a LookupRemote's leftmost
// still-unbound field, one field at a time across repeated calls as the
// join binds earlier fields first — RemoteIndex only supports prefix
// queries, so a constraint that leaves an earlier field unbound while a
// later one is already constant can't be proposed against directly; it
// falls through to remoteAccept once every field is otherwise bound.
func (s *Solver) remoteGetIterator(c Constraint) func(fr *Frame) (proposal, bool) {
	fields := remoteFields(c)
	return func(fr *Frame) (proposal, bool) {
		row := fr.Row
		prefix := make([]uint32, 0, len(fields))
		unbound := -1
		for i, f := range fields {
			if f.Bound(row) {
				prefix = append(prefix, f.Resolve(row))
				continue
			}
			unbound = i
			break
		}
		if unbound == -1 || !fields[unbound].IsRegister() {
			return proposal{}, false
		}
		candidates := fr.RemoteIndex.Propose(prefix)
		seen := map[uint32]bool{}
		vals := make([][]uint32, 0, len(candidates))
		for _, cand := range candidates {
			if len(cand) <= unbound {
				continue
			}
			v := cand[unbound]
			if seen[v] {
				continue
			}
			seen[v] = true
			vals = append(vals, []uint32{v})
		}
		return proposal{registers: []int{fields[unbound].RegisterIndex()}, values: vals, estimate: len(vals)}, true
	}
}

func (s *Solver) remoteAccept(c Constraint) func(fr *Frame) bool {
	fields := remoteFields(c)
	return func(fr *Frame) bool {
		return fr.RemoteIndex.Check(resolveAll(fields, fr.Row))
	}
}

func (s *Solver) remoteGetRounds(c Constraint, isTrigger bool) func(fr *Frame) []index.RoundDelta {
	fields := remoteFields(c)
	return func(fr *Frame) []index.RoundDelta {
		if isTrigger && fr.Remote != nil {
			return []index.RoundDelta{{Round: fr.Remote.Round, Delta: fr.Remote.Count}}
		}
		return fr.RemoteIndex.Iter(resolveAll(fields, fr.Row))
	}
}

// ---- Function / MultiFunction / Filter ----

func (s *Solver) functionGetIterator(c Constraint) func(fr *Frame) (proposal, bool) {
	return func(fr *Frame) (proposal, bool) {
		if c.Output.Bound(fr.Row) {
			return proposal{}, false
		}
		for _, p := range c.Params {
			if !p.Bound(fr.Row) {
				return proposal{}, false
			}
		}
		fn, ok := funcs.Lookup(c.Op)
		if !ok {
			return proposal{}, false
		}
		args := resolveToValues(fr, c.Params)
		result, ok := fn(args)
		if !ok {
			return proposal{}, false
		}
		id := fr.Interner.Intern(result)
		return proposal{registers: []int{c.Output.RegisterIndex()}, values: [][]uint32{{id}}, estimate: 1}, true
	}
}

func (s *Solver) functionAccept(c Constraint) func(fr *Frame) bool {
	return func(fr *Frame) bool {
		fn, ok := funcs.Lookup(c.Op)
		if !ok {
			return false
		}
		args := resolveToValues(fr, c.Params)
		result, ok := fn(args)
		if !ok {
			return false
		}
		return fr.Interner.Intern(result) == c.Output.Resolve(fr.Row)
	}
}

func (s *Solver) multiFunctionGetIterator(c Constraint) func(fr *Frame) (proposal, bool) {
	return func(fr *Frame) (proposal, bool) {
		allBound := true
		for _, out := range c.Outputs {
			if !out.Bound(fr.Row) {
				allBound = false
				break
			}
		}
		if allBound {
			return proposal{}, false
		}
		for _, p := range c.Params {
			if !p.Bound(fr.Row) {
				return proposal{}, false
			}
		}
		fn, ok := funcs.LookupMulti(c.Op)
		if !ok {
			return proposal{}, false
		}
		args := resolveToValues(fr, c.Params)
		rows, ok := fn(args)
		if !ok {
			return proposal{}, false
		}
		regs := make([]int, len(c.Outputs))
		for i, o := range c.Outputs {
			regs[i] = o.RegisterIndex()
		}
		vals := make([][]uint32, len(rows))
		for i, row := range rows {
			ids := make([]uint32, len(row))
			for j, v := range row {
				ids[j] = fr.Interner.Intern(v)
			}
			vals[i] = ids
		}
		return proposal{registers: regs, values: vals, estimate: len(vals)}, true
	}
}

func (s *Solver) filterAccept(c Constraint) func(fr *Frame) bool {
	return func(fr *Frame) bool {
		fn, ok := funcs.Lookup(c.Op)
		if !ok {
			return false
		}
		left := fr.Interner.Resolve(c.Left.Resolve(fr.Row))
		right := fr.Interner.Resolve(c.Right.Resolve(fr.Row))
		_, ok = fn([]values.Value{left, right})
		return ok
	}
}

func resolveToValues(fr *Frame, fields []Field) []values.Value {
	out := make([]values.Value, len(fields))
	for i, f := range fields {
		out[i] = fr.Interner.Resolve(f.Resolve(fr.Row))
	}
	return out
}

// ---- Outputs ----

func (s *Solver) outputInsert(c Constraint) outputFunc {
	if c.Commit {
		return s.outputCommit(c, index.ChangeInsert)
	}
	return func(fr *Frame, outputRounds []index.RoundDelta) {
		e, a, v := c.E.Resolve(fr.Row), c.A.Resolve(fr.Row), c.V.Resolve(fr.Row)
		t := index.Triple{E: e, A: a, V: v}
		for _, rd := range outputRounds {
			round := rd.Round + 1
			for _, d := range fr.Distinct.Distinct(t, round, rd.Delta) {
				fr.RoundHolder.Insert(index.Change{E: e, A: a, V: v, Round: d.Round, Count: d.Delta})
			}
		}
	}
}

func (s *Solver) outputCommit(c Constraint, typ index.ChangeType) outputFunc {
	return func(fr *Frame, outputRounds []index.RoundDelta) {
		e, a, v := c.E.Resolve(fr.Row), c.A.Resolve(fr.Row), c.V.Resolve(fr.Row)
		n := s.Block.ID * 10000
		for _, rd := range outputRounds {
			count := rd.Delta
			if typ == index.ChangeRemove {
				count = -count
			}
			fr.RoundHolder.Commit(index.Change{E: e, A: a, V: v, N: n, Round: 0, Count: count}, typ)
		}
	}
}

func (s *Solver) outputRemoveAttribute(c Constraint) outputFunc {
	return func(fr *Frame, outputRounds []index.RoundDelta) {
		e, a := c.E.Resolve(fr.Row), c.A.Resolve(fr.Row)
		n := s.Block.ID * 10000
		for _, rd := range outputRounds {
			fr.RoundHolder.Commit(index.Change{E: e, A: a, V: 0, N: n, Round: 0, Count: -rd.Delta}, index.ChangeRemove)
		}
	}
}

func (s *Solver) outputRemoveEntity(c Constraint) outputFunc {
	return func(fr *Frame, outputRounds []index.RoundDelta) {
		e := c.E.Resolve(fr.Row)
		n := s.Block.ID * 10000
		for _, rd := range outputRounds {
			fr.RoundHolder.Commit(index.Change{E: e, A: 0, V: 0, N: n, Round: 0, Count: -rd.Delta}, index.ChangeRemove)
		}
	}
}

func (s *Solver) outputDynamicCommit(c Constraint) outputFunc {
	return func(fr *Frame, outputRounds []index.RoundDelta) {
		e, a, v := c.E.Resolve(fr.Row), c.A.Resolve(fr.Row), c.V.Resolve(fr.Row)
		typeID := c.Type.Resolve(fr.Row)
		removeID := fr.Interner.InternString("remove")
		typ := index.ChangeInsert
		if typeID == removeID {
			typ = index.ChangeRemove
		}
		n := s.Block.ID * 10000
		for _, rd := range outputRounds {
			count := rd.Delta
			if typ == index.ChangeRemove {
				count = -count
			}
			fr.RoundHolder.Commit(index.Change{E: e, A: a, V: v, N: n, Round: 0, Count: count}, typ)
		}
	}
}

func (s *Solver) outputIntermediateInsert(c Constraint) outputFunc {
	return func(fr *Frame, outputRounds []index.RoundDelta) {
		key := make([]uint32, 0, len(c.Key)+1)
		key = append(key, c.RelationID)
		for _, f := range c.Key {
			key = append(key, f.Resolve(fr.Row))
		}
		value := resolveAll(c.Value, fr.Row)
		fullKey := append(append([]uint32{}, key...), value...)
		for _, rd := range outputRounds {
			for _, d := range fr.Intermediates.Distinct(fullKey, key, value, rd.Round, rd.Delta, c.Negate) {
				fr.DirtyIntermediates = append(fr.DirtyIntermediates, IntermediateTrigger{
					RelationID: c.RelationID, Key: key, Value: value, Round: d.Round, Count: d.Delta,
				})
			}
		}
	}
}

func (s *Solver) outputProject(c Constraint) outputFunc {
	return func(fr *Frame, _ []index.RoundDelta) {
		fr.Results = append(fr.Results, resolveAll(c.Registers, fr.Row))
	}
}

func (s *Solver) outputWatch(c Constraint) outputFunc {
	return func(fr *Frame, outputRounds []index.RoundDelta) {
		var total int32
		for _, rd := range outputRounds {
			total += rd.Delta
		}
		row := index.WatchRow(resolveAll(c.Registers, fr.Row))
		fr.Watch(c.WatchName).Insert(row, total)
	}
}

func (s *Solver) outputAggregate(c Constraint) outputFunc {
	return func(fr *Frame, outputRounds []index.RoundDelta) {
		groupIDs := resolveAll(c.Group, fr.Row)
		projIDs := resolveAll(c.Projection, fr.Row)
		paramIDs := resolveAll(c.AggregateParams, fr.Row)
		groupKey := index.EncodeIDs(groupIDs)
		kind := aggregate.Kind(c.AggregateKind)
		entry := fr.AggregateEntry(c.RelationID, groupKey, kind, c.AggregateLimit)

		var maxRound uint32
		for _, rd := range outputRounds {
			if rd.Round > maxRound {
				maxRound = rd.Round
			}
			switch kind {
			case aggregate.Sum, aggregate.Count, aggregate.Average:
				numeric := 1.0
				if len(paramIDs) > 0 {
					numeric = float64(fr.Interner.Resolve(paramIDs[0]).Float())
				}
				entry.AddScalar(numeric, rd.Delta)
			default:
				projValues := make([]values.Value, len(projIDs))
				for i, id := range projIDs {
					projValues[i] = fr.Interner.Resolve(id)
				}
				var val values.Value
				if len(paramIDs) > 0 {
					val = fr.Interner.Resolve(paramIDs[0])
				} else if len(projValues) > 0 {
					val = projValues[0]
				}
				entry.AddMember(rd.Round, projValues, val, rd.Delta)
			}
		}

		s.republishAggregate(fr, c, groupIDs, groupKey, kind, entry, maxRound)
	}
}

// republishAggregate recomputes the aggregate's current result tuples and
// diffs them against what was last published into the result intermediate
// relation (relation id c.RelationID+1, keyed by the group ids), retracting
// stale rows and inserting new ones so a downstream IntermediateScan
// reading that relation sees exactly the current aggregate value.
func (s *Solver) republishAggregate(fr *Frame, c Constraint, groupIDs []uint32, groupKey string, kind aggregate.Kind, entry *aggregate.Entry, round uint32) {
	resultRelation := c.RelationID + 1
	prevKey := "agg|" + groupKey
	prev := fr.previouslyPublished(resultRelation, prevKey)

	var current map[string][]uint32
	switch kind {
	case aggregate.Sum:
		current = singleValueTuple(fr, entry.SumResult())
	case aggregate.Count:
		current = singleValueTuple(fr, float64(entry.CountResult()))
	case aggregate.Average:
		if avg, ok := entry.AverageResult(); ok {
			current = singleValueTuple(fr, avg)
		} else {
			current = map[string][]uint32{}
		}
	default:
		current = map[string][]uint32{}
		for _, row := range entry.Rows(round) {
			tuple := make([]uint32, 0, len(row.Projection)+1)
			for _, p := range row.Projection {
				tuple = append(tuple, fr.Interner.Intern(p))
			}
			tuple = append(tuple, fr.Interner.Intern(row.Value))
			current[index.EncodeIDs(tuple)] = tuple
		}
	}

	for enc, tuple := range prev {
		if _, stillPresent := current[enc]; stillPresent {
			continue
		}
		s.publishAggregateTuple(fr, resultRelation, groupIDs, tuple, round, -1)
	}
	for enc, tuple := range current {
		if _, already := prev[enc]; already {
			continue
		}
		s.publishAggregateTuple(fr, resultRelation, groupIDs, tuple, round, 1)
	}
	fr.setPublished(resultRelation, prevKey, current)
}

func singleValueTuple(fr *Frame, f float64) map[string][]uint32 {
	id := fr.Interner.Intern(values.NewNumber(float32(f)))
	tuple := []uint32{id}
	return map[string][]uint32{index.EncodeIDs(tuple): tuple}
}

func (s *Solver) publishAggregateTuple(fr *Frame, relation uint32, groupIDs, valueTuple []uint32, round uint32, delta int32) {
	key := make([]uint32, 0, len(groupIDs)+1)
	key = append(key, relation)
	key = append(key, groupIDs...)
	fullKey := append(append([]uint32{}, key...), valueTuple...)
	for _, d := range fr.Intermediates.Distinct(fullKey, key, valueTuple, round, delta, false) {
		fr.DirtyIntermediates = append(fr.DirtyIntermediates, IntermediateTrigger{
			RelationID: relation, Key: key, Value: valueTuple, Round: d.Round, Count: d.Delta,
		})
	}
}
