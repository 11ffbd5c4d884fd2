package engine

import (
	"testing"

	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/internal/interner"
)

type harness struct {
	in  *interner.Interner
	h   *index.HashIndex
	d   *index.DistinctIndex
	ix  *index.IntermediateIndex
	rem *index.RemoteIndex
	rh  *index.RoundHolder
	fr  *Frame
}

func newHarness(nregs int) *harness {
	in := interner.New()
	h := index.NewHashIndex()
	d := index.NewDistinctIndex()
	ix := index.NewIntermediateIndex()
	rem := index.NewRemoteIndex()
	rh := index.NewRoundHolder()
	fr := NewFrame(in, h, d, ix, rh, rem)
	fr.Reset(nregs)
	return &harness{in: in, h: h, d: d, ix: ix, rem: rem, rh: rh, fr: fr}
}

// commit inserts a triple as if it had already been committed at round 0,
// mirroring what RoundHolder.PrepareCommits would have staged before this
// frame runs.
func (hn *harness) commit(e, a, v uint32) {
	hn.h.Insert(e, a, v)
	hn.d.Distinct(index.Triple{E: e, A: a, V: v}, 0, 1)
}

func TestSolverBasicBind(t *testing.T) {
	hn := newHarness(2)
	e := hn.in.InternString("e1")
	age := hn.in.InternString("age")
	double := hn.in.InternString("double")
	thirty := hn.in.InternNumber(30)

	hn.commit(e, age, thirty)

	block := NewBlock("double-age", 7, 2, []Constraint{
		MakeScan(Reg(0), Val(age), Reg(1)),
		MakeInsert(Reg(0), Val(double), Reg(1), false),
	})
	solver := NewSolver(block, 0)

	hn.fr.Reset(2)
	hn.fr.Input = &index.Change{E: e, A: age, V: thirty, Round: 0, Count: 1}
	solver.Run(hn.fr)

	changes := hn.rh.GetRound(1)
	if len(changes) != 1 {
		t.Fatalf("expected one staged change at round 1, got %v", changes)
	}
	c := changes[0]
	if c.E != e || c.A != double || c.V != thirty || c.Count != 1 {
		t.Errorf("unexpected change: %+v", c)
	}
}

func TestSolverBasicBindRetraction(t *testing.T) {
	hn := newHarness(2)
	e := hn.in.InternString("e1")
	age := hn.in.InternString("age")
	double := hn.in.InternString("double")
	thirty := hn.in.InternNumber(30)

	hn.commit(e, age, thirty)
	block := NewBlock("double-age", 7, 2, []Constraint{
		MakeScan(Reg(0), Val(age), Reg(1)),
		MakeInsert(Reg(0), Val(double), Reg(1), false),
	})
	solver := NewSolver(block, 0)

	hn.fr.Reset(2)
	hn.fr.Input = &index.Change{E: e, A: age, V: thirty, Round: 0, Count: 1}
	solver.Run(hn.fr)
	hn.rh.GetRound(1)

	// Retraction ordering removes a triple from the live HashIndex only
	// after its round's blocks have all run, so the triple is still
	// structurally present in the index while this frame evaluates; only
	// the round/count carried by the change itself records the removal.
	hn.d.Distinct(index.Triple{E: e, A: age, V: thirty}, 0, -1)

	hn.fr.Reset(2)
	hn.fr.Input = &index.Change{E: e, A: age, V: thirty, Round: 0, Count: -1}
	solver.Run(hn.fr)
	hn.h.Remove(e, age, thirty)

	changes := hn.rh.GetRound(1)
	if len(changes) != 1 || changes[0].Count != -1 {
		t.Fatalf("expected retraction at round 1, got %v", changes)
	}
}

func TestSolverAntiScanNegation(t *testing.T) {
	hn := newHarness(1)
	e := hn.in.InternString("e1")
	blocked := hn.in.InternString("blocked")
	active := hn.in.InternString("active")
	yes := hn.in.InternString("yes")

	// e has no "blocked" attribute, so the anti-scan should pass and the
	// block should derive "active".
	block := NewBlock("unblocked", 9, 1, []Constraint{
		MakeScan(Reg(0), Val(hn.in.InternString("tag")), Val(hn.in.InternString("person"))),
		MakeAntiScan(Reg(0), Val(blocked), Val(hn.in.InternString("yes"))),
		MakeInsert(Reg(0), Val(active), Val(yes), false),
	})
	solver := NewSolver(block, 0)

	hn.commit(e, hn.in.InternString("tag"), hn.in.InternString("person"))

	hn.fr.Reset(1)
	hn.fr.Input = &index.Change{E: e, A: hn.in.InternString("tag"), V: hn.in.InternString("person"), Round: 0, Count: 1}
	solver.Run(hn.fr)

	changes := hn.rh.GetRound(1)
	if len(changes) != 1 || changes[0].A != active {
		t.Fatalf("expected active to be derived when unblocked, got %v", changes)
	}
}

func TestSolverAntiScanSuppressesWhenPresent(t *testing.T) {
	hn := newHarness(1)
	e := hn.in.InternString("e1")
	tag := hn.in.InternString("tag")
	person := hn.in.InternString("person")
	blocked := hn.in.InternString("blocked")
	yes := hn.in.InternString("yes")
	active := hn.in.InternString("active")

	hn.commit(e, tag, person)
	hn.commit(e, blocked, yes)

	block := NewBlock("unblocked", 9, 1, []Constraint{
		MakeScan(Reg(0), Val(tag), Val(person)),
		MakeAntiScan(Reg(0), Val(blocked), Val(yes)),
		MakeInsert(Reg(0), Val(active), Val(yes), false),
	})
	solver := NewSolver(block, 0)

	hn.fr.Reset(1)
	hn.fr.Input = &index.Change{E: e, A: tag, V: person, Round: 0, Count: 1}
	solver.Run(hn.fr)

	if changes := hn.rh.GetRound(1); len(changes) != 0 {
		t.Fatalf("expected no derivation when blocked is present, got %v", changes)
	}
}

func TestSolverAggregateSumRepublishesToIntermediateScan(t *testing.T) {
	hn := newHarness(2)
	e1 := hn.in.InternString("e1")
	e2 := hn.in.InternString("e2")
	amount := hn.in.InternString("amount")
	ten := hn.in.InternNumber(10)
	twenty := hn.in.InternNumber(20)

	const scanRelation uint32 = 1
	const resultRelation uint32 = 2 // aggregate's ResultRelationID = RelationID+1

	scanBlock := NewBlock("feed-sum", 20, 2, []Constraint{
		MakeScan(Reg(0), Val(amount), Reg(1)),
		MakeIntermediateInsert(scanRelation, nil, []Field{Reg(1)}, false),
	})
	scanSolver := NewSolver(scanBlock, 0)

	sumBlock := NewBlock("do-sum", 21, 1, []Constraint{
		MakeIntermediateScan(scanRelation, nil, []Field{Reg(0)}),
		MakeAggregate(scanRelation, "sum", nil, nil, []Field{Reg(0)}, nil, 0),
	})
	sumSolver := NewSolver(sumBlock, 0)

	hn.commit(e1, amount, ten)
	hn.fr.Reset(2)
	hn.fr.Input = &index.Change{E: e1, A: amount, V: ten, Round: 0, Count: 1}
	scanSolver.Run(hn.fr)

	hn.fr.Reset(1)
	hn.fr.Intermediate = &IntermediateTrigger{RelationID: scanRelation, Key: []uint32{scanRelation}, Value: []uint32{ten}, Round: 0, Count: 1}
	sumSolver.Run(hn.fr)

	entry := hn.fr.AggregateEntry(scanRelation, "", "sum", 0)
	if got := entry.SumResult(); got != 10 {
		t.Fatalf("expected running sum 10, got %v", got)
	}

	published := hn.fr.previouslyPublished(resultRelation, "agg|")
	if len(published) != 1 {
		t.Fatalf("expected exactly one published result tuple, got %v", published)
	}

	hn.commit(e2, amount, twenty)
	hn.fr.Reset(2)
	hn.fr.Input = &index.Change{E: e2, A: amount, V: twenty, Round: 0, Count: 1}
	scanSolver.Run(hn.fr)

	hn.fr.Reset(1)
	hn.fr.Intermediate = &IntermediateTrigger{RelationID: scanRelation, Key: []uint32{scanRelation}, Value: []uint32{twenty}, Round: 0, Count: 1}
	sumSolver.Run(hn.fr)

	if got := entry.SumResult(); got != 30 {
		t.Fatalf("expected running sum 30 after second contribution, got %v", got)
	}
}

func TestSolverLookupRemoteTrigger(t *testing.T) {
	hn := newHarness(2)
	peer := hn.in.InternString("pricer")
	kind := hn.in.InternString("quote")
	self := hn.in.InternString("watcher")
	eth := hn.in.InternString("eth")
	price := hn.in.InternNumber(3000)
	published := hn.in.InternString("published-price")

	block := NewBlock("mirror-quote", 30, 2, []Constraint{
		MakeRemoteLookup(Reg(0), Val(eth), Reg(1), Val(peer), Val(kind), Val(self), Val(self)),
		MakeInsert(Reg(0), Val(published), Reg(1), false),
	})
	solver := NewSolver(block, 0)

	rc := index.RemoteChange{E: hn.in.InternString("spot"), A: eth, V: price, For: peer, Type: kind, From: self, To: self, Round: 0, Count: 1}
	hn.rem.Distinct(rc, 0, 1)

	hn.fr.Reset(2)
	hn.fr.Remote = &rc
	solver.Run(hn.fr)

	changes := hn.rh.GetRound(1)
	if len(changes) != 1 || changes[0].A != published || changes[0].V != price {
		t.Fatalf("expected published price to be derived from the remote quote, got %v", changes)
	}
}

func TestSolverLookupRemoteJoinProposesUnboundPeer(t *testing.T) {
	hn := newHarness(2)
	peer := hn.in.InternString("pricer")
	kind := hn.in.InternString("quote")
	self := hn.in.InternString("watcher")
	eth := hn.in.InternString("eth")
	price := hn.in.InternNumber(3000)
	tag := hn.in.InternString("tag")
	asked := hn.in.InternString("ask-quote")
	published := hn.in.InternString("published-price")

	rc := index.RemoteChange{E: hn.in.InternString("spot"), A: eth, V: price, For: peer, Type: kind, From: self, To: self}
	hn.rem.Distinct(rc, 0, 1)

	e := hn.in.InternString("e1")
	hn.commit(e, tag, asked)

	// The local scan binds e, and the remote lookup joins against the
	// remote fact's e/a/v via a constant attribute, proposing its own
	// unbound value register from RemoteIndex.
	block := NewBlock("join-remote", 31, 2, []Constraint{
		MakeScan(Reg(0), Val(tag), Val(asked)),
		MakeRemoteLookup(Val(hn.in.InternString("spot")), Val(eth), Reg(1), Val(peer), Val(kind), Val(self), Val(self)),
		MakeInsert(Reg(0), Val(published), Reg(1), false),
	})
	solver := NewSolver(block, 0)

	hn.fr.Reset(2)
	hn.fr.Input = &index.Change{E: e, A: tag, V: asked, Round: 0, Count: 1}
	solver.Run(hn.fr)

	changes := hn.rh.GetRound(1)
	if len(changes) != 1 || changes[0].A != published || changes[0].V != price {
		t.Fatalf("expected joined remote price to be derived, got %v", changes)
	}
}
