// Package runtime implements spec.md §5's Program: a single-goroutine
// transaction loop owning one set of indexes, one compiled block registry,
// and the dispatch tables that turn an incoming triple, intermediate, or
// remote change into the set of blocks it must re-run. Grounded on
// original_source/src/ops.rs's Program impl and its transaction_flow /
// intermediate_flow free functions.
package runtime

import (
	"github.com/google/uuid"

	"github.com/evelang/eve-core/internal/engine"
	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/internal/interner"
	"github.com/evelang/eve-core/internal/router"
	"github.com/evelang/eve-core/internal/watch"
)

// MessageKind distinguishes the four RunLoopMessage variants spec.md §6
// names: an external fact transaction, a cross-Program remote transaction,
// a block install/uninstall, and a shutdown request.
type MessageKind int

const (
	MsgTransaction MessageKind = iota
	MsgRemoteTransaction
	MsgCodeTransaction
	MsgStop
)

// CodeAction distinguishes installing a new block from tearing one down.
type CodeAction int

const (
	CodeInstall CodeAction = iota
	CodeUninstall
)

// CodeChange is a CodeTransaction's payload: a named, already-compiled
// block to install or the name of a previously installed block to remove.
type CodeChange struct {
	Name   string
	Block  *engine.Block
	Action CodeAction
}

// RunLoopMessage is the single envelope type every Program reads off its
// inbox, grounded on ops.rs's RunLoopMessage enum.
type RunLoopMessage struct {
	Kind    MessageKind
	Changes []watch.RawChange
	Remote  *index.RemoteChange
	Code    *CodeChange
}

// trigger names one constraint, within one registered block, that a
// dispatch match should specialize a Solver against.
type trigger struct {
	blockName     string
	constraintIdx int
}

// blockInfo is a registered block's runtime state: the full-scan Solver
// used for install/uninstall sweeps, and the lazily-built, per-trigger-
// constraint specialized Solvers dispatch invokes incrementally.
type blockInfo struct {
	block    *engine.Block
	install  *engine.Solver
	triggers map[int]*engine.Solver
}

func (bi *blockInfo) ensureTrigger(idx int) {
	if _, ok := bi.triggers[idx]; !ok {
		bi.triggers[idx] = engine.NewSolver(bi.block, idx)
	}
}

// Program is one isolated Eve program: its own interner and indexes, owned
// exclusively by the goroutine running Run. The only state shared across
// goroutines is the Router's name->inbox map and each Program's own inbox
// channel — everything reachable from Program itself is single-threaded.
type Program struct {
	Name string

	interner      *interner.Interner
	hash          *index.HashIndex
	distinct      *index.DistinctIndex
	intermediates *index.IntermediateIndex
	remotes       *index.RemoteIndex
	rounds        *index.RoundHolder
	frame         *engine.Frame

	blocks map[string]*blockInfo

	tripleDispatch       map[engine.Shape][]trigger
	intermediateDispatch map[uint32][]trigger
	remoteDispatch       map[engine.RemoteShape][]trigger

	watchers map[string]watch.Watcher

	router *router.Router
	inbox  chan router.Message
}

// NewProgram allocates a Program and registers its inbox with rtr under
// name, so a LookupRemote in another Program can address it.
func NewProgram(name string, rtr *router.Router) *Program {
	in := interner.New()
	h := index.NewHashIndex()
	d := index.NewDistinctIndex()
	ix := index.NewIntermediateIndex()
	rem := index.NewRemoteIndex()
	rh := index.NewRoundHolder()
	p := &Program{
		Name:                 name,
		interner:             in,
		hash:                 h,
		distinct:             d,
		intermediates:        ix,
		remotes:              rem,
		rounds:               rh,
		frame:                engine.NewFrame(in, h, d, ix, rh, rem),
		blocks:               map[string]*blockInfo{},
		tripleDispatch:       map[engine.Shape][]trigger{},
		intermediateDispatch: map[uint32][]trigger{},
		remoteDispatch:       map[engine.RemoteShape][]trigger{},
		watchers:             map[string]watch.Watcher{},
		router:               rtr,
		inbox:                make(chan router.Message, 64),
	}
	if rtr != nil {
		rtr.Register(name, p.inbox)
	}
	return p
}

// Interner exposes the Program's interner, e.g. for a persistence layer
// replaying a log of already-interned-elsewhere values.
func (p *Program) Interner() *interner.Interner { return p.interner }

// AddWatcher attaches w under name; any Watch constraint compiled with that
// name streams its reconciled diffs to w.
func (p *Program) AddWatcher(name string, w watch.Watcher) {
	p.watchers[name] = w
}

// Post implements watch.Outgoing: a Watcher (e.g. FileWatcher reacting to a
// "read" request) feeds synthetic facts back into this same Program as an
// ordinary transaction.
func (p *Program) Post(changes []watch.RawChange) {
	p.inbox <- router.Message(RunLoopMessage{Kind: MsgTransaction, Changes: changes})
}

// Send delivers msg onto this Program's own inbox without going through
// the Router, for callers (e.g. internal/api's HTTP handlers) that already
// hold a *Program reference.
func (p *Program) Send(msg RunLoopMessage) {
	p.inbox <- router.Message(msg)
}

// Run drives the transaction loop until a Stop message arrives. Call it in
// its own goroutine; everything it touches is then single-threaded.
func (p *Program) Run() {
	for raw := range p.inbox {
		msg, ok := raw.(RunLoopMessage)
		if !ok {
			continue
		}
		if msg.Kind == MsgStop {
			if p.router != nil {
				p.router.Unregister(p.Name)
			}
			return
		}
		p.handle(msg)
	}
}

func (p *Program) handle(msg RunLoopMessage) {
	switch msg.Kind {
	case MsgTransaction:
		p.applyTransaction(msg.Changes)
	case MsgRemoteTransaction:
		if msg.Remote != nil {
			p.applyRemote(*msg.Remote)
		}
	case MsgCodeTransaction:
		if msg.Code == nil {
			return
		}
		switch msg.Code.Action {
		case CodeInstall:
			p.RegisterBlock(msg.Code.Name, msg.Code.Block)
		case CodeUninstall:
			p.UnregisterBlock(msg.Code.Name)
		}
	}
}

// applyTransaction stages one external fact transaction's changes as
// commits (round 0, provenance-keyed so repeated commits of the same fact
// coalesce) and drains the round loop to fixed point.
func (p *Program) applyTransaction(changes []watch.RawChange) {
	for _, rc := range changes {
		e := p.interner.Intern(rc.E)
		a := p.interner.Intern(rc.A)
		v := p.interner.Intern(rc.V)
		var n uint32
		if rc.N.IsNull() {
			n = p.interner.InternString(uuid.NewString())
		} else {
			n = p.interner.Intern(rc.N)
		}
		typ := index.ChangeInsert
		if rc.Count < 0 {
			typ = index.ChangeRemove
		}
		p.rounds.Commit(index.Change{E: e, A: a, V: v, N: n, Round: 0, Count: rc.Count}, typ)
	}
	p.drainRounds()
	p.reconcileWatches()
}

// applyRemote folds an incoming RemoteTransaction into the RemoteIndex and
// dispatches every LookupRemote-bearing block whose (for, type) shape
// matches, then drains any local changes those blocks produced.
func (p *Program) applyRemote(rc index.RemoteChange) {
	for _, d := range p.remotes.Distinct(rc, rc.Round, rc.Count) {
		change := rc
		change.Round = d.Round
		change.Count = d.Delta
		for _, trg := range p.triggersForRemote(rc.For, rc.Type) {
			bi, ok := p.blocks[trg.blockName]
			if !ok {
				continue
			}
			solver := bi.triggers[trg.constraintIdx]
			c := change
			p.runOne(solver, bi.block.NumRegisters, func(fr *engine.Frame) { fr.Remote = &c })
		}
	}
	p.drainRounds()
	p.reconcileWatches()
}

// RegisterBlock compiles a block into the dispatch tables and runs its
// full-scan Solver once against the Program's current state, so a newly
// installed rule picks up every fact already present — grounded on ops.rs's
// block-install full iteration.
func (p *Program) RegisterBlock(name string, block *engine.Block) {
	bi := &blockInfo{block: block, install: engine.NewSolver(block, -1), triggers: map[int]*engine.Solver{}}
	for shape, idxs := range block.TripleTriggers {
		for _, idx := range idxs {
			bi.ensureTrigger(idx)
			p.tripleDispatch[shape] = append(p.tripleDispatch[shape], trigger{name, idx})
		}
	}
	for rel, idxs := range block.IntermediateTriggers {
		for _, idx := range idxs {
			bi.ensureTrigger(idx)
			p.intermediateDispatch[rel] = append(p.intermediateDispatch[rel], trigger{name, idx})
		}
	}
	for shape, idxs := range block.RemoteTriggers {
		for _, idx := range idxs {
			bi.ensureTrigger(idx)
			p.remoteDispatch[shape] = append(p.remoteDispatch[shape], trigger{name, idx})
		}
	}
	p.blocks[name] = bi
	p.runOne(bi.install, block.NumRegisters, func(fr *engine.Frame) {})
	p.drainRounds()
	p.reconcileWatches()
}

// UnregisterBlock retracts everything the named block currently derives by
// re-running its full-scan Solver with outputs negated, then removes it
// from every dispatch table.
func (p *Program) UnregisterBlock(name string) {
	bi, ok := p.blocks[name]
	if !ok {
		return
	}
	p.runOne(bi.install, bi.block.NumRegisters, func(fr *engine.Frame) { fr.NegateOutputs = true })
	p.drainRounds()
	p.reconcileWatches()

	for shape := range bi.block.TripleTriggers {
		p.tripleDispatch[shape] = removeTrigger(p.tripleDispatch[shape], name)
	}
	for rel := range bi.block.IntermediateTriggers {
		p.intermediateDispatch[rel] = removeTrigger(p.intermediateDispatch[rel], name)
	}
	for shape := range bi.block.RemoteTriggers {
		p.remoteDispatch[shape] = removeTrigger(p.remoteDispatch[shape], name)
	}
	delete(p.blocks, name)
}

func removeTrigger(list []trigger, blockName string) []trigger {
	out := list[:0]
	for _, t := range list {
		if t.blockName != blockName {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// runOne evaluates one Solver entry point against a freshly reset frame,
// then recursively dispatches every intermediate-relation write it
// produced — an aggregate republish or a sub-block's InsertIntermediate —
// to the blocks that scan that relation, continuing until no further
// intermediate writes are produced.
func (p *Program) runOne(solver *engine.Solver, nregs int, setup func(fr *engine.Frame)) {
	p.frame.Reset(nregs)
	setup(p.frame)
	solver.Run(p.frame)

	dirty := append([]engine.IntermediateTrigger{}, p.frame.DirtyIntermediates...)
	for _, trig := range dirty {
		t := trig
		for _, trg := range p.triggersForIntermediate(t.RelationID) {
			bi, ok := p.blocks[trg.blockName]
			if !ok {
				continue
			}
			s := bi.triggers[trg.constraintIdx]
			p.runOne(s, bi.block.NumRegisters, func(fr *engine.Frame) { fr.Intermediate = &t })
		}
	}
}

// drainRounds implements spec.md §5's round-by-round transaction loop:
// apply every staged commit through DistinctIndex (expanding partial-key
// removes first), then walk the resulting rounds in ascending order,
// inserting a triple into the live HashIndex before its round's blocks run
// and removing it only after, per §4.6's edge-case ordering rule. Repeats
// until a full pass produces no further commits or round activity.
func (p *Program) drainRounds() {
	for {
		produced := p.rounds.PrepareCommits(p.distinct, p.hash)
		processedAny := false
		for r := uint32(0); r <= p.rounds.MaxRound(); r++ {
			changes := p.rounds.GetRound(r)
			if len(changes) == 0 {
				continue
			}
			processedAny = true
			for _, c := range changes {
				if c.Count > 0 {
					p.hash.Insert(c.E, c.A, c.V)
				}
			}
			for _, c := range changes {
				p.dispatchTriple(c)
			}
			for _, c := range changes {
				if c.Count < 0 {
					p.hash.Remove(c.E, c.A, c.V)
				}
			}
		}
		if !produced && !processedAny {
			return
		}
	}
}

func (p *Program) dispatchTriple(c index.Change) {
	for _, trg := range p.triggersForTriple(c.E, c.A, c.V) {
		bi, ok := p.blocks[trg.blockName]
		if !ok {
			continue
		}
		solver := bi.triggers[trg.constraintIdx]
		change := c
		p.runOne(solver, bi.block.NumRegisters, func(fr *engine.Frame) { fr.Input = &change })
	}
}

// triggersForTriple implements spec.md §4.9's three-way shape dispatch for
// triples: the live tag(s) currently held by e, crossed with the change's
// actual attribute/value and their wildcards, against every shape a
// registered block declared interest in.
func (p *Program) triggersForTriple(e, a, v uint32) []trigger {
	_, tagIDs, _ := p.hash.Propose(e, interner.TagAttr, 0)

	seen := map[trigger]bool{}
	var out []trigger
	collect := func(tag uint32) {
		for _, at := range [2]uint32{a, 0} {
			for _, vl := range [2]uint32{v, 0} {
				shape := engine.Shape{Tag: tag, Attribute: at, Value: vl}
				for _, trg := range p.tripleDispatch[shape] {
					if !seen[trg] {
						seen[trg] = true
						out = append(out, trg)
					}
				}
			}
		}
	}
	collect(0)
	for _, tag := range tagIDs {
		collect(tag)
	}
	return out
}

func (p *Program) triggersForIntermediate(relationID uint32) []trigger {
	return p.intermediateDispatch[relationID]
}

func (p *Program) triggersForRemote(forID, typeID uint32) []trigger {
	seen := map[trigger]bool{}
	var out []trigger
	for _, f := range [2]uint32{forID, 0} {
		for _, t := range [2]uint32{typeID, 0} {
			shape := engine.RemoteShape{For: f, Type: t}
			for _, trg := range p.remoteDispatch[shape] {
				if !seen[trg] {
					seen[trg] = true
					out = append(out, trg)
				}
			}
		}
	}
	return out
}

// reconcileWatches notifies every attached Watcher whose named Watch
// index changed state since the last reconciliation.
func (p *Program) reconcileWatches() {
	for name, w := range p.frame.Watches {
		if !w.Dirty() {
			continue
		}
		diff := w.Reconcile()
		if watcher, ok := p.watchers[name]; ok {
			watcher.Notify(name, diff, p.interner)
		}
	}
}
