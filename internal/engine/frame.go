package engine

import (
	"github.com/evelang/eve-core/internal/aggregate"
	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/internal/interner"
)

// Frame holds everything one evaluation of a block needs: the triggering
// change (at most one of Input/Intermediate/Remote is non-nil; none is set
// in full-scan/install mode), the current row, the shared indexes and
// interner, the aggregate state keyed by relation id, a results
// accumulator for Project, and the pool of estimate slots the solver's
// get-iterators draw from.
type Frame struct {
	Input        *index.Change
	Intermediate *IntermediateTrigger
	Remote       *index.RemoteChange

	Row          *Row
	Interner     *interner.Interner
	Hash         *index.HashIndex
	Distinct     *index.DistinctIndex
	Intermediates *index.IntermediateIndex
	RemoteIndex  *index.RemoteIndex
	RoundHolder  *index.RoundHolder
	Watches      map[string]*index.WatchIndex
	Aggregates   map[uint32]map[string]*aggregate.Entry // relation id -> group key -> entry

	Results [][]uint32

	// DirtyIntermediates accumulates every intermediate-relation change this
	// evaluation produced (from InsertIntermediate and from an aggregate's
	// result republish), for the caller to drain and use to schedule the
	// blocks that read those relations.
	DirtyIntermediates []IntermediateTrigger

	Pool *EstimateIterPool

	// NegateOutputs flips the sign of every output round a block install
	// produces, letting BlockInfo's teardown path reuse the exact same
	// full-scan Solver to retract everything a block ever derived instead
	// of needing a second, inverted join plan.
	NegateOutputs bool

	// published tracks, per (result relation id, group key), the tuple set
	// an aggregate constraint last wrote into Intermediates, so the next
	// evaluation can retract exactly what changed instead of the whole set.
	published map[uint32]map[string]map[string][]uint32
}

// IntermediateTrigger is the intermediate-relation analogue of
// index.Change: the dirty write that caused this frame to run.
type IntermediateTrigger struct {
	RelationID uint32
	Key        []uint32
	Value      []uint32
	Round      uint32
	Count      int32
}

// NewFrame allocates a frame over shared program state for one block
// evaluation. Callers reset and reuse frames across solver invocations
// rather than allocating per change.
func NewFrame(in *interner.Interner, h *index.HashIndex, d *index.DistinctIndex, ix *index.IntermediateIndex, rh *index.RoundHolder, rem *index.RemoteIndex) *Frame {
	return &Frame{
		Interner:      in,
		Hash:          h,
		Distinct:      d,
		Intermediates: ix,
		RemoteIndex:   rem,
		RoundHolder:   rh,
		Watches:       map[string]*index.WatchIndex{},
		Aggregates:    map[uint32]map[string]*aggregate.Entry{},
		Pool:          NewEstimateIterPool(),
		published:     map[uint32]map[string]map[string][]uint32{},
	}
}

// Reset clears per-evaluation state, keeping the long-lived shared
// indexes and watch/aggregate tables.
func (fr *Frame) Reset(nregs int) {
	fr.Row = NewRow(nregs)
	fr.Input = nil
	fr.Intermediate = nil
	fr.Remote = nil
	fr.Results = nil
	fr.DirtyIntermediates = nil
	fr.NegateOutputs = false
	fr.Pool.Reset()
}

// AggregateEntry returns (creating if absent) the per-group entry for a
// relation id's aggregate state, keyed by an encoded group tuple.
func (fr *Frame) AggregateEntry(relationID uint32, groupKey string, kind aggregate.Kind, limit int) *aggregate.Entry {
	groups, ok := fr.Aggregates[relationID]
	if !ok {
		groups = map[string]*aggregate.Entry{}
		fr.Aggregates[relationID] = groups
	}
	e, ok := groups[groupKey]
	if !ok {
		e = aggregate.NewEntry(kind, limit)
		groups[groupKey] = e
	}
	return e
}

// previouslyPublished returns the tuple set an aggregate last wrote for
// (relation, groupKey), or nil if this is the first evaluation.
func (fr *Frame) previouslyPublished(relation uint32, groupKey string) map[string][]uint32 {
	return fr.published[relation][groupKey]
}

// setPublished records the tuple set an aggregate just wrote for
// (relation, groupKey), replacing whatever was recorded before.
func (fr *Frame) setPublished(relation uint32, groupKey string, tuples map[string][]uint32) {
	groups, ok := fr.published[relation]
	if !ok {
		groups = map[string]map[string][]uint32{}
		fr.published[relation] = groups
	}
	groups[groupKey] = tuples
}

// Watch returns (creating if absent) the named watch index.
func (fr *Frame) Watch(name string) *index.WatchIndex {
	w, ok := fr.Watches[name]
	if !ok {
		w = index.NewWatchIndex(name)
		fr.Watches[name] = w
	}
	return w
}

// EstimateIterPool is a reusable pool of proposal slots so the join loop's
// recursion doesn't allocate a new candidate buffer at every level.
type EstimateIterPool struct {
	slots []proposal
}

func NewEstimateIterPool() *EstimateIterPool {
	return &EstimateIterPool{slots: make([]proposal, 0, 64)}
}

func (p *EstimateIterPool) Reset() { p.slots = p.slots[:0] }

// Take returns an empty proposal slot to fill, growing the pool if all 64
// initial slots are in use (join arity beyond that is rare but not an
// error).
func (p *EstimateIterPool) Take() *proposal {
	p.slots = append(p.slots, proposal{})
	return &p.slots[len(p.slots)-1]
}
