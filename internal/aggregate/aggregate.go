// Package aggregate implements the per-group running state behind Eve's
// aggregate kinds: Sum, Count, Average maintain a scalar; Sort (top/bottom),
// SortedSum, and NeedleSort (next/previous) maintain ordered per-round
// membership and emit retract/insert pairs as that membership shifts.
package aggregate

import (
	"sort"

	"github.com/evelang/eve-core/pkg/values"
)

// Kind names an aggregate operator.
type Kind string

const (
	Sum        Kind = "sum"
	Count      Kind = "count"
	Average    Kind = "average"
	SortTop    Kind = "sort-top"
	SortBottom Kind = "sort-bottom"
	SortedSum  Kind = "sorted-sum"
	NeedleNext Kind = "needle-next"
	NeedlePrev Kind = "needle-prev"
)

// member is one projection's contribution history, round-filtered like
// every other part of the engine: only rounds <= the current evaluation
// round count toward membership.
type member struct {
	projection []values.Value
	value      values.Value
	counts     map[uint32]int32
}

func (m *member) totalThrough(round uint32) int32 {
	var sum int32
	for r, c := range m.counts {
		if r <= round {
			sum += c
		}
	}
	return sum
}

// Entry is the per-group running aggregate state.
type Entry struct {
	Kind    Kind
	Limit   int // for SortTop/SortBottom
	members map[string]*member

	// scalar state for Sum/Count/Average, kept as a running total rather
	// than recomputed from members so retraction is O(1).
	sum   float64
	count int64
}

func NewEntry(kind Kind, limit int) *Entry {
	return &Entry{Kind: kind, Limit: limit, members: make(map[string]*member)}
}

func key(projection []values.Value) string {
	parts := make([]byte, 0, 16*len(projection))
	for _, p := range projection {
		parts = append(parts, []byte(p.String())...)
		parts = append(parts, 0)
	}
	return string(parts)
}

// AddScalar applies a signed contribution to Sum/Count/Average. count's
// sign determines whether this is the add or remove half of the pair
// (matching aggregate_sum_add/aggregate_sum_remove's split in the original
// runtime, collapsed into one running total since both are linear).
func (e *Entry) AddScalar(numeric float64, count int32) {
	e.sum += numeric * float64(count)
	e.count += int64(count)
}

// SumResult, CountResult, AverageResult read the scalar state. Average
// reports ok=false for an empty group, matching "no result" rather than a
// division by zero.
func (e *Entry) SumResult() float64    { return e.sum }
func (e *Entry) CountResult() int64    { return e.count }
func (e *Entry) AverageResult() (float64, bool) {
	if e.count == 0 {
		return 0, false
	}
	return e.sum / float64(e.count), true
}

// AddMember records a signed contribution to an ordered-membership
// aggregate (Sort/SortedSum/NeedleSort) at round for the given projection.
func (e *Entry) AddMember(round uint32, projection []values.Value, value values.Value, count int32) {
	k := key(projection)
	m, ok := e.members[k]
	if !ok {
		m = &member{projection: projection, value: value, counts: make(map[uint32]int32)}
		e.members[k] = m
	}
	m.counts[round] += count
}

// activeMembers returns every member whose cumulative count through round
// is positive, sorted by projection value ascending.
func (e *Entry) activeMembers(round uint32) []*member {
	var out []*member
	for _, m := range e.members {
		if m.totalThrough(round) > 0 {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessProjection(out[i].projection, out[j].projection)
	})
	return out
}

func lessProjection(a, b []values.Value) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].Equal(b[i]) {
			continue
		}
		return a[i].Less(b[i])
	}
	return len(a) < len(b)
}

// Row is one result row of an ordered aggregate: the projection fields
// (Sort/NeedleSort append them to the result key; Sum/Count/Average never
// call Row since they have no membership) plus the aggregate's value.
type Row struct {
	Projection []values.Value
	Value      values.Value
}

// Rows computes the current result set for Sort/SortedSum/NeedleSort kinds
// at round.
func (e *Entry) Rows(round uint32) []Row {
	active := e.activeMembers(round)
	switch e.Kind {
	case SortTop:
		return membersToRows(topN(active, e.Limit, true))
	case SortBottom:
		return membersToRows(topN(active, e.Limit, false))
	case SortedSum:
		return []Row{{Value: joinValues(active)}}
	case NeedleNext, NeedlePrev:
		return membersToRows(active)
	default:
		return nil
	}
}

func topN(members []*member, n int, fromTop bool) []*member {
	if fromTop {
		// activeMembers is ascending; top-N by value means the last N.
		if n <= 0 || n >= len(members) {
			return reversed(members)
		}
		return reversed(members[len(members)-n:])
	}
	if n <= 0 || n >= len(members) {
		return members
	}
	return members[:n]
}

func reversed(members []*member) []*member {
	out := make([]*member, len(members))
	for i, m := range members {
		out[len(out)-1-i] = m
	}
	return out
}

func membersToRows(members []*member) []Row {
	out := make([]Row, len(members))
	for i, m := range members {
		out[i] = Row{Projection: m.projection, Value: m.value}
	}
	return out
}

func joinValues(members []*member) values.Value {
	var parts []string
	for _, m := range members {
		parts = append(parts, m.value.String())
	}
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += ","
		}
		s += p
	}
	return values.NewString(s)
}

// Neighbor finds the member immediately after (NeedleNext) or before
// (NeedlePrev) needle in projection order, used by needle-sort aggregates
// to answer "what comes after/before this value" queries.
func (e *Entry) Neighbor(round uint32, needle []values.Value, next bool) (Row, bool) {
	active := e.activeMembers(round)
	if next {
		for _, m := range active {
			if lessProjection(needle, m.projection) {
				return Row{Projection: m.projection, Value: m.value}, true
			}
		}
		return Row{}, false
	}
	for i := len(active) - 1; i >= 0; i-- {
		m := active[i]
		if lessProjection(m.projection, needle) {
			return Row{Projection: m.projection, Value: m.value}, true
		}
	}
	return Row{}, false
}
