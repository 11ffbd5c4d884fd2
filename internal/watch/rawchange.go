package watch

import "github.com/evelang/eve-core/pkg/values"

// RawChange is spec.md §6's external transaction unit: a triple, an
// optional provenance id, and a signed count, expressed in Values rather
// than interned ids since a watcher lives outside any one Program's
// interner.
type RawChange struct {
	E, A, V values.Value
	N       values.Value // Null means "assign a fresh provenance id"
	Count   int32
}

// Outgoing accepts synthetic transactions a watcher produces — a file read,
// a JSON decode, a timer tick — feeding them back into the Program the
// watcher is attached to as an ordinary Transaction message.
type Outgoing interface {
	Post(changes []RawChange)
}
