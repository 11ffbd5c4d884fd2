// Package watch implements the Watcher contract (spec.md §6): a sink a
// Program's transaction loop hands every named watch clause's reconciled
// WatchDiff to, resolved through the Program's interner so the watcher sees
// real values rather than interned ids.
package watch

import (
	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/internal/interner"
)

// Watcher receives the reconciled add/remove diff for one named watch
// block output, each time the transaction loop settles.
type Watcher interface {
	Notify(name string, diff index.WatchDiff, in *interner.Interner)
}
