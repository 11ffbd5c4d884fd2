package index

// WatchRow is one resolved output row of a watch clause: a list of interned
// ids, one per register the clause names.
type WatchRow []uint32

// WatchDiff is what a Watcher receives: the rows that newly became present
// and the rows that newly became absent since the last reconciliation.
type WatchDiff struct {
	Adds    []WatchRow
	Removes []WatchRow
}

type watchEntry struct {
	row       WatchRow
	count     int32
	wasActive bool
}

// WatchIndex accumulates signed contributions to named output rows (the
// `do_watch` output sums counts across a derivation's output rounds) and
// reconciles them into an add/remove diff for the attached Watcher.
type WatchIndex struct {
	Name    string
	entries map[string]*watchEntry
}

func NewWatchIndex(name string) *WatchIndex {
	return &WatchIndex{Name: name, entries: make(map[string]*watchEntry)}
}

// Insert adds a signed contribution to row's running count.
func (w *WatchIndex) Insert(row WatchRow, delta int32) {
	key := EncodeIDs(row)
	e, ok := w.entries[key]
	if !ok {
		e = &watchEntry{row: row}
		w.entries[key] = e
	}
	e.count += delta
}

// Reconcile compares each row's current positive/non-positive state against
// its last-reconciled state and returns the rows that flipped, clearing
// entries that settled back to absent.
func (w *WatchIndex) Reconcile() WatchDiff {
	var diff WatchDiff
	for key, e := range w.entries {
		active := e.count > 0
		if active == e.wasActive {
			continue
		}
		if active {
			diff.Adds = append(diff.Adds, e.row)
		} else {
			diff.Removes = append(diff.Removes, e.row)
		}
		e.wasActive = active
		if !active && e.count == 0 {
			delete(w.entries, key)
		}
	}
	return diff
}

// Dirty reports whether any entry's state differs from what was last
// reconciled, letting the transaction loop skip watchers with nothing new.
func (w *WatchIndex) Dirty() bool {
	for _, e := range w.entries {
		if (e.count > 0) != e.wasActive {
			return true
		}
	}
	return false
}
