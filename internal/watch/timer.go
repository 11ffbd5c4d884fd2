package watch

import (
	"fmt"
	"sync"
	"time"

	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/internal/interner"
	"github.com/evelang/eve-core/pkg/values"
)

type timerEntry struct {
	refs int
	stop chan struct{}
}

// TimerWatcher implements the "system/timer" watch block: an added (id,
// resolution) row starts a ticker at that millisecond resolution, posting a
// synthetic transaction every tick; removing the last reference to a given
// resolution stops its ticker. Grounded on the original runtime's
// SystemTimerWatcher, using a time.Ticker goroutine per resolution instead
// of a dedicated OS thread.
type TimerWatcher struct {
	outgoing Outgoing

	mu     sync.Mutex
	timers map[uint32]*timerEntry
}

func NewTimerWatcher(outgoing Outgoing) *TimerWatcher {
	return &TimerWatcher{outgoing: outgoing, timers: map[uint32]*timerEntry{}}
}

func (w *TimerWatcher) Notify(name string, diff index.WatchDiff, in *interner.Interner) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, row := range diff.Removes {
		if len(row) < 2 {
			continue
		}
		resID := row[1]
		entry, ok := w.timers[resID]
		if !ok {
			continue
		}
		entry.refs--
		if entry.refs <= 0 {
			close(entry.stop)
			delete(w.timers, resID)
		}
	}

	for _, row := range diff.Adds {
		if len(row) < 2 {
			continue
		}
		resID := row[1]
		if entry, ok := w.timers[resID]; ok {
			entry.refs++
			continue
		}
		resolution := in.Resolve(resID)
		millis := time.Duration(resolution.Float())
		entry := &timerEntry{refs: 1, stop: make(chan struct{})}
		w.timers[resID] = entry
		id := fmt.Sprintf("system/timer/change/%d", row[0])
		go w.run(id, resolution, millis*time.Millisecond, entry.stop)
	}
}

func (w *TimerWatcher) run(id string, resolution values.Value, d time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	var tick int
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			changes := []RawChange{
				{E: values.NewRecordID(id), A: values.NewString("tag"), V: values.NewString("system/timer/change"), N: values.NewString("system/timer"), Count: 1},
				{E: values.NewRecordID(id), A: values.NewString("resolution"), V: resolution, N: values.NewString("system/timer"), Count: 1},
				{E: values.NewRecordID(id), A: values.NewString("hour"), V: values.NewNumber(float32(now.Hour())), N: values.NewString("system/timer"), Count: 1},
				{E: values.NewRecordID(id), A: values.NewString("minute"), V: values.NewNumber(float32(now.Minute())), N: values.NewString("system/timer"), Count: 1},
				{E: values.NewRecordID(id), A: values.NewString("second"), V: values.NewNumber(float32(now.Second())), N: values.NewString("system/timer"), Count: 1},
				{E: values.NewRecordID(id), A: values.NewString("tick"), V: values.NewNumber(float32(tick)), N: values.NewString("system/timer"), Count: 1},
			}
			tick++
			if w.outgoing != nil {
				w.outgoing.Post(changes)
			}
		}
	}
}
