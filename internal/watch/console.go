package watch

import (
	"log"

	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/internal/interner"
)

// ConsoleWatcher prints added rows of the form (kind, text), dispatching on
// kind the way the original runtime's ConsoleWatcher does: "log" goes to
// stdout plain, "warn"/"error" get a stdlib log prefix.
type ConsoleWatcher struct{}

func NewConsoleWatcher() *ConsoleWatcher { return &ConsoleWatcher{} }

func (w *ConsoleWatcher) Notify(name string, diff index.WatchDiff, in *interner.Interner) {
	for _, row := range diff.Adds {
		if len(row) < 2 {
			continue
		}
		kind := in.Resolve(row[0]).String()
		text := in.Resolve(row[1]).String()
		switch kind {
		case "log":
			log.Println(text)
		case "warn":
			log.Printf("Warn: %s", text)
		case "error":
			log.Printf("Error: %s", text)
		}
	}
}
