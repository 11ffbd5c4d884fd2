package watch

import (
	"fmt"
	"os"

	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/internal/interner"
	"github.com/evelang/eve-core/pkg/values"
)

// FileWatcher implements the "file" watch block: added rows of the form
// (kind, recordID, path[, contents]) trigger a "read" or "write" against
// the local filesystem, posting the result back as a transaction —
// grounded on the original runtime's FileWatcher.
type FileWatcher struct {
	outgoing Outgoing
}

func NewFileWatcher(outgoing Outgoing) *FileWatcher {
	return &FileWatcher{outgoing: outgoing}
}

func (w *FileWatcher) Notify(name string, diff index.WatchDiff, in *interner.Interner) {
	for _, row := range diff.Adds {
		if len(row) < 3 {
			continue
		}
		kind := in.Resolve(row[0]).String()
		recordID := in.Resolve(row[1]).String()
		path := in.Resolve(row[2]).String()
		id := fmt.Sprintf("file/%s/change/%s", kind, recordID)

		var changes []RawChange
		switch kind {
		case "read":
			contents, err := os.ReadFile(path)
			if err != nil {
				changes = append(changes, fileError(recordID, err)...)
			} else {
				changes = append(changes,
					RawChange{E: values.NewRecordID(id), A: values.NewString("tag"), V: values.NewString("file/read/change"), N: values.NewString("file/read"), Count: 1},
					RawChange{E: values.NewRecordID(id), A: values.NewString("file"), V: values.NewString(recordID), N: values.NewString("file/read"), Count: 1},
					RawChange{E: values.NewRecordID(id), A: values.NewString("contents"), V: values.NewString(string(contents)), N: values.NewString("file/read"), Count: 1},
				)
			}
		case "write":
			if len(row) < 4 {
				continue
			}
			contents := in.Resolve(row[3]).String()
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				changes = append(changes, fileError(recordID, err)...)
			}
		}
		if len(changes) > 0 && w.outgoing != nil {
			w.outgoing.Post(changes)
		}
	}
}

func fileError(recordID string, why error) []RawChange {
	id := values.NewRecordID("file/error/" + recordID)
	return []RawChange{
		{E: id, A: values.NewString("tag"), V: values.NewString("file/error"), N: values.NewString("file/error"), Count: 1},
		{E: id, A: values.NewString("message"), V: values.NewString(why.Error()), N: values.NewString("file/error"), Count: 1},
		{E: id, A: values.NewString("file"), V: values.NewString(recordID), N: values.NewString("file/error"), Count: 1},
	}
}
