package watch

import (
	"fmt"

	goccyjson "github.com/goccy/go-json"

	"github.com/evelang/eve-core/internal/index"
	"github.com/evelang/eve-core/internal/interner"
	"github.com/evelang/eve-core/pkg/values"
)

// JSONWatcher implements the "json" watch block: an added (kind, recordID,
// arg) row with kind "decode" parses arg as JSON and flattens it into a
// tree of tagged entities; grounded on the original runtime's JsonWatcher.
type JSONWatcher struct {
	outgoing Outgoing
}

func NewJSONWatcher(outgoing Outgoing) *JSONWatcher {
	return &JSONWatcher{outgoing: outgoing}
}

func (w *JSONWatcher) Notify(name string, diff index.WatchDiff, in *interner.Interner) {
	for _, row := range diff.Adds {
		if len(row) < 3 {
			continue
		}
		kind := in.Resolve(row[0]).String()
		recordID := in.Resolve(row[1]).String()
		arg := in.Resolve(row[2]).String()

		var changes []RawChange
		switch kind {
		case "decode":
			var v interface{}
			if err := goccyjson.Unmarshal([]byte(arg), &v); err == nil {
				valueToChanges(v, &changes, recordID, "json-object")
			}
		case "encode":
			// Encoding is a caller-side concern (Project/Watch already produced
			// the row); nothing to feed back.
		}
		if len(changes) > 0 && w.outgoing != nil {
			w.outgoing.Post(changes)
		}
	}
}

func valueToChanges(v interface{}, changes *[]RawChange, id, attribute string) {
	switch n := v.(type) {
	case float64:
		*changes = append(*changes, RawChange{E: values.NewRecordID(id), A: values.NewString(attribute), V: values.NewNumber(float32(n)), N: values.NewString("json/decode"), Count: 1})
	case string:
		*changes = append(*changes, RawChange{E: values.NewRecordID(id), A: values.NewString(attribute), V: values.NewString(n), N: values.NewString("json/decode"), Count: 1})
	case bool:
		*changes = append(*changes, RawChange{E: values.NewRecordID(id), A: values.NewString(attribute), V: values.NewString(fmt.Sprintf("%v", n)), N: values.NewString("json/decode"), Count: 1})
	case []interface{}:
		for _, item := range n {
			valueToChanges(item, changes, id, attribute)
		}
	case map[string]interface{}:
		nested := id + "/" + attribute
		*changes = append(*changes, RawChange{E: values.NewRecordID(id), A: values.NewString(attribute), V: values.NewRecordID(nested), N: values.NewString("json/decode"), Count: 1})
		*changes = append(*changes, RawChange{E: values.NewRecordID(nested), A: values.NewString("tag"), V: values.NewString("json-object"), N: values.NewString("json/decode"), Count: 1})
		for key, val := range n {
			valueToChanges(val, changes, nested, key)
		}
	}
}
