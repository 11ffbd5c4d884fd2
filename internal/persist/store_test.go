package persist

import (
	"testing"

	"github.com/evelang/eve-core/pkg/values"
)

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	cases := map[string]values.Value{
		"null":     values.Null,
		"number":   values.NewNumber(3.5),
		"zero":     values.NewNumber(0),
		"negative": values.NewNumber(-12),
		"string":   values.NewString("hello"),
		"recordid": values.NewRecordID("e1"),
		"empty":    values.NewString(""),
	}

	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			kind, num, str := encodeValue(v)
			got := decodeValue(kind, num, str)
			if !got.Equal(v) {
				t.Fatalf("round trip mismatch: got %v, want %v", got, v)
			}
		})
	}
}
