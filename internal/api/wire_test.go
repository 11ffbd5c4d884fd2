package api

import (
	"testing"

	"github.com/evelang/eve-core/internal/engine"
	"github.com/evelang/eve-core/internal/interner"
)

func TestDecodeBlockScanInsert(t *testing.T) {
	in := interner.New()

	wb := wireBlock{
		Name:         "double",
		ID:           1,
		NumRegisters: 2,
		Constraints: []wireConstraint{
			{
				Kind: "Scan",
				E:    wireField{Reg: intPtr(0)},
				A:    wireField{Val: &wireValue{Kind: "string", Str: "age"}},
				V:    wireField{Reg: intPtr(1)},
			},
			{
				Kind: "Insert",
				E:    wireField{Reg: intPtr(0)},
				A:    wireField{Val: &wireValue{Kind: "string", Str: "double-age"}},
				V:    wireField{Reg: intPtr(1)},
			},
		},
	}

	block, err := decodeBlock(in, wb)
	if err != nil {
		t.Fatalf("decodeBlock: %v", err)
	}
	if block.Name != "double" || len(block.Constraints) != 2 {
		t.Fatalf("unexpected block: %+v", block)
	}
	if block.Constraints[0].Kind != engine.KindScan {
		t.Errorf("expected first constraint to be a Scan, got %v", block.Constraints[0].Kind)
	}
	if block.Constraints[1].Kind != engine.KindInsert {
		t.Errorf("expected second constraint to be an Insert, got %v", block.Constraints[1].Kind)
	}
}

func TestDecodeBlockRemoteLookup(t *testing.T) {
	in := interner.New()

	wb := wireBlock{
		Name:         "mirror",
		ID:           2,
		NumRegisters: 2,
		Constraints: []wireConstraint{
			{
				Kind:            "LookupRemote",
				E:               wireField{Val: &wireValue{Kind: "string", Str: "spot"}},
				A:               wireField{Val: &wireValue{Kind: "string", Str: "eth"}},
				V:               wireField{Reg: intPtr(0)},
				ForField:        &wireField{Val: &wireValue{Kind: "string", Str: "pricer"}},
				RemoteTypeField: &wireField{Val: &wireValue{Kind: "string", Str: "quote"}},
				FromField:       &wireField{Val: &wireValue{Kind: "string", Str: "watcher"}},
				ToField:         &wireField{Val: &wireValue{Kind: "string", Str: "watcher"}},
			},
		},
	}

	block, err := decodeBlock(in, wb)
	if err != nil {
		t.Fatalf("decodeBlock: %v", err)
	}
	c := block.Constraints[0]
	if c.Kind != engine.KindLookupRemote {
		t.Fatalf("expected LookupRemote, got %v", c.Kind)
	}
	if c.For.Resolve(nil) != in.InternString("pricer") {
		t.Errorf("expected For field to resolve to the interned \"pricer\" id")
	}
}

func TestDecodeConstraintRejectsUnknownKind(t *testing.T) {
	in := interner.New()
	if _, err := decodeConstraint(in, wireConstraint{Kind: "Bogus"}); err == nil {
		t.Fatalf("expected an error for an unknown constraint kind")
	}
}

func intPtr(i int) *int { return &i }
