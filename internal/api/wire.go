package api

import (
	"fmt"

	"github.com/evelang/eve-core/internal/engine"
	"github.com/evelang/eve-core/internal/interner"
	"github.com/evelang/eve-core/pkg/values"
)

// wireValue is the JSON shape of a pkg/values.Value: a kind discriminator
// plus whichever payload field that kind uses. This is the wire analogue of
// the four Value constructors (Null/NewNumber/NewString/NewRecordID).
type wireValue struct {
	Kind string  `json:"kind"`
	Str  string  `json:"str,omitempty"`
	Num  float64 `json:"num,omitempty"`
}

func (wv wireValue) toValue() (values.Value, error) {
	switch wv.Kind {
	case "", "null":
		return values.Null, nil
	case "number":
		return values.NewNumber(float32(wv.Num)), nil
	case "string":
		return values.NewString(wv.Str), nil
	case "recordid":
		return values.NewRecordID(wv.Str), nil
	default:
		return values.Null, fmt.Errorf("api: unknown value kind %q", wv.Kind)
	}
}

// wireField is the JSON shape of an engine.Field: exactly one of Reg (a row
// register index) or Val (a constant, given as a raw Value and interned on
// decode) is set.
type wireField struct {
	Reg *int       `json:"reg,omitempty"`
	Val *wireValue `json:"val,omitempty"`
}

func (wf wireField) toField(in *interner.Interner) (engine.Field, error) {
	if wf.Reg != nil {
		return engine.Reg(*wf.Reg), nil
	}
	if wf.Val != nil {
		v, err := wf.Val.toValue()
		if err != nil {
			return engine.Field{}, err
		}
		return engine.Val(in.Intern(v)), nil
	}
	return engine.Field{}, fmt.Errorf("api: field has neither reg nor val")
}

func toFields(in *interner.Interner, fs []wireField) ([]engine.Field, error) {
	out := make([]engine.Field, len(fs))
	for i, f := range fs {
		field, err := f.toField(in)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = field
	}
	return out, nil
}

// wireConstraint is the JSON shape of one engine.Constraint, dispatched
// through the same builder functions (MakeScan, MakeInsert, ...) SPEC_FULL's
// "constraint builder functions" section names as the compiler contract's
// output-construction API — this is that API's HTTP-reachable front door,
// for a caller (or test harness) with no compiler of its own.
type wireConstraint struct {
	Kind string `json:"kind"`

	E      wireField `json:"e,omitempty"`
	A      wireField `json:"a,omitempty"`
	V      wireField `json:"v,omitempty"`
	Commit bool      `json:"commit,omitempty"`
	Type   wireField `json:"type,omitempty"`

	ForField        *wireField `json:"for,omitempty"`
	RemoteTypeField *wireField `json:"remoteType,omitempty"`
	FromField       *wireField `json:"from,omitempty"`
	ToField         *wireField `json:"to,omitempty"`

	RelationID uint32      `json:"relationId,omitempty"`
	Key        []wireField `json:"key,omitempty"`
	Value      []wireField `json:"value,omitempty"`
	Negate     bool        `json:"negate,omitempty"`

	Op      string      `json:"op,omitempty"`
	Output  wireField   `json:"output,omitempty"`
	Outputs []wireField `json:"outputs,omitempty"`
	Params  []wireField `json:"params,omitempty"`
	Left    wireField   `json:"left,omitempty"`
	Right   wireField   `json:"right,omitempty"`

	AggregateKind   string      `json:"aggregateKind,omitempty"`
	Group           []wireField `json:"group,omitempty"`
	Projection      []wireField `json:"projection,omitempty"`
	AggregateParams []wireField `json:"aggregateParams,omitempty"`
	OutputKey       []wireField `json:"outputKey,omitempty"`
	AggregateLimit  int         `json:"aggregateLimit,omitempty"`

	Registers []wireField `json:"registers,omitempty"`
	WatchName string      `json:"watchName,omitempty"`
}

// decodeConstraint turns one wireConstraint into an engine.Constraint,
// interning every literal value against in along the way.
func decodeConstraint(in *interner.Interner, wc wireConstraint) (engine.Constraint, error) {
	f := func(wf wireField) (engine.Field, error) { return wf.toField(in) }

	switch wc.Kind {
	case "Scan":
		e, err1 := f(wc.E)
		a, err2 := f(wc.A)
		v, err3 := f(wc.V)
		if err := firstErr(err1, err2, err3); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeScan(e, a, v), nil
	case "AntiScan":
		e, err1 := f(wc.E)
		a, err2 := f(wc.A)
		v, err3 := f(wc.V)
		if err := firstErr(err1, err2, err3); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeAntiScan(e, a, v), nil
	case "LookupCommit":
		e, err1 := f(wc.E)
		a, err2 := f(wc.A)
		v, err3 := f(wc.V)
		if err := firstErr(err1, err2, err3); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeCommitLookup(e, a, v), nil
	case "LookupRemote":
		e, err1 := f(wc.E)
		a, err2 := f(wc.A)
		v, err3 := f(wc.V)
		forF, err4 := f(valOr(wc.ForField))
		typeF, err5 := f(valOr(wc.RemoteTypeField))
		fromF, err6 := f(valOr(wc.FromField))
		toF, err7 := f(valOr(wc.ToField))
		if err := firstErr(err1, err2, err3, err4, err5, err6, err7); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeRemoteLookup(e, a, v, forF, typeF, fromF, toF), nil
	case "IntermediateScan":
		key, err1 := toFields(in, wc.Key)
		val, err2 := toFields(in, wc.Value)
		if err := firstErr(err1, err2); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeIntermediateScan(wc.RelationID, key, val), nil
	case "InsertIntermediate":
		key, err1 := toFields(in, wc.Key)
		val, err2 := toFields(in, wc.Value)
		if err := firstErr(err1, err2); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeIntermediateInsert(wc.RelationID, key, val, wc.Negate), nil
	case "Insert":
		e, err1 := f(wc.E)
		a, err2 := f(wc.A)
		v, err3 := f(wc.V)
		if err := firstErr(err1, err2, err3); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeInsert(e, a, v, wc.Commit), nil
	case "Remove":
		e, err1 := f(wc.E)
		a, err2 := f(wc.A)
		v, err3 := f(wc.V)
		if err := firstErr(err1, err2, err3); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeRemove(e, a, v), nil
	case "RemoveAttribute":
		e, err1 := f(wc.E)
		a, err2 := f(wc.A)
		if err := firstErr(err1, err2); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeRemoveAttribute(e, a), nil
	case "RemoveEntity":
		e, err1 := f(wc.E)
		if err1 != nil {
			return engine.Constraint{}, err1
		}
		return engine.MakeRemoveEntity(e), nil
	case "DynamicCommit":
		e, err1 := f(wc.E)
		a, err2 := f(wc.A)
		v, err3 := f(wc.V)
		typeF, err4 := f(wc.Type)
		if err := firstErr(err1, err2, err3, err4); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeDynamicCommit(e, a, v, typeF), nil
	case "Function":
		output, err1 := f(wc.Output)
		params, err2 := toFields(in, wc.Params)
		if err := firstErr(err1, err2); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeFunction(wc.Op, output, params), nil
	case "MultiFunction":
		outputs, err1 := toFields(in, wc.Outputs)
		params, err2 := toFields(in, wc.Params)
		if err := firstErr(err1, err2); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeMultiFunction(wc.Op, outputs, params), nil
	case "Filter":
		left, err1 := f(wc.Left)
		right, err2 := f(wc.Right)
		if err := firstErr(err1, err2); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeFilter(wc.Op, left, right), nil
	case "Aggregate":
		group, err1 := toFields(in, wc.Group)
		projection, err2 := toFields(in, wc.Projection)
		params, err3 := toFields(in, wc.AggregateParams)
		outputKey, err4 := toFields(in, wc.OutputKey)
		if err := firstErr(err1, err2, err3, err4); err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeAggregate(wc.RelationID, wc.AggregateKind, group, projection, params, outputKey, wc.AggregateLimit), nil
	case "Project":
		registers, err := toFields(in, wc.Registers)
		if err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeProject(registers), nil
	case "Watch":
		registers, err := toFields(in, wc.Registers)
		if err != nil {
			return engine.Constraint{}, err
		}
		return engine.MakeWatch(wc.WatchName, registers), nil
	default:
		return engine.Constraint{}, fmt.Errorf("api: unknown constraint kind %q", wc.Kind)
	}
}

func valOr(wf *wireField) wireField {
	if wf == nil {
		return wireField{}
	}
	return *wf
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// wireBlock is a whole installable block: a name, a stable numeric id, the
// register count its constraints index into, and the constraint list.
type wireBlock struct {
	Name         string           `json:"name"`
	ID           uint32           `json:"id"`
	NumRegisters int              `json:"numRegisters"`
	Constraints  []wireConstraint `json:"constraints"`
}

func decodeBlock(in *interner.Interner, wb wireBlock) (*engine.Block, error) {
	constraints := make([]engine.Constraint, len(wb.Constraints))
	for i, wc := range wb.Constraints {
		c, err := decodeConstraint(in, wc)
		if err != nil {
			return nil, fmt.Errorf("constraint %d: %w", i, err)
		}
		constraints[i] = c
	}
	return engine.NewBlock(wb.Name, wb.ID, wb.NumRegisters, constraints), nil
}
