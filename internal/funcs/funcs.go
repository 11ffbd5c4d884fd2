// Package funcs implements Eve's built-in scalar and multi-valued
// functions, dispatched by name from a Function or MultiFunction
// constraint. A function that cannot produce a result for its inputs
// returns ok=false, which the solver treats as an empty row — no panic, no
// error value, per the value-domain error policy (spec §7).
package funcs

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/evelang/eve-core/pkg/values"
)

// Func is a scalar built-in: one set of bound params in, one value out.
type Func func(args []values.Value) (values.Value, bool)

// MultiFunc is a built-in that can produce zero or more output rows from
// one set of bound params (e.g. math/range, string/split).
type MultiFunc func(args []values.Value) ([][]values.Value, bool)

var scalars = map[string]Func{
	"math/sin":      unaryFloat(math.Sin),
	"math/cos":      unaryFloat(math.Cos),
	"math/abs":      unaryFloat(math.Abs),
	"math/floor":    unaryFloat(math.Floor),
	"math/ceiling":  unaryFloat(math.Ceil),
	"math/round":    unaryFloat(math.Round),
	"math/mod":      mathMod,
	"math/pow":      mathPow,
	"math/to-fixed": mathToFixed,

	"random/number": randomNumber,

	"string/replace":      stringReplace,
	"string/contains":     stringContains,
	"string/lowercase":    stringLowercase,
	"string/uppercase":    stringUppercase,
	"string/length":       stringLength,
	"string/index-of":     stringIndexOf,
	"string/substring":    stringSubstring,
	"string/encode":       stringEncode,
	"string/urlencode":    stringURLEncode,
	"concat":              concat,
	"gen-id":              genID,
	"eq":                  eqFunc,
	"not-eq":              notEqFunc,
}

var multis = map[string]MultiFunc{
	"math/range":          mathRange,
	"string/split":        stringSplit,
	"string/split-reverse": stringSplitReverse,
}

// Lookup resolves a scalar function by its op name.
func Lookup(op string) (Func, bool) {
	f, ok := scalars[op]
	return f, ok
}

// LookupMulti resolves a multi-valued function by its op name.
func LookupMulti(op string) (MultiFunc, bool) {
	f, ok := multis[op]
	return f, ok
}

func unaryFloat(f func(float64) float64) Func {
	return func(args []values.Value) (values.Value, bool) {
		if len(args) != 1 || args[0].Kind() != values.KindNumber {
			return values.Value{}, false
		}
		return values.NewNumber(float32(f(float64(args[0].Float())))), true
	}
}

func numArg(args []values.Value, i int) (float32, bool) {
	if i >= len(args) || args[i].Kind() != values.KindNumber {
		return 0, false
	}
	return args[i].Float(), true
}

func mathMod(args []values.Value) (values.Value, bool) {
	a, ok1 := numArg(args, 0)
	b, ok2 := numArg(args, 1)
	if !ok1 || !ok2 || b == 0 {
		return values.Value{}, false
	}
	return values.NewNumber(float32(math.Mod(float64(a), float64(b)))), true
}

// mathPow mirrors the original runtime's direct use of the platform's
// powf: no special-casing of a negative base with a fractional exponent,
// which yields NaN — that NaN still interns like any other bit pattern
// rather than being treated as "no result".
func mathPow(args []values.Value) (values.Value, bool) {
	a, ok1 := numArg(args, 0)
	b, ok2 := numArg(args, 1)
	if !ok1 || !ok2 {
		return values.Value{}, false
	}
	return values.NewNumber(float32(math.Pow(float64(a), float64(b)))), true
}

func mathToFixed(args []values.Value) (values.Value, bool) {
	a, ok1 := numArg(args, 0)
	places, ok2 := numArg(args, 1)
	if !ok1 || !ok2 {
		return values.Value{}, false
	}
	format := fmt.Sprintf("%%.%df", int(places))
	s := fmt.Sprintf(format, a)
	return values.NewString(s), true
}

func mathRange(args []values.Value) ([][]values.Value, bool) {
	start, ok1 := numArg(args, 0)
	stop, ok2 := numArg(args, 1)
	if !ok1 || !ok2 {
		return nil, false
	}
	step := float32(1)
	if s, ok := numArg(args, 2); ok {
		step = s
	}
	if step == 0 {
		return nil, false
	}
	var out [][]values.Value
	if step > 0 {
		for v := start; v <= stop; v += step {
			out = append(out, []values.Value{values.NewNumber(v)})
		}
	} else {
		for v := start; v >= stop; v += step {
			out = append(out, []values.Value{values.NewNumber(v)})
		}
	}
	return out, true
}

// randomNumber mirrors the original's behaviour of reseeding from its
// numeric parameter on every call: it is a deterministic function of that
// seed, not a source of true entropy.
func randomNumber(args []values.Value) (values.Value, bool) {
	seed, ok := numArg(args, 0)
	if !ok {
		return values.Value{}, false
	}
	state := math.Float32bits(seed)
	if state == 0 {
		state = 0x9e3779b9
	}
	state ^= state << 13
	state ^= state >> 17
	state ^= state << 5
	return values.NewNumber(float32(state) / float32(math.MaxUint32)), true
}

func strArg(args []values.Value, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	switch args[i].Kind() {
	case values.KindString, values.KindRecordID:
		return args[i].Str(), true
	default:
		return "", false
	}
}

func stringReplace(args []values.Value) (values.Value, bool) {
	s, ok1 := strArg(args, 0)
	old, ok2 := strArg(args, 1)
	neu, ok3 := strArg(args, 2)
	if !ok1 || !ok2 || !ok3 {
		return values.Value{}, false
	}
	return values.NewString(strings.ReplaceAll(s, old, neu)), true
}

func stringContains(args []values.Value) (values.Value, bool) {
	s, ok1 := strArg(args, 0)
	sub, ok2 := strArg(args, 1)
	if !ok1 || !ok2 {
		return values.Value{}, false
	}
	if !strings.Contains(s, sub) {
		return values.Value{}, false
	}
	return values.NewString(sub), true
}

func stringLowercase(args []values.Value) (values.Value, bool) {
	s, ok := strArg(args, 0)
	if !ok {
		return values.Value{}, false
	}
	return values.NewString(strings.ToLower(s)), true
}

func stringUppercase(args []values.Value) (values.Value, bool) {
	s, ok := strArg(args, 0)
	if !ok {
		return values.Value{}, false
	}
	return values.NewString(strings.ToUpper(s)), true
}

func stringLength(args []values.Value) (values.Value, bool) {
	s, ok := strArg(args, 0)
	if !ok {
		return values.Value{}, false
	}
	return values.NewNumber(float32(len([]rune(s)))), true
}

func stringIndexOf(args []values.Value) (values.Value, bool) {
	s, ok1 := strArg(args, 0)
	sub, ok2 := strArg(args, 1)
	if !ok1 || !ok2 {
		return values.Value{}, false
	}
	idx := strings.Index(s, sub)
	if idx < 0 {
		return values.Value{}, false
	}
	return values.NewNumber(float32(len([]rune(s[:idx])))), true
}

// stringSubstring mirrors the original's clamping behaviour: out-of-range
// indices are clamped to the string's rune bounds rather than erroring.
func stringSubstring(args []values.Value) (values.Value, bool) {
	s, ok := strArg(args, 0)
	if !ok {
		return values.Value{}, false
	}
	runes := []rune(s)
	from, ok := numArg(args, 1)
	if !ok {
		from = 0
	}
	to := float32(len(runes))
	if t, ok := numArg(args, 2); ok {
		to = t
	}
	start := clampIndex(int(from), len(runes))
	end := clampIndex(int(to), len(runes))
	if end < start {
		start, end = end, start
	}
	return values.NewString(string(runes[start:end])), true
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func stringEncode(args []values.Value) (values.Value, bool) {
	s, ok := strArg(args, 0)
	if !ok {
		return values.Value{}, false
	}
	return values.NewString(fmt.Sprintf("%x", []byte(s))), true
}

func stringURLEncode(args []values.Value) (values.Value, bool) {
	s, ok := strArg(args, 0)
	if !ok {
		return values.Value{}, false
	}
	var b strings.Builder
	for _, c := range []byte(s) {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return values.NewString(b.String()), true
}

func stringSplit(args []values.Value) ([][]values.Value, bool) {
	s, ok1 := strArg(args, 0)
	sep, ok2 := strArg(args, 1)
	if !ok1 || !ok2 {
		return nil, false
	}
	parts := strings.Split(s, sep)
	out := make([][]values.Value, len(parts))
	for i, p := range parts {
		out[i] = []values.Value{values.NewNumber(float32(i)), values.NewString(p)}
	}
	return out, true
}

func stringSplitReverse(args []values.Value) ([][]values.Value, bool) {
	rows, ok := stringSplit(args)
	if !ok {
		return nil, false
	}
	sort.SliceStable(rows, func(i, j int) bool { return i > j })
	for i := range rows {
		rows[i][0] = values.NewNumber(float32(i))
	}
	return rows, true
}

func concat(args []values.Value) (values.Value, bool) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(a.String())
	}
	return values.NewString(b.String()), true
}

var genIDCounter uint64

// genID allocates a fresh opaque record id. Deterministic per-call counter
// rather than a random uuid, so derivations stay reproducible under replay.
func genID(args []values.Value) (values.Value, bool) {
	genIDCounter++
	return values.NewRecordID(fmt.Sprintf("gen-%d", genIDCounter)), true
}

func eqFunc(args []values.Value) (values.Value, bool) {
	if len(args) != 2 {
		return values.Value{}, false
	}
	if !args[0].Equal(args[1]) {
		return values.Value{}, false
	}
	return args[0], true
}

func notEqFunc(args []values.Value) (values.Value, bool) {
	if len(args) != 2 {
		return values.Value{}, false
	}
	if args[0].Equal(args[1]) {
		return values.Value{}, false
	}
	return args[0], true
}
