// Package builtins installs the native functions every fresh
// Context needs before user source can run: arithmetic, list
// operations, comparison and equality, printing, error raising,
// introspection and the REPL's `quit`. Install wires each one through
// the same Context.RegisterNative / AllocFunction / SetGlobal path a
// native extension's __dllMain would use (see SPEC_FULL.md's native
// extension ABI section and the `extension` package), which is also
// why built-ins are visible to the resolver before any user code runs
// — SetGlobal's `def` fragment declares the name in the same
// top-level scope user `def`s share.
package builtins

import (
	"fmt"
	"os"
	"strconv"

	"nilan/heap"
	"nilan/runtime"
)

// entry describes one built-in ready for installation: Required is an
// exact arity for Wrapped or a minimum for WrappedVariadic.
type entry struct {
	name     string
	required int
	variadic bool
	doc      string
	fn       runtime.NativeFunc
}

// Install registers every built-in named below as a global in ctx,
// in the order listed -- later built-ins may reference earlier ones
// (none currently do, but the order is kept stable for readability).
func Install(ctx *runtime.Context) error {
	for _, e := range builtinTable() {
		model := heap.Wrapped
		if e.variadic {
			model = heap.WrappedVariadic
		}
		entryIdx := ctx.RegisterNative(e.name, e.fn)
		doc := ctx.NullRef
		if e.doc != "" {
			ref, err := ctx.AllocString([]rune(e.doc))
			if err != nil {
				return err
			}
			doc = ref
		}
		fn, err := ctx.AllocFunction(model, e.required, doc, entryIdx, 0)
		if err != nil {
			return err
		}
		if err := ctx.SetGlobal(e.name, fn); err != nil {
			return err
		}
	}
	return nil
}

// InstallNatives registers every built-in's Go callable in ctx's
// native-function table without defining any globals. A context
// replaying a serialized program (bytefmt.Load) needs exactly this:
// the dumped program re-runs the original `def` fragments itself, so
// defining the globals here too would shift every compiled frame
// offset by one slot per built-in -- but the Wrapped Function values
// those fragments push still resolve their entry indices against this
// table, which must therefore hold the same callables at the same
// indices as the dumping context's Install run. Both walk
// builtinTable in order, which is what keeps the indices aligned.
func InstallNatives(ctx *runtime.Context) {
	for _, e := range builtinTable() {
		ctx.RegisterNative(e.name, e.fn)
	}
}

func builtinTable() []entry {
	return []entry{
		{"+", 0, true, "sums its arguments, widening Integer -> Float -> Complex", biAdd},
		{"-", 1, true, "subtracts the rest from the first argument, or negates a single one", biSub},
		{"*", 0, true, "multiplies its arguments, widening Integer -> Float -> Complex", biMul},
		{"/", 1, true, "divides the first argument by the rest, or inverts a single one", biDiv},
		{"mod", 2, false, "(mod a b) is a floored modulo: the mathematical a mod b", biMod},
		{"<", 2, true, "", biLess},
		{">", 2, true, "", biGreater},
		{"<=", 2, true, "", biLessEq},
		{">=", 2, true, "", biGreaterEq},
		{"=", 2, true, "numeric equality", biNumEq},
		{"eq?", 2, false, "referent identity", biEq},
		{"equal?", 2, false, "structural equality", biEqual},
		{"cons", 2, false, "", biCons},
		{"car", 1, false, "", biCar},
		{"cdr", 1, false, "", biCdr},
		{"null?", 1, false, "", biIsNull},
		{"length", 1, false, "length of a proper list", biLength},
		{"list", 0, true, "builds a proper list from its arguments", biList},
		{"print", 0, true, "prints each argument's textual representation, space separated", biPrint},
		{"error", 1, false, "raises a runtime error carrying its argument's text", biError},
		{"type-of", 1, false, "returns a symbol naming the tag of its argument", biTypeOf},
		{"quit", 0, true, "exits the host process; an integer argument is the exit code", biQuit},
	}
}

// --- numeric widening ----------------------------------------------------

// numKind ranks the three numeric tags so two operands widen to
// whichever is wider, per SPEC_FULL.md §6's widening-rule resolution:
// Integer < Float < Complex, the same rule for +, -, *, and /.
type numKind int

const (
	kindInt numKind = iota
	kindFloat
	kindComplex
)

type num struct {
	kind   numKind
	i      int32
	f      float64
	re, im float64
}

func kindOf(tag heap.Tag) (numKind, bool) {
	switch tag {
	case heap.TagInteger:
		return kindInt, true
	case heap.TagFloat:
		return kindFloat, true
	case heap.TagComplex:
		return kindComplex, true
	default:
		return 0, false
	}
}

func readNum(ctx *runtime.Context, ref heap.Ref) (num, error) {
	kind, ok := kindOf(ctx.Heap.Tag(ref))
	if !ok {
		return num{}, runtime.TypeError{Tag: ctx.Heap.Tag(ref).String(), Reason: "expected a number"}
	}
	switch kind {
	case kindInt:
		return num{kind: kindInt, i: ctx.Heap.GetInteger(ref)}, nil
	case kindFloat:
		return num{kind: kindFloat, f: ctx.Heap.GetFloat(ref)}, nil
	default:
		re, im := ctx.Heap.GetComplex(ref)
		return num{kind: kindComplex, re: re, im: im}, nil
	}
}

func (n num) asFloat() float64 {
	switch n.kind {
	case kindInt:
		return float64(n.i)
	case kindFloat:
		return n.f
	default:
		return n.re
	}
}

func (n num) asComplex() (re, im float64) {
	switch n.kind {
	case kindInt:
		return float64(n.i), 0
	case kindFloat:
		return n.f, 0
	default:
		return n.re, n.im
	}
}

func widen(a, b num) numKind {
	if a.kind > b.kind {
		return a.kind
	}
	return b.kind
}

func writeNum(ctx *runtime.Context, n num) (heap.Ref, error) {
	switch n.kind {
	case kindInt:
		return ctx.AllocInteger(n.i)
	case kindFloat:
		return ctx.AllocFloat(n.f)
	default:
		return ctx.AllocComplex(n.re, n.im)
	}
}

func numAdd(a, b num) num {
	kind := widen(a, b)
	switch kind {
	case kindInt:
		return num{kind: kindInt, i: a.i + b.i}
	case kindFloat:
		return num{kind: kindFloat, f: a.asFloat() + b.asFloat()}
	default:
		are, aim := a.asComplex()
		bre, bim := b.asComplex()
		return num{kind: kindComplex, re: are + bre, im: aim + bim}
	}
}

func numSub(a, b num) num {
	kind := widen(a, b)
	switch kind {
	case kindInt:
		return num{kind: kindInt, i: a.i - b.i}
	case kindFloat:
		return num{kind: kindFloat, f: a.asFloat() - b.asFloat()}
	default:
		are, aim := a.asComplex()
		bre, bim := b.asComplex()
		return num{kind: kindComplex, re: are - bre, im: aim - bim}
	}
}

func numMul(a, b num) num {
	kind := widen(a, b)
	switch kind {
	case kindInt:
		return num{kind: kindInt, i: a.i * b.i}
	case kindFloat:
		return num{kind: kindFloat, f: a.asFloat() * b.asFloat()}
	default:
		are, aim := a.asComplex()
		bre, bim := b.asComplex()
		return num{kind: kindComplex, re: are*bre - aim*bim, im: are*bim + aim*bre}
	}
}

func isZero(n num) bool {
	switch n.kind {
	case kindInt:
		return n.i == 0
	case kindFloat:
		return n.f == 0
	default:
		return n.re == 0 && n.im == 0
	}
}

func numDiv(a, b num) (num, error) {
	if isZero(b) {
		return num{}, runtime.DivisionByZeroError{}
	}
	kind := widen(a, b)
	switch kind {
	case kindInt:
		return num{kind: kindInt, i: a.i / b.i}, nil
	case kindFloat:
		return num{kind: kindFloat, f: a.asFloat() / b.asFloat()}, nil
	default:
		are, aim := a.asComplex()
		bre, bim := b.asComplex()
		denom := bre*bre + bim*bim
		return num{kind: kindComplex, re: (are*bre + aim*bim) / denom, im: (aim*bre - are*bim) / denom}, nil
	}
}

func readNumArgs(ctx *runtime.Context, args runtime.Arguments) ([]num, error) {
	nums := make([]num, args.Len())
	for i := 0; i < args.Len(); i++ {
		n, err := readNum(ctx, args.Get(i))
		if err != nil {
			return nil, err
		}
		nums[i] = n
	}
	return nums, nil
}

func biAdd(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	nums, err := readNumArgs(ctx, args)
	if err != nil {
		return heap.InvalidRef, err
	}
	acc := num{kind: kindInt}
	for _, n := range nums {
		acc = numAdd(acc, n)
	}
	return writeNum(ctx, acc)
}

func biSub(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	nums, err := readNumArgs(ctx, args)
	if err != nil {
		return heap.InvalidRef, err
	}
	if len(nums) == 1 {
		return writeNum(ctx, numSub(num{kind: kindInt}, nums[0]))
	}
	acc := nums[0]
	for _, n := range nums[1:] {
		acc = numSub(acc, n)
	}
	return writeNum(ctx, acc)
}

func biMul(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	nums, err := readNumArgs(ctx, args)
	if err != nil {
		return heap.InvalidRef, err
	}
	acc := num{kind: kindInt, i: 1}
	for _, n := range nums {
		acc = numMul(acc, n)
	}
	return writeNum(ctx, acc)
}

func biDiv(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	nums, err := readNumArgs(ctx, args)
	if err != nil {
		return heap.InvalidRef, err
	}
	if len(nums) == 1 {
		result, err := numDiv(num{kind: kindInt, i: 1}, nums[0])
		if err != nil {
			return heap.InvalidRef, err
		}
		return writeNum(ctx, result)
	}
	acc := nums[0]
	for _, n := range nums[1:] {
		acc, err = numDiv(acc, n)
		if err != nil {
			return heap.InvalidRef, err
		}
	}
	return writeNum(ctx, acc)
}

// biMod implements `a mod b` per spec.md §9's documented bug fix (the
// original computed `a mod a`): a floored modulo over Integers only,
// so the result always shares b's sign.
func biMod(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	if ctx.Heap.Tag(args.Get(0)) != heap.TagInteger {
		return heap.InvalidRef, runtime.TypeError{Tag: ctx.Heap.Tag(args.Get(0)).String(), Reason: "mod expects two integers"}
	}
	if ctx.Heap.Tag(args.Get(1)) != heap.TagInteger {
		return heap.InvalidRef, runtime.TypeError{Tag: ctx.Heap.Tag(args.Get(1)).String(), Reason: "mod expects two integers"}
	}
	a := ctx.Heap.GetInteger(args.Get(0))
	b := ctx.Heap.GetInteger(args.Get(1))
	if b == 0 {
		return heap.InvalidRef, runtime.DivisionByZeroError{}
	}
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return ctx.AllocInteger(r)
}

// --- ordering --------------------------------------------------------

func chainCompare(ctx *runtime.Context, args runtime.Arguments, ok func(a, b float64) bool) (heap.Ref, error) {
	nums, err := readNumArgs(ctx, args)
	if err != nil {
		return heap.InvalidRef, err
	}
	for i := 0; i+1 < len(nums); i++ {
		if !ok(nums[i].asFloat(), nums[i+1].asFloat()) {
			return ctx.FalseRef, nil
		}
	}
	return ctx.TrueRef, nil
}

func biLess(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	return chainCompare(ctx, args, func(a, b float64) bool { return a < b })
}

func biGreater(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	return chainCompare(ctx, args, func(a, b float64) bool { return a > b })
}

func biLessEq(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	return chainCompare(ctx, args, func(a, b float64) bool { return a <= b })
}

func biGreaterEq(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	return chainCompare(ctx, args, func(a, b float64) bool { return a >= b })
}

func biNumEq(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	nums, err := readNumArgs(ctx, args)
	if err != nil {
		return heap.InvalidRef, err
	}
	for i := 0; i+1 < len(nums); i++ {
		are, aim := nums[i].asComplex()
		bre, bim := nums[i+1].asComplex()
		if are != bre || aim != bim {
			return ctx.FalseRef, nil
		}
	}
	return ctx.TrueRef, nil
}

// --- equality ----------------------------------------------------------

func biEq(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	if args.Get(0) == args.Get(1) {
		return ctx.TrueRef, nil
	}
	return ctx.FalseRef, nil
}

func biEqual(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	if structurallyEqual(ctx, args.Get(0), args.Get(1)) {
		return ctx.TrueRef, nil
	}
	return ctx.FalseRef, nil
}

func structurallyEqual(ctx *runtime.Context, a, b heap.Ref) bool {
	if a == b {
		return true
	}
	tagA, tagB := ctx.Heap.Tag(a), ctx.Heap.Tag(b)
	if tagA != tagB {
		return false
	}
	switch tagA {
	case heap.TagNull:
		return true
	case heap.TagBoolean:
		return ctx.Heap.GetBoolean(a) == ctx.Heap.GetBoolean(b)
	case heap.TagInteger:
		return ctx.Heap.GetInteger(a) == ctx.Heap.GetInteger(b)
	case heap.TagFloat:
		return ctx.Heap.GetFloat(a) == ctx.Heap.GetFloat(b)
	case heap.TagComplex:
		are, aim := ctx.Heap.GetComplex(a)
		bre, bim := ctx.Heap.GetComplex(b)
		return are == bre && aim == bim
	case heap.TagCharacter:
		return ctx.Heap.GetCharacter(a) == ctx.Heap.GetCharacter(b)
	case heap.TagString:
		return ctx.Heap.RuneString(a) == ctx.Heap.RuneString(b)
	case heap.TagSymbol:
		return ctx.Heap.RuneString(ctx.Heap.SymbolName(a)) == ctx.Heap.RuneString(ctx.Heap.SymbolName(b))
	case heap.TagPair:
		return structurallyEqual(ctx, ctx.Heap.Car(a), ctx.Heap.Car(b)) &&
			structurallyEqual(ctx, ctx.Heap.Cdr(a), ctx.Heap.Cdr(b))
	default:
		return false
	}
}

// --- list operations -----------------------------------------------------

func biCons(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	return ctx.AllocPair(args.Get(0), args.Get(1))
}

func biCar(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	v := args.Get(0)
	if ctx.Heap.Tag(v) != heap.TagPair {
		return heap.InvalidRef, runtime.TypeError{Tag: ctx.Heap.Tag(v).String(), Reason: "car expects a pair"}
	}
	return ctx.Heap.Car(v), nil
}

func biCdr(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	v := args.Get(0)
	if ctx.Heap.Tag(v) != heap.TagPair {
		return heap.InvalidRef, runtime.TypeError{Tag: ctx.Heap.Tag(v).String(), Reason: "cdr expects a pair"}
	}
	return ctx.Heap.Cdr(v), nil
}

func biIsNull(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	if args.Get(0) == ctx.NullRef {
		return ctx.TrueRef, nil
	}
	return ctx.FalseRef, nil
}

func biLength(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	n := int32(0)
	cur := args.Get(0)
	for cur != ctx.NullRef {
		if ctx.Heap.Tag(cur) != heap.TagPair {
			return heap.InvalidRef, runtime.TypeError{Tag: ctx.Heap.Tag(cur).String(), Reason: "length expects a proper list"}
		}
		n++
		cur = ctx.Heap.Cdr(cur)
	}
	return ctx.AllocInteger(n)
}

func biList(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	items := make([]heap.Ref, args.Len())
	for i := 0; i < args.Len(); i++ {
		items[i] = args.Get(i)
	}
	return ctx.BuildList(items)
}

// --- I/O, errors, introspection ------------------------------------------

func biPrint(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	for i := 0; i < args.Len(); i++ {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(Repr(ctx, args.Get(i)))
	}
	fmt.Println()
	return ctx.NullRef, nil
}

func biError(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	v := args.Get(0)
	msg := Repr(ctx, v)
	if ctx.Heap.Tag(v) == heap.TagString {
		msg = ctx.Heap.RuneString(v)
	}
	return heap.InvalidRef, runtime.RuntimeError{Message: msg}
}

func biTypeOf(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	name := ctx.Heap.Tag(args.Get(0)).String()
	nameRef, err := ctx.AllocString([]rune(name))
	if err != nil {
		return heap.InvalidRef, err
	}
	return ctx.AllocSymbol(nameRef)
}

func biQuit(ctx *runtime.Context, args runtime.Arguments) (heap.Ref, error) {
	code := 0
	if args.Len() > 0 && ctx.Heap.Tag(args.Get(0)) == heap.TagInteger {
		code = int(ctx.Heap.GetInteger(args.Get(0)))
	}
	os.Exit(code)
	return ctx.NullRef, nil
}

// --- textual representation -----------------------------------------------

// Repr renders ref the way `print` and the REPL display values:
// round-trippable for every scalar kind spec.md §8 names (Integer,
// Float, String, Character, Symbol, and proper lists of those).
func Repr(ctx *runtime.Context, ref heap.Ref) string {
	switch ctx.Heap.Tag(ref) {
	case heap.TagNull:
		return "null"
	case heap.TagBoolean:
		if ctx.Heap.GetBoolean(ref) {
			return "true"
		}
		return "false"
	case heap.TagInteger:
		return strconv.FormatInt(int64(ctx.Heap.GetInteger(ref)), 10)
	case heap.TagFloat:
		return reprFloat(ctx.Heap.GetFloat(ref))
	case heap.TagComplex:
		re, im := ctx.Heap.GetComplex(ref)
		if im < 0 {
			return fmt.Sprintf("%s-%si", reprFloat(re), reprFloat(-im))
		}
		return fmt.Sprintf("%s+%si", reprFloat(re), reprFloat(im))
	case heap.TagCharacter:
		return "\\" + string(ctx.Heap.GetCharacter(ref))
	case heap.TagString:
		return "\"" + ctx.Heap.RuneString(ref) + "\""
	case heap.TagSymbol:
		return ctx.Heap.RuneString(ctx.Heap.SymbolName(ref))
	case heap.TagPair:
		return reprPair(ctx, ref)
	case heap.TagRawPointer:
		return fmt.Sprintf("#<native:%d>", ctx.Heap.RawPointerHandle(ref))
	case heap.TagFunction:
		return "#<function>"
	case heap.TagBox:
		return fmt.Sprintf("#<box:%s>", Repr(ctx, ctx.Heap.BoxValue(ref)))
	default:
		return "#<unknown>"
	}
}

func reprFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return s
		}
	}
	return s + ".0"
}

func reprPair(ctx *runtime.Context, ref heap.Ref) string {
	out := "("
	cur := ref
	first := true
	for {
		if !first {
			out += " "
		}
		first = false
		out += Repr(ctx, ctx.Heap.Car(cur))
		cdr := ctx.Heap.Cdr(cur)
		if cdr == ctx.NullRef {
			break
		}
		if ctx.Heap.Tag(cdr) != heap.TagPair {
			out += " . " + Repr(ctx, cdr)
			break
		}
		cur = cdr
	}
	return out + ")"
}
