package runtime

import (
	"errors"
	"fmt"

	"nilan/ast"
	"nilan/compiler"
	"nilan/heap"
	"nilan/lexer"
	"nilan/parser"
)

// NativeFunc is the signature every Wrapped Function's callable takes:
// a view over its arguments on the operand stack, returning a single
// result Value or an error that unwinds to the host boundary.
type NativeFunc func(ctx *Context, args Arguments) (heap.Ref, error)

// CallStackEntry is one activation record on the VM's call stack.
// ArgFrame is the frame Call created to hold this invocation's
// parameters -- the frame Recur resets and rebinds in place. CallerEnv
// is whatever environment frame was current the instant Call ran; it
// is not necessarily an ancestor of ArgFrame (a closure's captured
// frame can be anything), so Return restores it explicitly rather
// than trying to derive it by walking parents. FunctionTop is the
// bytecode address of the callee's Store sequence, the address both a
// fresh Call and a Recur jump to.
type CallStackEntry struct {
	ReturnAddr   int
	FunctionTop  int
	ArgFrame     *Frame
	CallerEnv    *Frame
	RequiredArgs int
	Variadic     bool
}

// Context is the process-global (per-interpreter-instance) runtime
// state: the heap, the top-level frame, the immediates pool, the
// operand and call stacks, the growing compiled program buffer, the
// canonical singletons, the persistent-root list head, and the
// tables of native functions and native extension handles. Exactly
// one Context exists per embedded interpreter instance; multiple
// Contexts in one process are independent except for whatever the
// embedding native-extension loader treats as global (see
// SPEC_FULL.md's native extension ABI section).
type Context struct {
	Heap    *heap.Heap
	Program compiler.Instructions
	ip      int

	top      *ast.TopLevel
	topFrame *Frame
	frames   frameTable

	// env is the environment frame currently in scope: the innermost
	// active Lambda or Let frame. Frame distance (ast.VarLoc.FrameDist)
	// is measured by walking env's parent chain, which is why Let
	// frames are pushed onto the very same chain Lambda calls use
	// instead of getting a mechanism of their own.
	env *Frame

	OperandStack []heap.Ref
	CallStack    []CallStackEntry

	immediates    []heap.Ref
	internInts    map[int32]uint16
	internFloats  map[float64]uint16
	internStrings map[string]uint16
	internChars   map[rune]uint16
	internSymbols map[string]uint16

	persistentHead *Persistent

	natives     []NativeFunc
	nativeNames []string

	// NativeHandles holds opaque handles for loaded native extensions
	// (SPEC_FULL.md's dynamic-library loading interface, treated only
	// through this table -- loading itself is out of scope, see §1).
	// Handles are released in LIFO order at Context teardown.
	NativeHandles []any

	NullRef  heap.Ref
	TrueRef  heap.Ref
	FalseRef heap.Ref
}

// New constructs a Context with a heap of heapCapacity bytes and the
// Null/Boolean singletons already allocated.
func New(heapCapacity int) (*Context, error) {
	ctx := &Context{
		Heap:          heap.New(heapCapacity),
		top:           ast.NewTopLevel(),
		internInts:    map[int32]uint16{},
		internFloats:  map[float64]uint16{},
		internStrings: map[string]uint16{},
		internChars:   map[rune]uint16{},
		internSymbols: map[string]uint16{},
	}
	ctx.topFrame = newFrame(nil)
	id := ctx.frames.add(ctx.topFrame)
	ctx.topFrame.hasID, ctx.topFrame.id = true, id
	ctx.env = ctx.topFrame

	var err error
	if ctx.NullRef, err = ctx.Heap.NewNull(); err != nil {
		return nil, err
	}
	if ctx.TrueRef, err = ctx.Heap.NewBoolean(true); err != nil {
		return nil, err
	}
	if ctx.FalseRef, err = ctx.Heap.NewBoolean(false); err != nil {
		return nil, err
	}
	return ctx, nil
}

// TopFrame returns the Context's top-level environment frame.
func (ctx *Context) TopFrame() *Frame { return ctx.topFrame }

// CurrentFrame returns the environment frame currently in scope --
// the frame a Lambda value created right now would capture as its
// closure environment.
func (ctx *Context) CurrentFrame() *Frame {
	return ctx.env
}

// SetEnv replaces the currently active environment frame. Exported
// for the vm package, which is the only code outside this package
// that ever changes it (Call, Return, EnterLet, ExitLet, Recur).
func (ctx *Context) SetEnv(f *Frame) { ctx.env = f }

// EnterLet pushes a fresh frame as a child of the current environment,
// with no call-stack entry: `let` introduces scope, not a new
// activation.
func (ctx *Context) EnterLet() { ctx.env = newFrame(ctx.env) }

// ExitLet pops the innermost `let` frame pushed by EnterLet.
func (ctx *Context) ExitLet() error {
	if ctx.env.parent == nil {
		return RuntimeError{Message: "ExitLet with no enclosing frame"}
	}
	ctx.env = ctx.env.parent
	return nil
}

// NewCallFrame constructs a fresh argument frame parented to parent
// (the callee's captured definition environment).
func (ctx *Context) NewCallFrame(parent *Frame) *Frame { return newFrame(parent) }

// FrameByID resolves a Function's captured-environment id back to its
// Frame.
func (ctx *Context) FrameByID(id uint32) *Frame { return ctx.frameByID(id) }

// CaptureEnvID returns the stable id of the currently active
// environment frame, assigning one if this is the first Function
// literal to close over it.
func (ctx *Context) CaptureEnvID() uint32 { return ctx.frameID(ctx.env) }

// Arguments builds the Arguments view over the top argc operand stack
// entries, for a Wrapped Function's native call.
func (ctx *Context) Arguments(argc int) Arguments { return ctx.arguments(argc) }

// NativeFunc resolves a Wrapped Function's entry index back to its Go
// callable.
func (ctx *Context) NativeFunc(entry uint32) NativeFunc { return ctx.nativeFunc(entry) }

// ImmediateRef resolves an immediates-pool id to its heap Value.
func (ctx *Context) ImmediateRef(id uint16) heap.Ref { return ctx.immediateRef(id) }

func (ctx *Context) frameID(f *Frame) uint32 {
	if f.hasID {
		return f.id
	}
	id := ctx.frames.add(f)
	f.hasID, f.id = true, id
	return id
}

func (ctx *Context) frameByID(id uint32) *Frame {
	return ctx.frames.get(id)
}

// --- operand stack -----------------------------------------------------

func (ctx *Context) PushOperand(ref heap.Ref) {
	ctx.OperandStack = append(ctx.OperandStack, ref)
}

func (ctx *Context) PopOperand() (heap.Ref, error) {
	n := len(ctx.OperandStack)
	if n == 0 {
		return heap.InvalidRef, RuntimeError{Message: "operand stack underflow"}
	}
	ref := ctx.OperandStack[n-1]
	ctx.OperandStack = ctx.OperandStack[:n-1]
	return ref, nil
}

func (ctx *Context) PeekOperand() (heap.Ref, error) {
	n := len(ctx.OperandStack)
	if n == 0 {
		return heap.InvalidRef, RuntimeError{Message: "operand stack underflow"}
	}
	return ctx.OperandStack[n-1], nil
}

// DropOperands discards the top n entries, used after a native call
// has finished reading its Arguments window.
func (ctx *Context) DropOperands(n int) {
	ctx.OperandStack = ctx.OperandStack[:len(ctx.OperandStack)-n]
}

// ResetAfterError clears the operand and call stacks and restores the
// top-level environment. A runtime error unwinds straight to the host
// boundary and leaves both stacks in an unspecified state; a host that
// wants to keep accepting input (the REPL) must reset them before its
// next Exec.
func (ctx *Context) ResetAfterError() {
	ctx.OperandStack = ctx.OperandStack[:0]
	ctx.CallStack = ctx.CallStack[:0]
	ctx.env = ctx.topFrame
	// A def whose initializer threw declared its name without ever
	// storing a value; fill such slots with null so later globals'
	// compiled offsets stay sound.
	ctx.topFrame.PadTo(len(ctx.top.Names()), ctx.NullRef)
}

// Arguments is a fixed-size window into the operand stack presented
// to a native built-in for the duration of its call. The native must
// not cause the operand stack to shrink below this window -- nothing
// in this package enforces that beyond documenting it, matching
// spec.md §5's description of the contract.
type Arguments struct {
	ctx  *Context
	base int
	n    int
}

func (a Arguments) Len() int { return a.n }

func (a Arguments) Get(i int) heap.Ref {
	return a.ctx.OperandStack[a.base+i]
}

// arguments builds the Arguments view over the top argc operand stack
// entries.
func (ctx *Context) arguments(argc int) Arguments {
	return Arguments{ctx: ctx, base: len(ctx.OperandStack) - argc, n: argc}
}

// --- native function / extension handle registration --------------------

// RegisterNative adds fn to the native-function table and returns its
// index, the value stored as a Wrapped Function's entry field.
func (ctx *Context) RegisterNative(name string, fn NativeFunc) uint32 {
	ctx.natives = append(ctx.natives, fn)
	ctx.nativeNames = append(ctx.nativeNames, name)
	return uint32(len(ctx.natives) - 1)
}

func (ctx *Context) nativeFunc(entry uint32) NativeFunc {
	return ctx.natives[entry]
}

// --- allocation with OOM-retry-once -------------------------------------

// isOOM reports whether err is the specific "heap exhausted" signal
// that warrants a single collect-and-retry, as opposed to any other
// failure.
func isOOM(err error) bool {
	var oom heap.OOMError
	return errors.As(err, &oom)
}

// retryOnce runs alloc; on OOM it runs exactly one collection and
// tries alloc again, per spec.md §3's "catch the OOM signal ... retry
// exactly once" rule. A second failure is fatal and propagates.
func (ctx *Context) retryOnce(alloc func() (heap.Ref, error)) (heap.Ref, error) {
	ref, err := alloc()
	if err == nil || !isOOM(err) {
		return ref, err
	}
	ctx.Collect()
	return alloc()
}

// AllocPair allocates a Pair, pinning car/cdr first so a collection
// triggered by this very allocation cannot leave either argument
// pointing at stale, already-moved heap addresses.
func (ctx *Context) AllocPair(car, cdr heap.Ref) (heap.Ref, error) {
	pcar, pcdr := ctx.Pin(car), ctx.Pin(cdr)
	defer pcar.Release()
	defer pcdr.Release()
	return ctx.retryOnce(func() (heap.Ref, error) {
		return ctx.Heap.NewPair(pcar.Get(), pcdr.Get())
	})
}

// AllocBox allocates a Box around v.
func (ctx *Context) AllocBox(v heap.Ref) (heap.Ref, error) {
	pv := ctx.Pin(v)
	defer pv.Release()
	return ctx.retryOnce(func() (heap.Ref, error) {
		return ctx.Heap.NewBox(pv.Get())
	})
}

// AllocString allocates a String from runes.
func (ctx *Context) AllocString(runes []rune) (heap.Ref, error) {
	return ctx.retryOnce(func() (heap.Ref, error) {
		return ctx.Heap.NewString(runes)
	})
}

// AllocCharacter allocates a single Character.
func (ctx *Context) AllocCharacter(r rune) (heap.Ref, error) {
	return ctx.retryOnce(func() (heap.Ref, error) {
		return ctx.Heap.NewCharacter(r)
	})
}

// AllocInteger allocates an Integer.
func (ctx *Context) AllocInteger(v int32) (heap.Ref, error) {
	return ctx.retryOnce(func() (heap.Ref, error) {
		return ctx.Heap.NewInteger(v)
	})
}

// AllocFloat allocates a Float.
func (ctx *Context) AllocFloat(v float64) (heap.Ref, error) {
	return ctx.retryOnce(func() (heap.Ref, error) {
		return ctx.Heap.NewFloat(v)
	})
}

// AllocComplex allocates a Complex.
func (ctx *Context) AllocComplex(re, im float64) (heap.Ref, error) {
	return ctx.retryOnce(func() (heap.Ref, error) {
		return ctx.Heap.NewComplex(re, im)
	})
}

// AllocSymbol allocates a Symbol wrapping an already-allocated name
// String, pinning the name across the potential collection.
func (ctx *Context) AllocSymbol(name heap.Ref) (heap.Ref, error) {
	pname := ctx.Pin(name)
	defer pname.Release()
	return ctx.retryOnce(func() (heap.Ref, error) {
		return ctx.Heap.NewSymbol(pname.Get())
	})
}

// AllocFunction allocates a Function, pinning its docstring (if any)
// across the potential collection.
func (ctx *Context) AllocFunction(model heap.InvocationModel, requiredArgs int, doc heap.Ref, entry uint32, frameID uint32) (heap.Ref, error) {
	pdoc := ctx.Pin(doc)
	defer pdoc.Release()
	return ctx.retryOnce(func() (heap.Ref, error) {
		return ctx.Heap.NewFunction(model, requiredArgs, pdoc.Get(), entry, frameID)
	})
}

// BuildList allocates a proper list holding items in order, terminated
// by the Null singleton. It is built back-to-front (each pair wraps
// the previous) and every already-built prefix is pinned while the
// next cons cell is allocated.
func (ctx *Context) BuildList(items []heap.Ref) (heap.Ref, error) {
	tail := ctx.NullRef
	for i := len(items) - 1; i >= 0; i-- {
		ptail := ctx.Pin(tail)
		pair, err := ctx.AllocPair(items[i], ptail.Get())
		ptail.Release()
		if err != nil {
			return heap.InvalidRef, err
		}
		tail = pair
	}
	return tail, nil
}

// --- interning (ast.Interner) --------------------------------------------

func (ctx *Context) addImmediate(ref heap.Ref) uint16 {
	if len(ctx.immediates) >= 1<<16 {
		panic("🤖 DeveloperError: immediates pool exhausted (more than 65536 distinct literals)")
	}
	id := uint16(len(ctx.immediates))
	ctx.immediates = append(ctx.immediates, ref)
	return id
}

func (ctx *Context) immediateRef(id uint16) heap.Ref {
	return ctx.immediates[id]
}

// Immediates returns the immediates pool in insertion order, i.e. the
// order bytefmt.Dump must write them in for their ids (indices) to
// come back out unchanged on Load.
func (ctx *Context) Immediates() []heap.Ref {
	return ctx.immediates
}

// PushImmediate adds ref to the immediates pool without deduplicating
// against any of the per-kind intern maps, the same operation
// InternDatum performs for compound quoted data -- exported so
// bytefmt.Load can re-intern a tree it rebuilt directly on the heap
// without going through the lexer/parser.
func (ctx *Context) PushImmediate(ref heap.Ref) uint16 {
	return ctx.addImmediate(ref)
}

// mustAlloc panics on an interning-time allocation failure. Interning
// runs at compile time, long before the VM's own OOM-retry logic
// applies: a failure here means the literal pool alone exceeds the
// configured heap, a misconfiguration rather than a condition retry
// logic is meant to paper over.
func mustAlloc(ref heap.Ref, err error) heap.Ref {
	if err != nil {
		panic(err.Error())
	}
	return ref
}

// InternInteger implements ast.Interner, deduplicating by value.
func (ctx *Context) InternInteger(v int32) uint16 {
	if id, ok := ctx.internInts[v]; ok {
		return id
	}
	id := ctx.addImmediate(mustAlloc(ctx.Heap.NewInteger(v)))
	ctx.internInts[v] = id
	return id
}

// InternFloat implements ast.Interner, deduplicating by value.
func (ctx *Context) InternFloat(v float64) uint16 {
	if id, ok := ctx.internFloats[v]; ok {
		return id
	}
	id := ctx.addImmediate(mustAlloc(ctx.Heap.NewFloat(v)))
	ctx.internFloats[v] = id
	return id
}

// InternString implements ast.Interner, deduplicating by value.
func (ctx *Context) InternString(v string) uint16 {
	if id, ok := ctx.internStrings[v]; ok {
		return id
	}
	id := ctx.addImmediate(mustAlloc(ctx.Heap.NewString([]rune(v))))
	ctx.internStrings[v] = id
	return id
}

// InternChar implements ast.Interner, deduplicating by value.
func (ctx *Context) InternChar(v rune) uint16 {
	if id, ok := ctx.internChars[v]; ok {
		return id
	}
	id := ctx.addImmediate(mustAlloc(ctx.Heap.NewCharacter(v)))
	ctx.internChars[v] = id
	return id
}

// InternSymbol implements ast.Interner, deduplicating by referent
// identity: two calls with the same name return the same immediate
// id, so the Symbol Values they load are eq? at runtime.
func (ctx *Context) InternSymbol(name string) uint16 {
	if id, ok := ctx.internSymbols[name]; ok {
		return id
	}
	nameRef := ctx.immediateRef(ctx.InternString(name))
	id := ctx.addImmediate(mustAlloc(ctx.Heap.NewSymbol(nameRef)))
	ctx.internSymbols[name] = id
	return id
}

// InternDatum implements ast.Interner: a quoted datum tree is built
// wholesale into the heap and interned as a single immediate. Unlike
// the scalar kinds above, two structurally equal quoted data trees
// are not deduplicated against each other -- only re-resolving the
// same AST node twice is a no-op, via ast.Quote's own resolved flag.
func (ctx *Context) InternDatum(d ast.Datum) uint16 {
	ref := mustAlloc(ctx.buildDatum(d))
	return ctx.addImmediate(ref)
}

func (ctx *Context) buildDatum(d ast.Datum) (heap.Ref, error) {
	switch v := d.(type) {
	case ast.DatumInt:
		return ctx.Heap.NewInteger(v.Value)
	case ast.DatumFloat:
		return ctx.Heap.NewFloat(v.Value)
	case ast.DatumString:
		return ctx.Heap.NewString([]rune(v.Value))
	case ast.DatumChar:
		return ctx.Heap.NewCharacter(v.Value)
	case ast.DatumBool:
		if v.Value {
			return ctx.TrueRef, nil
		}
		return ctx.FalseRef, nil
	case ast.DatumNull:
		return ctx.NullRef, nil
	case ast.DatumSymbol:
		return ctx.immediateRef(ctx.InternSymbol(v.Name)), nil
	case ast.DatumPair:
		car, err := ctx.buildDatum(v.Car)
		if err != nil {
			return heap.InvalidRef, err
		}
		pcar := ctx.Pin(car)
		defer pcar.Release()
		cdr, err := ctx.buildDatum(v.Cdr)
		if err != nil {
			return heap.InvalidRef, err
		}
		return ctx.Heap.NewPair(pcar.Get(), cdr)
	default:
		panic(fmt.Sprintf("🤖 DeveloperError: unhandled Datum type %T", d))
	}
}

// --- source-level entry points -------------------------------------------

// Exec parses, resolves and compiles source against the Context's
// ever-growing top-level scope and program buffer, then runs just the
// newly compiled tail, returning the final expression's value.
//
// Every global write -- whether from user source or SetGlobal --
// extends the same *ast.TopLevel and the same top-level Frame rather
// than building a fresh one, because bytecode already compiled
// earlier holds variable offsets into that frame; rebuilding it would
// invalidate every offset the resolver has already handed out.
func (ctx *Context) Exec(source string) (heap.Ref, error) {
	toks, err := lexer.New(source).Scan()
	if err != nil {
		return heap.InvalidRef, err
	}
	forms, errs := parser.Make(toks, ctx.top).Parse()
	if len(errs) > 0 {
		return heap.InvalidRef, errs[0]
	}
	return ctx.compileAndRun(forms)
}

func (ctx *Context) compileAndRun(forms []ast.Node) (heap.Ref, error) {
	// A failed resolve or build must leave the Context untouched:
	// any top-level names the partial pass declared are rolled back,
	// since a declaration without a matching Store would skew the
	// offset of every global defined afterward.
	declared := len(ctx.top.Names())
	for _, form := range forms {
		if err := ast.Resolve(form, ctx.top, ctx); err != nil {
			ctx.top.TruncateNames(declared)
			return heap.InvalidRef, err
		}
	}

	bc, err := compiler.NewBuilder().BuildBody(forms)
	if err != nil {
		ctx.top.TruncateNames(declared)
		return heap.InvalidRef, err
	}
	ctx.top.Body = append(ctx.top.Body, forms...)
	start := len(ctx.Program)
	ctx.Program = append(ctx.Program, bc.Instructions...)
	return ctx.run(start)
}

// run is implemented by the vm package via SetRunner, avoiding an
// import cycle (vm imports runtime for Context/Frame; runtime cannot
// import vm back).
var runner func(ctx *Context, ip int) (heap.Ref, int, error)

// SetRunner installs the bytecode interpreter Exec/SetGlobal dispatch
// to. The vm package calls this once from an init func so that any
// program importing vm gets working Exec/SetGlobal calls without
// having to wire the two packages together by hand.
func SetRunner(r func(ctx *Context, ip int) (heap.Ref, int, error)) {
	runner = r
}

// run invokes the registered VM from ip and, on success, pops its
// result off the operand stack before returning it: Exit leaves the
// result sitting on top rather than consuming it (there is nothing
// left to hand it to inside the VM itself), and since the program
// buffer is cumulative across many Exec/SetGlobal calls, leaving that
// value behind would leak one operand stack slot per call.
func (ctx *Context) run(ip int) (heap.Ref, error) {
	result, newIP, err := ctx.runSegment(ip)
	ctx.ip = newIP
	return result, err
}

// runSegment is the shared implementation behind run and RunSegment:
// it runs the installed VM from ip through its next Exit and reports
// both the popped result and the ip immediately past that Exit, the
// entry point of whatever segment (if any) follows it in the program
// buffer.
func (ctx *Context) runSegment(ip int) (heap.Ref, int, error) {
	if runner == nil {
		return heap.InvalidRef, ip, RuntimeError{Message: "no VM installed (import nilan/vm for its init-time registration)"}
	}
	result, newIP, err := runner(ctx, ip)
	if err != nil {
		return heap.InvalidRef, newIP, err
	}
	ctx.PopOperand()
	return result, newIP, nil
}

// LoadProgram appends a previously-compiled instruction stream to the
// program buffer, as bytefmt.Load does with the binary tail it reads
// off disk, and reports the ip it starts at so the caller can step
// through its Exit-delimited segments with RunSegment.
func (ctx *Context) LoadProgram(instructions compiler.Instructions) int {
	start := len(ctx.Program)
	ctx.Program = append(ctx.Program, instructions...)
	return start
}

// RunSegment runs one Exit-delimited segment starting at ip -- the
// unit bytefmt.Load replays the binary program tail in, "invoking the
// VM at successive entry points until the buffer is exhausted" per
// spec.md §6 -- and returns the segment's result together with the ip
// immediately following it, the next segment's entry point.
func (ctx *Context) RunSegment(ip int) (heap.Ref, int, error) {
	return ctx.runSegment(ip)
}

// ProgramLen reports how many bytes of bytecode the program buffer
// currently holds, the exhaustion point RunSegment's caller steps
// toward.
func (ctx *Context) ProgramLen() int {
	return len(ctx.Program)
}

// SetGlobal binds name to value at the top level, synthesizing and
// running a one-statement `(def name <value>)` program fragment the
// same way Exec does for user source -- this is also how built-ins
// and native-extension registrations reach the top-level frame (see
// builtins.Install), so there is exactly one code path that ever
// grows the top-level scope.
func (ctx *Context) SetGlobal(name string, value heap.Ref) error {
	id := ctx.addImmediate(value)
	literal := &ast.Quote{}
	literal.MarkResolved(id)
	def := &ast.Def{Name: name, Value: literal}
	_, err := ctx.compileAndRun([]ast.Node{def})
	return err
}

// GetGlobal resolves name against the top-level scope and loads its
// value, without touching the program buffer.
func (ctx *Context) GetGlobal(name string) (heap.Ref, error) {
	names := ctx.top.Names()
	for i := len(names) - 1; i >= 0; i-- {
		if names[i] == name {
			return ctx.topFrame.At(0, uint16(i)), nil
		}
	}
	return heap.InvalidRef, RuntimeError{Message: fmt.Sprintf("undefined global: %s", name)}
}
