package vm

import (
	"nilan/heap"
	"nilan/runtime"
)

// dispatchCall implements the Call protocol from spec.md §4.5: pop
// the callee, branch on its invocation model, and either invoke a
// native callable directly or derive a fresh argument frame and jump
// into the callee's bytecode. It returns the instruction pointer
// execution should resume at.
func dispatchCall(ctx *runtime.Context, argc, ip int) (int, error) {
	callee, err := ctx.PopOperand()
	if err != nil {
		return ip, err
	}
	if ctx.Heap.Tag(callee) != heap.TagFunction {
		return ip, runtime.TypeError{Tag: ctx.Heap.Tag(callee).String(), Reason: "call target is not a function"}
	}

	model := ctx.Heap.FunctionModel(callee)
	required := ctx.Heap.FunctionRequiredArgs(callee)

	switch model {
	case heap.Wrapped, heap.WrappedVariadic:
		if model == heap.Wrapped && argc != required {
			return ip, runtime.ArityError{Name: "<native>", Expected: required, Got: argc}
		}
		if model == heap.WrappedVariadic && argc < required {
			return ip, runtime.ArityError{Name: "<native>", Expected: required, Got: argc, AtLeast: true}
		}
		args := ctx.Arguments(argc)
		fn := ctx.NativeFunc(ctx.Heap.FunctionEntry(callee))
		result, err := fn(ctx, args)
		if err != nil {
			return ip, err
		}
		ctx.DropOperands(argc)
		ctx.PushOperand(result)
		return ip, nil

	case heap.Bytecode:
		if argc != required {
			return ip, runtime.ArityError{Name: "<lambda>", Expected: required, Got: argc}
		}
		return enterCall(ctx, callee, ip, required, false), nil

	case heap.BytecodeVariadic:
		if argc < required {
			return ip, runtime.ArityError{Name: "<lambda>", Expected: required, Got: argc, AtLeast: true}
		}
		if err := collectRest(ctx, argc, required); err != nil {
			return ip, err
		}
		return enterCall(ctx, callee, ip, required, true), nil

	default:
		return ip, runtime.RuntimeError{Message: "unknown function invocation model"}
	}
}

// enterCall pushes a call-stack entry for callee and returns the
// bytecode address execution resumes at: the Store sequence the
// callee's entry address points to.
func enterCall(ctx *runtime.Context, callee heap.Ref, returnAddr, required int, variadic bool) int {
	closure := ctx.FrameByID(ctx.Heap.FunctionFrameID(callee))
	frame := ctx.NewCallFrame(closure)
	entry := int(ctx.Heap.FunctionEntry(callee))

	ctx.CallStack = append(ctx.CallStack, runtime.CallStackEntry{
		ReturnAddr:   returnAddr,
		FunctionTop:  entry,
		ArgFrame:     frame,
		CallerEnv:    ctx.CurrentFrame(),
		RequiredArgs: required,
		Variadic:     variadic,
	})
	ctx.SetEnv(frame)
	return entry
}

// collectRest merges every argument past the required count into a
// single list (in call order) and leaves it on top of the operand
// stack in place of those individual values, so the generic Store
// sequence the compiler already emitted for the lambda's full
// parameter list (required positional params plus the rest slot) can
// consume it exactly like any other call.
func collectRest(ctx *runtime.Context, argc, required int) error {
	extra := argc - required
	vals := make([]heap.Ref, extra)
	for i := extra - 1; i >= 0; i-- {
		v, err := ctx.PopOperand()
		if err != nil {
			return err
		}
		vals[i] = v
	}
	rest, err := ctx.BuildList(vals)
	if err != nil {
		return err
	}
	ctx.PushOperand(rest)
	return nil
}

// dispatchRecur implements spec.md §4.5's Recur: reuse the active
// call's own argument frame, clearing it so the Store sequence at
// FunctionTop rebinds it from scratch off the operand stack, without
// growing the call stack. Recur expects exactly as many values on the
// operand stack as the target lambda's full parameter list -- for a
// variadic lambda that means the caller must supply an
// already-built list for the rest slot; recur does not re-run
// call-time rest collection, which only ever runs once, at the
// lambda's original entry.
func dispatchRecur(ctx *runtime.Context) (int, error) {
	if len(ctx.CallStack) == 0 {
		return 0, runtime.RuntimeError{Message: "recur used outside of a function call"}
	}
	entry := &ctx.CallStack[len(ctx.CallStack)-1]
	entry.ArgFrame.Reset()
	ctx.SetEnv(entry.ArgFrame)
	return entry.FunctionTop, nil
}

// pushLambda allocates the Function value PushLambda/
// PushDocumentedLambda/PushVariadicLambda all emit, capturing the
// currently active environment frame as its closure. ip is left
// pointing at the placeholder Jump instruction that immediately
// follows every one of these opcodes in the compiled stream (see
// compiler.Builder.compileLambda): the caller falls through to it
// naturally on the next iteration of the dispatch loop, which is what
// actually skips past the lambda's body when merely defining it
// rather than calling it.
func pushLambda(ctx *runtime.Context, model heap.InvocationModel, paramCount int, doc heap.Ref, ip int) (int, error) {
	required := paramCount
	if model == heap.BytecodeVariadic {
		required = paramCount - 1
	}
	entry := uint32(ip) + 3
	frameID := ctx.CaptureEnvID()
	fn, err := ctx.AllocFunction(model, required, doc, entry, frameID)
	if err != nil {
		return ip, err
	}
	ctx.PushOperand(fn)
	return ip, nil
}
