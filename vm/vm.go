// Package vm implements the stack-based bytecode interpreter: the
// operand stack, the call stack, and the single instruction dispatch
// loop every opcode compiler/code.go defines runs through.
package vm

import (
	"encoding/binary"
	"fmt"

	"nilan/compiler"
	"nilan/heap"
	"nilan/runtime"
)

func init() {
	runtime.SetRunner(Run)
}

// Run executes ctx.Program starting at ip until it reaches Exit, then
// returns the final value left on the operand stack (Exit's own
// result, per compileSequence's one-value-per-statement rule) along
// with the instruction pointer just past that Exit.
func Run(ctx *runtime.Context, ip int) (heap.Ref, int, error) {
	prog := ctx.Program

	for {
		if ip >= len(prog) {
			return heap.InvalidRef, ip, runtime.RuntimeError{Message: "instruction pointer ran past the end of the program"}
		}
		op := compiler.Opcode(prog[ip])
		ip++

		switch op {
		case compiler.Exit:
			result, err := ctx.PeekOperand()
			if err != nil {
				result = ctx.NullRef
			}
			return result, ip, nil

		case compiler.Call:
			argc := int(prog[ip])
			ip++
			newIP, err := dispatchCall(ctx, argc, ip)
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			ip = newIP

		case compiler.Return:
			if len(ctx.CallStack) == 0 {
				return heap.InvalidRef, ip, runtime.RuntimeError{Message: "Return with an empty call stack"}
			}
			n := len(ctx.CallStack) - 1
			entry := ctx.CallStack[n]
			ctx.CallStack = ctx.CallStack[:n]
			ctx.SetEnv(entry.CallerEnv)
			ip = entry.ReturnAddr

		case compiler.Recur:
			newIP, err := dispatchRecur(ctx)
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			ip = newIP

		case compiler.Jump:
			offset := int(binary.LittleEndian.Uint16(prog[ip:]))
			ip += 2
			ip += offset

		case compiler.JumpIfFalse:
			offset := int(binary.LittleEndian.Uint16(prog[ip:]))
			ip += 2
			v, err := ctx.PopOperand()
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			if v == ctx.FalseRef {
				ip += offset
			}

		case compiler.Load:
			dist := binary.LittleEndian.Uint16(prog[ip:])
			offset := binary.LittleEndian.Uint16(prog[ip+2:])
			ip += 4
			ctx.PushOperand(ctx.CurrentFrame().At(dist, offset))

		case compiler.Load0:
			offset := binary.LittleEndian.Uint16(prog[ip:])
			ip += 2
			ctx.PushOperand(ctx.CurrentFrame().At(0, offset))

		case compiler.Load1:
			offset := binary.LittleEndian.Uint16(prog[ip:])
			ip += 2
			ctx.PushOperand(ctx.CurrentFrame().At(1, offset))

		case compiler.Load2:
			offset := binary.LittleEndian.Uint16(prog[ip:])
			ip += 2
			ctx.PushOperand(ctx.CurrentFrame().At(2, offset))

		case compiler.Load0Fast:
			offset := uint16(prog[ip])
			ip++
			ctx.PushOperand(ctx.CurrentFrame().At(0, offset))

		case compiler.Load1Fast:
			offset := uint16(prog[ip])
			ip++
			ctx.PushOperand(ctx.CurrentFrame().At(1, offset))

		case compiler.Store:
			v, err := ctx.PopOperand()
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			ctx.CurrentFrame().Push(v)

		case compiler.Rebind:
			dist := binary.LittleEndian.Uint16(prog[ip:])
			offset := binary.LittleEndian.Uint16(prog[ip+2:])
			ip += 4
			v, err := ctx.PopOperand()
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			ctx.CurrentFrame().SetAt(dist, offset, v)

		case compiler.PushI:
			id := binary.LittleEndian.Uint16(prog[ip:])
			ip += 2
			ctx.PushOperand(ctx.ImmediateRef(id))

		case compiler.PushNull:
			ctx.PushOperand(ctx.NullRef)

		case compiler.PushTrue:
			ctx.PushOperand(ctx.TrueRef)

		case compiler.PushFalse:
			ctx.PushOperand(ctx.FalseRef)

		case compiler.PushLambda:
			argc := int(prog[ip])
			ip++
			newIP, err := pushLambda(ctx, heap.Bytecode, argc, heap.InvalidRef, ip)
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			ip = newIP

		case compiler.PushDocumentedLambda:
			argc := int(prog[ip])
			docID := binary.LittleEndian.Uint16(prog[ip+1:])
			ip += 3
			newIP, err := pushLambda(ctx, heap.Bytecode, argc, ctx.ImmediateRef(docID), ip)
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			ip = newIP

		case compiler.PushVariadicLambda:
			argc := int(prog[ip])
			ip++
			newIP, err := pushLambda(ctx, heap.BytecodeVariadic, argc, heap.InvalidRef, ip)
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			ip = newIP

		case compiler.Discard:
			if _, err := ctx.PopOperand(); err != nil {
				return heap.InvalidRef, ip, err
			}

		case compiler.EnterLet:
			ctx.EnterLet()

		case compiler.ExitLet:
			if err := ctx.ExitLet(); err != nil {
				return heap.InvalidRef, ip, err
			}

		case compiler.Cons:
			cdr, err := ctx.PopOperand()
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			car, err := ctx.PopOperand()
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			pair, err := ctx.AllocPair(car, cdr)
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			ctx.PushOperand(pair)

		case compiler.Car:
			v, err := ctx.PopOperand()
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			if ctx.Heap.Tag(v) != heap.TagPair {
				return heap.InvalidRef, ip, runtime.TypeError{Tag: ctx.Heap.Tag(v).String(), Reason: "car expects a pair"}
			}
			ctx.PushOperand(ctx.Heap.Car(v))

		case compiler.Cdr:
			v, err := ctx.PopOperand()
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			if ctx.Heap.Tag(v) != heap.TagPair {
				return heap.InvalidRef, ip, runtime.TypeError{Tag: ctx.Heap.Tag(v).String(), Reason: "cdr expects a pair"}
			}
			ctx.PushOperand(ctx.Heap.Cdr(v))

		case compiler.IsNull:
			v, err := ctx.PopOperand()
			if err != nil {
				return heap.InvalidRef, ip, err
			}
			if v == ctx.NullRef {
				ctx.PushOperand(ctx.TrueRef)
			} else {
				ctx.PushOperand(ctx.FalseRef)
			}

		default:
			return heap.InvalidRef, ip, runtime.RuntimeError{Message: fmt.Sprintf("unknown opcode %d at ip %d", op, ip-1)}
		}
	}
}
