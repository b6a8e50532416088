// Package extension describes the native extension ABI from
// spec.md §6 as a Go interface boundary rather than an actual
// dynamic-library loader: real `dlopen`/`plugin.Open` loading is
// explicitly out of scope (spec.md §1, SPEC_FULL.md §5's Non-goals),
// but the shape a loader would hand control to -- a registrar that
// can install globals into the top-level environment -- is still
// worth having so host programs can register native functionality
// the same way a loaded library eventually would.
package extension

import (
	"nilan/heap"
	"nilan/runtime"
)

// Registrar is what a loaded native extension's `__dllMain(env)`
// entry point receives in spec.md §6: a handle onto the top-level
// environment it registers functions and values into via SetGlobal.
// *runtime.Context already satisfies this interface; extensions are
// written against Registrar rather than *runtime.Context directly so
// a future real loader can hand over a narrower view if it needs to.
type Registrar interface {
	RegisterNative(name string, fn runtime.NativeFunc) uint32
	AllocFunction(model heap.InvocationModel, requiredArgs int, doc heap.Ref, entry uint32, frameID uint32) (heap.Ref, error)
	SetGlobal(name string, value heap.Ref) error
}

// Func is the signature `__dllMain` itself takes: install every
// global this extension provides into env, returning an opaque
// handle the host should release (in LIFO order, per spec.md §5) at
// Context teardown, or an error if registration failed partway
// through.
type Func func(env Registrar) (handle any, err error)

// Load runs fn against ctx as if it were a freshly loaded native
// extension's __dllMain, recording the returned handle in ctx's
// native-handle table so it is released in LIFO order at teardown.
// This is the entire "loading" story this implementation provides:
// fn is always a real, statically linked Go function -- there is no
// path from here to an on-disk shared object.
func Load(ctx *runtime.Context, fn Func) error {
	handle, err := fn(ctx)
	if err != nil {
		return err
	}
	ctx.NativeHandles = append(ctx.NativeHandles, handle)
	return nil
}

// Release tears down every loaded extension's handle in LIFO order,
// per spec.md §5's "Native extension handles are released in LIFO
// order at Context teardown." A handle's own Close/release logic is
// whatever the extension itself attached when Load ran; this package
// only knows how to walk the list backwards.
func Release(ctx *runtime.Context, release func(handle any) error) error {
	for i := len(ctx.NativeHandles) - 1; i >= 0; i-- {
		if err := release(ctx.NativeHandles[i]); err != nil {
			return err
		}
	}
	ctx.NativeHandles = nil
	return nil
}
