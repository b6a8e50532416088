package runtime

import "nilan/heap"

// Collect runs a full stop-the-world mark-compact collection: mark
// every Value reachable from a root, compact survivors to the front
// of the arena, rewrite every Ref anywhere in the runtime (roots
// included) to its post-compaction address, and shrink the arena to
// the new high-water mark. It is always safe to call -- the VM calls
// it automatically inside AllocX's retryOnce on the first OOM, but an
// embedder may also call it directly between top-level evaluations to
// bound worst-case allocation latency (see SPEC_FULL.md's GC section).
func (ctx *Context) Collect() {
	ctx.mark()
	ctx.sweepFrameTable()
	ctx.compact()
}

// mark walks every root, setting the Heap's per-record mark bit (and
// the runtime's own per-Frame mark bit) on everything transitively
// reachable.
func (ctx *Context) mark() {
	ctx.markRef(ctx.NullRef)
	ctx.markRef(ctx.TrueRef)
	ctx.markRef(ctx.FalseRef)

	for _, ref := range ctx.immediates {
		ctx.markRef(ref)
	}
	for _, ref := range ctx.OperandStack {
		ctx.markRef(ref)
	}
	for p := ctx.persistentHead; p != nil; p = p.next {
		ctx.markRef(p.ref)
	}

	ctx.markFrame(ctx.topFrame)
	ctx.markFrame(ctx.env)
	for _, entry := range ctx.CallStack {
		ctx.markFrame(entry.ArgFrame)
		ctx.markFrame(entry.CallerEnv)
	}
}

// markRef marks ref and everything reachable from it. A Function
// whose invocation model is not Wrapped additionally keeps its
// captured definition frame alive: heap.Edges cannot express that
// edge because a Function's frameID indexes the runtime's frame
// table, not another heap.Ref, so the one edge the arena itself
// cannot see is threaded through here instead.
func (ctx *Context) markRef(ref heap.Ref) {
	if ref == heap.InvalidRef || ctx.Heap.Marked(ref) {
		return
	}
	ctx.Heap.Mark(ref)

	if ctx.Heap.Tag(ref) == heap.TagFunction && ctx.Heap.FunctionModel(ref) != heap.Wrapped {
		ctx.markFrame(ctx.frameByID(ctx.Heap.FunctionFrameID(ref)))
	}

	for _, edge := range ctx.Heap.Edges(ref) {
		ctx.markRef(edge)
	}
}

// markFrame marks f and every ancestor's locals, stopping as soon as
// it reaches a frame already marked -- a closure chain and the live
// call stack routinely share a suffix of frames, and re-walking that
// shared suffix once per path would be wasted work, not a
// correctness bug, but the early exit keeps collection time
// proportional to the live frame graph rather than the number of
// paths through it.
func (ctx *Context) markFrame(f *Frame) {
	for f != nil && !f.marked {
		f.marked = true
		for _, ref := range f.locals {
			ctx.markRef(ref)
		}
		f = f.parent
	}
}

// sweepFrameTable nils out every frame-table slot whose Frame did not
// get marked, so Go's own garbage collector can reclaim it. This must
// run after mark and before compact, since compact's remap pass
// reuses and then clears the same marked flag mark just set.
func (ctx *Context) sweepFrameTable() {
	for i, f := range ctx.frames.frames {
		if f != nil && !f.marked {
			ctx.frames.frames[i] = nil
		}
	}
}

// compact slides every marked record down to eliminate the gaps left
// by unmarked ones, then rewrites every Ref anywhere in the runtime to
// the address its referent moved to.
func (ctx *Context) compact() {
	remap := make(map[heap.Ref]heap.Ref)
	next := heap.Ref(0)

	ctx.Heap.Records(func(ref heap.Ref, tag heap.Tag) {
		if !ctx.Heap.Marked(ref) {
			return
		}
		remap[ref] = next
		next += heap.Ref(heap.SizeOf(tag))
	})

	remapFn := func(r heap.Ref) heap.Ref {
		if r == heap.InvalidRef {
			return heap.InvalidRef
		}
		return remap[r]
	}

	ctx.Heap.Records(func(ref heap.Ref, tag heap.Tag) {
		if !ctx.Heap.Marked(ref) {
			return
		}
		newRef := remap[ref]
		if newRef != ref {
			ctx.Heap.Move(ref, newRef)
		}
	})

	// RewriteRefs must run against the relocated bytes at their new
	// addresses, and only after every survivor has already moved --
	// otherwise a record relocated early could have its not-yet-moved
	// neighbor overwritten before that neighbor's own Move runs.
	for _, newRef := range remap {
		ctx.Heap.RewriteRefs(newRef, remapFn)
		ctx.Heap.Unmark(newRef)
	}

	ctx.Heap.Truncate(int(next))

	ctx.NullRef = remapFn(ctx.NullRef)
	ctx.TrueRef = remapFn(ctx.TrueRef)
	ctx.FalseRef = remapFn(ctx.FalseRef)

	for i, ref := range ctx.immediates {
		ctx.immediates[i] = remapFn(ref)
	}
	for i, ref := range ctx.OperandStack {
		ctx.OperandStack[i] = remapFn(ref)
	}
	for p := ctx.persistentHead; p != nil; p = p.next {
		p.ref = remapFn(p.ref)
	}

	// Walk the exact same root set mark() did: a frame not reachable
	// from one of these roots was already dropped by sweepFrameTable,
	// and remapFrame's mark-then-clear idiom only revisits a frame
	// still flagged from the mark phase, so retracing every root here
	// (table entries included) costs nothing extra for frames more
	// than one root shares.
	ctx.remapFrame(ctx.topFrame, remapFn)
	ctx.remapFrame(ctx.env, remapFn)
	for _, entry := range ctx.CallStack {
		ctx.remapFrame(entry.ArgFrame, remapFn)
		ctx.remapFrame(entry.CallerEnv, remapFn)
	}
	for _, f := range ctx.frames.frames {
		if f != nil {
			ctx.remapFrame(f, remapFn)
		}
	}
}

// remapFrame rewrites f's own locals and recurses up its parent
// chain, using the same mark-then-clear idiom as markFrame so a frame
// reachable via more than one path is rewritten exactly once.
func (ctx *Context) remapFrame(f *Frame, remap func(heap.Ref) heap.Ref) {
	for f != nil && f.marked {
		f.marked = false
		for i, ref := range f.locals {
			f.locals[i] = remap(ref)
		}
		f = f.parent
	}
}
