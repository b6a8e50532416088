package heap

// This file exposes the low-level primitives a mark-compact collector
// needs over the arena: which refs a record points to, flipping its
// mark bit, relocating its bytes, and rewriting its internal pointers
// after a move. The collector itself (root enumeration, the break
// list, the actual compaction pass) lives in the runtime package,
// which is the one place that also knows about frames, the call
// stack, and persistent handles — everything the arena by itself
// can't see.

// Edges returns every Ref directly reachable from the record at ref.
// A String's edges are every one of its Character records, not just
// the first, so a live String keeps its whole run of glyphs marked
// together; a Character has no edges, so a Persistent pinning a single
// character keeps only that character (see DESIGN.md's resolution of
// the "string interior-reference retention" open question).
func (h *Heap) Edges(ref Ref) []Ref {
	switch h.Tag(ref) {
	case TagPair:
		return []Ref{h.Car(ref), h.Cdr(ref)}
	case TagBox:
		return []Ref{h.BoxValue(ref)}
	case TagSymbol:
		return []Ref{h.SymbolName(ref)}
	case TagString:
		n := h.StringLen(ref)
		if n == 0 {
			return nil
		}
		edges := make([]Ref, n)
		for i := 0; i < n; i++ {
			edges[i] = h.CharAt(ref, i)
		}
		return edges
	case TagFunction:
		if doc := h.FunctionDoc(ref); doc != InvalidRef {
			return []Ref{doc}
		}
		return nil
	default:
		return nil
	}
}

// Mark, Unmark and Marked expose the header's mark bit to callers
// outside the package: the collector's mark phase and the compactor's
// post-pass cleanup both live in runtime, not here.
func (h *Heap) Mark(ref Ref)        { h.mark(ref) }
func (h *Heap) Unmark(ref Ref)      { h.unmark(ref) }
func (h *Heap) Marked(ref Ref) bool { return h.marked(ref) }

// Move copies the record at old onto new. Compaction only ever shifts
// survivors toward the front of the arena, so new <= old always holds
// and the ranges may overlap; copy() (like memmove) handles that
// correctly regardless of direction.
func (h *Heap) Move(old, new Ref) {
	size := recordSize[h.Tag(old)]
	copy(h.buf[new:int(new)+size], h.buf[old:int(old)+size])
}

// RewriteRefs updates every internal pointer field of the record at
// ref in place, passing each through remap. It is the write-side
// counterpart of Edges, called once per survivor after every Ref in
// the heap (roots included) has a known post-compaction address.
func (h *Heap) RewriteRefs(ref Ref, remap func(Ref) Ref) {
	switch h.Tag(ref) {
	case TagPair:
		h.SetCar(ref, remap(h.Car(ref)))
		h.SetCdr(ref, remap(h.Cdr(ref)))
	case TagBox:
		h.SetBoxValue(ref, remap(h.BoxValue(ref)))
	case TagSymbol:
		h.SetSymbolName(ref, remap(h.SymbolName(ref)))
	case TagString:
		if first := h.stringFirstChar(ref); first != InvalidRef {
			rec := h.record(ref, TagString)
			putRef(rec[5:9], remap(first))
		}
	case TagFunction:
		if doc := h.FunctionDoc(ref); doc != InvalidRef {
			h.SetFunctionDoc(ref, remap(doc))
		}
	}
}

// Records walks every record currently in the arena in address order,
// calling visit once per record with its ref and tag. Mutating the
// heap (allocating, moving) from inside visit is not supported.
func (h *Heap) Records(visit func(ref Ref, tag Tag)) {
	addr := Ref(0)
	end := Ref(len(h.buf))
	for addr < end {
		tag := h.Tag(addr)
		visit(addr, tag)
		addr += Ref(recordSize[tag])
	}
}

// Truncate shrinks the arena's in-use length to newSize, reclaiming
// the trailing bytes compaction proved unreachable. newSize must be
// the address one past the last surviving record.
func (h *Heap) Truncate(newSize int) {
	h.buf = h.buf[:newSize]
}
