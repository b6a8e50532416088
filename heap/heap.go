package heap

import "fmt"

// OOMError reports that an allocation did not fit in the arena. Every
// failed allocation returns it; the Context treats the first one as
// its signal to run the collector and retry, and a second one from
// that retry propagates as the fatal error.
type OOMError struct {
	Requested int
	Capacity  int
}

func (e OOMError) Error() string {
	return fmt.Sprintf("💥 OOMError: requested %d bytes, capacity is %d", e.Requested, e.Capacity)
}

// Heap is a single fixed-capacity byte arena. Allocation bumps the
// write position; nothing is ever moved except by a collection
// (runtime's Context.Collect). Unlike a Go slice grown by append, a Heap never
// reallocates its backing array, so a Ref handed out today stays
// valid until the next compaction.
type Heap struct {
	buf []byte
}

// New allocates a Heap with room for exactly capacity bytes.
func New(capacity int) *Heap {
	return &Heap{buf: make([]byte, 0, capacity)}
}

// Size reports how many bytes of the arena are currently in use.
func (h *Heap) Size() int {
	return len(h.buf)
}

// Capacity reports the arena's fixed total size.
func (h *Heap) Capacity() int {
	return cap(h.buf)
}

// alloc bumps the heap's write position by n bytes and returns the
// Ref to the start of the new region, zero-filled. The explicit clear
// matters after a compaction has truncated the arena: the reclaimed
// bytes still hold stale record data, and a record whose constructor
// fails partway (a String running out of room for its characters)
// must leave only zero headers behind for Records to step over.
func (h *Heap) alloc(n int) (Ref, error) {
	if len(h.buf)+n > cap(h.buf) {
		return InvalidRef, OOMError{Requested: n, Capacity: cap(h.buf)}
	}
	ref := Ref(len(h.buf))
	h.buf = h.buf[:len(h.buf)+n]
	clear(h.buf[ref:])
	return ref, nil
}

// record returns the slice backing the record at ref, sized for tag.
func (h *Heap) record(ref Ref, tag Tag) []byte {
	size := recordSize[tag]
	return h.buf[ref : int(ref)+size]
}

// Tag reports the tag of the record at ref.
func (h *Heap) Tag(ref Ref) Tag {
	return headerTag(h.buf[ref])
}

func (h *Heap) marked(ref Ref) bool {
	return headerMarked(h.buf[ref])
}

func (h *Heap) mark(ref Ref) {
	h.buf[ref] = headerMark(h.buf[ref])
}

func (h *Heap) unmark(ref Ref) {
	h.buf[ref] = headerUnmark(h.buf[ref])
}

// --- constructors -----------------------------------------------------

func (h *Heap) NewNull() (Ref, error) {
	ref, err := h.alloc(recordSize[TagNull])
	if err != nil {
		return InvalidRef, err
	}
	h.buf[ref] = header(TagNull)
	return ref, nil
}

func (h *Heap) NewBoolean(v bool) (Ref, error) {
	ref, err := h.alloc(recordSize[TagBoolean])
	if err != nil {
		return InvalidRef, err
	}
	rec := h.record(ref, TagBoolean)
	rec[0] = header(TagBoolean)
	if v {
		rec[1] = 1
	}
	return ref, nil
}

func (h *Heap) GetBoolean(ref Ref) bool {
	return h.record(ref, TagBoolean)[1] != 0
}

func (h *Heap) NewInteger(v int32) (Ref, error) {
	ref, err := h.alloc(recordSize[TagInteger])
	if err != nil {
		return InvalidRef, err
	}
	rec := h.record(ref, TagInteger)
	rec[0] = header(TagInteger)
	putInt32(rec[1:], v)
	return ref, nil
}

func (h *Heap) GetInteger(ref Ref) int32 {
	return getInt32(h.record(ref, TagInteger)[1:])
}

func (h *Heap) NewFloat(v float64) (Ref, error) {
	ref, err := h.alloc(recordSize[TagFloat])
	if err != nil {
		return InvalidRef, err
	}
	rec := h.record(ref, TagFloat)
	rec[0] = header(TagFloat)
	putFloat64(rec[1:], v)
	return ref, nil
}

func (h *Heap) GetFloat(ref Ref) float64 {
	return getFloat64(h.record(ref, TagFloat)[1:])
}

func (h *Heap) NewComplex(re, im float64) (Ref, error) {
	ref, err := h.alloc(recordSize[TagComplex])
	if err != nil {
		return InvalidRef, err
	}
	rec := h.record(ref, TagComplex)
	rec[0] = header(TagComplex)
	putFloat64(rec[1:9], re)
	putFloat64(rec[9:17], im)
	return ref, nil
}

func (h *Heap) GetComplex(ref Ref) (re, im float64) {
	rec := h.record(ref, TagComplex)
	return getFloat64(rec[1:9]), getFloat64(rec[9:17])
}

func (h *Heap) NewCharacter(v rune) (Ref, error) {
	ref, err := h.alloc(recordSize[TagCharacter])
	if err != nil {
		return InvalidRef, err
	}
	rec := h.record(ref, TagCharacter)
	rec[0] = header(TagCharacter)
	putInt32(rec[1:], int32(v))
	return ref, nil
}

func (h *Heap) GetCharacter(ref Ref) rune {
	return rune(getInt32(h.record(ref, TagCharacter)[1:]))
}

func (h *Heap) NewPair(car, cdr Ref) (Ref, error) {
	ref, err := h.alloc(recordSize[TagPair])
	if err != nil {
		return InvalidRef, err
	}
	rec := h.record(ref, TagPair)
	rec[0] = header(TagPair)
	putRef(rec[1:5], car)
	putRef(rec[5:9], cdr)
	return ref, nil
}

func (h *Heap) Car(ref Ref) Ref {
	return getRef(h.record(ref, TagPair)[1:5])
}

func (h *Heap) Cdr(ref Ref) Ref {
	return getRef(h.record(ref, TagPair)[5:9])
}

func (h *Heap) SetCar(ref Ref, v Ref) {
	putRef(h.record(ref, TagPair)[1:5], v)
}

func (h *Heap) SetCdr(ref Ref, v Ref) {
	putRef(h.record(ref, TagPair)[5:9], v)
}

// NewString allocates a String record and, immediately after it, one
// Character record per glyph in runes — a sub-arena carved out of the
// same Heap, laid out contiguously so CharAt can reach glyph i by
// simple offset arithmetic. Each glyph is its own tagged, markable,
// relocatable Value: a live String keeps every one of its Characters
// marked as a unit (see Edges), so the run stays contiguous across
// compaction and CharAt's arithmetic stays valid.
func (h *Heap) NewString(runes []rune) (Ref, error) {
	ref, err := h.alloc(recordSize[TagString])
	if err != nil {
		return InvalidRef, err
	}
	firstChar := InvalidRef
	for i, r := range runes {
		cref, err := h.NewCharacter(r)
		if err != nil {
			return InvalidRef, err
		}
		if i == 0 {
			firstChar = cref
		}
	}
	rec := h.record(ref, TagString)
	rec[0] = header(TagString)
	putInt32(rec[1:5], int32(len(runes)))
	putRef(rec[5:9], firstChar)
	return ref, nil
}

func (h *Heap) StringLen(ref Ref) int {
	return int(getInt32(h.record(ref, TagString)[1:5]))
}

func (h *Heap) stringFirstChar(ref Ref) Ref {
	return getRef(h.record(ref, TagString)[5:9])
}

// CharAt returns the Ref of the i'th Character record of the string
// at ref. Characters are contiguous, fixed-size records, so index i
// sits at firstChar + i*SizeOf(TagCharacter).
func (h *Heap) CharAt(ref Ref, i int) Ref {
	first := h.stringFirstChar(ref)
	return first + Ref(i*recordSize[TagCharacter])
}

// RuneString reads a String record's glyphs back into a Go string.
func (h *Heap) RuneString(ref Ref) string {
	n := h.StringLen(ref)
	runes := make([]rune, n)
	for i := 0; i < n; i++ {
		runes[i] = h.GetCharacter(h.CharAt(ref, i))
	}
	return string(runes)
}

func (h *Heap) NewSymbol(name Ref) (Ref, error) {
	ref, err := h.alloc(recordSize[TagSymbol])
	if err != nil {
		return InvalidRef, err
	}
	rec := h.record(ref, TagSymbol)
	rec[0] = header(TagSymbol)
	putRef(rec[1:5], name)
	return ref, nil
}

func (h *Heap) SymbolName(ref Ref) Ref {
	return getRef(h.record(ref, TagSymbol)[1:5])
}

func (h *Heap) SetSymbolName(ref Ref, name Ref) {
	putRef(h.record(ref, TagSymbol)[1:5], name)
}

// NewRawPointer stores handle, an index into the owning Context's
// native-handle table — not a real pointer. Go values stored directly
// as arena bytes would be invisible to Go's own garbage collector and
// would dangle across a compaction, so every native handle this VM
// exposes to Lisp code is an opaque table index instead.
func (h *Heap) NewRawPointer(handle uint32) (Ref, error) {
	ref, err := h.alloc(recordSize[TagRawPointer])
	if err != nil {
		return InvalidRef, err
	}
	rec := h.record(ref, TagRawPointer)
	rec[0] = header(TagRawPointer)
	putUint32(rec[1:], handle)
	return ref, nil
}

func (h *Heap) RawPointerHandle(ref Ref) uint32 {
	return getUint32(h.record(ref, TagRawPointer)[1:])
}

func (h *Heap) NewBox(v Ref) (Ref, error) {
	ref, err := h.alloc(recordSize[TagBox])
	if err != nil {
		return InvalidRef, err
	}
	rec := h.record(ref, TagBox)
	rec[0] = header(TagBox)
	putRef(rec[1:5], v)
	return ref, nil
}

func (h *Heap) BoxValue(ref Ref) Ref {
	return getRef(h.record(ref, TagBox)[1:5])
}

func (h *Heap) SetBoxValue(ref Ref, v Ref) {
	putRef(h.record(ref, TagBox)[1:5], v)
}

// InvocationModel distinguishes how a Function's body is reached.
type InvocationModel byte

const (
	// Wrapped functions call into Go: Entry is an index into the
	// owning Context's native-function table.
	Wrapped InvocationModel = iota
	// Bytecode functions jump to a fixed-arity entry address.
	Bytecode
	// BytecodeVariadic is Bytecode with its last parameter bound to
	// the list of any arguments past the required count.
	BytecodeVariadic
	// WrappedVariadic is Wrapped with RequiredArgs read as a minimum
	// rather than an exact count -- builtins package uses this for
	// arithmetic and list-construction natives (`+`, `list`, ...)
	// that spec.md's end-to-end scenarios call with differing argc
	// at each site (e.g. `(+ 1 2 3)`), which a single fixed-arity
	// native could never satisfy.
	WrappedVariadic
)

// NewFunction allocates a Function record. frameID indexes the owning
// Context's frame table (see Frame) rather than holding a pointer
// directly, for the same reason RawPointer stores a handle: arena
// records can be relocated wholesale by Move's byte copies during
// compaction, and a *Frame sitting verbatim inside
// that byte range would not survive the copy as a valid Go pointer.
func (h *Heap) NewFunction(model InvocationModel, requiredArgs int, doc Ref, entry uint32, frameID uint32) (Ref, error) {
	ref, err := h.alloc(recordSize[TagFunction])
	if err != nil {
		return InvalidRef, err
	}
	rec := h.record(ref, TagFunction)
	rec[0] = header(TagFunction)
	rec[1] = byte(model)
	putUint16(rec[2:4], uint16(requiredArgs))
	putRef(rec[4:8], doc)
	putUint32(rec[8:12], entry)
	putUint32(rec[12:16], frameID)
	return ref, nil
}

func (h *Heap) FunctionModel(ref Ref) InvocationModel {
	return InvocationModel(h.record(ref, TagFunction)[1])
}

func (h *Heap) FunctionRequiredArgs(ref Ref) int {
	return int(getUint16(h.record(ref, TagFunction)[2:4]))
}

func (h *Heap) FunctionDoc(ref Ref) Ref {
	return getRef(h.record(ref, TagFunction)[4:8])
}

func (h *Heap) SetFunctionDoc(ref Ref, doc Ref) {
	putRef(h.record(ref, TagFunction)[4:8], doc)
}

func (h *Heap) FunctionEntry(ref Ref) uint32 {
	return getUint32(h.record(ref, TagFunction)[8:12])
}

func (h *Heap) FunctionFrameID(ref Ref) uint32 {
	return getUint32(h.record(ref, TagFunction)[12:16])
}
