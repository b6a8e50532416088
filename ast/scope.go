package ast

// scope is the shared bookkeeping embedded by every frame-introducing
// node (Lambda, Let, TopLevel): names, mutable and initialized grow
// together, index-for-index, so an offset into one is an offset into
// all three.
type scope struct {
	parent      Scope
	names       []string
	mutable     []bool
	initialized []bool
}

func (s *scope) ParentScope() Scope { return s.parent }
func (s *scope) Names() []string    { return s.names }

// Declare appends an immutable, already-initialized local — the
// common case for lambda parameters and let bindings, whose value is
// fully available the moment the frame is entered.
func (s *scope) Declare(name string) int {
	return s.declare(name, false, true)
}

// DeclareMutable appends a local that `set` is permitted to rebind.
func (s *scope) DeclareMutable(name string) int {
	return s.declare(name, true, true)
}

// DeclareUninitialized appends a local whose initializer has not yet
// been evaluated, used for def/def-mut so a direct self-reference in
// the initializer (e.g. `(def x (+ x 1))`) can be flagged rather than
// silently reading garbage. MarkInitialized must be called once the
// initializer has been resolved.
func (s *scope) DeclareUninitialized(name string, mutable bool) int {
	return s.declare(name, mutable, false)
}

func (s *scope) declare(name string, mutable, initialized bool) int {
	s.names = append(s.names, name)
	s.mutable = append(s.mutable, mutable)
	s.initialized = append(s.initialized, initialized)
	return len(s.names) - 1
}

// MarkInitialized flips the initialized flag for the local at offset,
// once its initializer expression has finished resolving.
func (s *scope) MarkInitialized(offset int) {
	s.initialized[offset] = true
}

// TruncateNames drops every local declared at offset n and beyond,
// rolling the scope back to a snapshot taken before a resolve pass
// that later failed. A declaration left behind by a failed pass would
// skew the offset of every name declared after it, because offsets
// are positions in this list.
func (s *scope) TruncateNames(n int) {
	s.names = s.names[:n]
	s.mutable = s.mutable[:n]
	s.initialized = s.initialized[:n]
}

func (s *scope) isMutable(offset int) bool     { return s.mutable[offset] }
func (s *scope) isInitialized(offset int) bool { return s.initialized[offset] }

func indexOf(names []string, name string) int {
	for i := len(names) - 1; i >= 0; i-- {
		if names[i] == name {
			return i
		}
	}
	return -1
}

// lookup walks the scope chain from "from" outward, returning the
// variable's location, whether the binding is mutable, and whether it
// was found at all. sameScope/initialized report the specific
// case the resolver needs to turn into a "used before defined" error:
// the name was found in "from" itself (frame distance zero) while
// still uninitialized.
type lookupResult struct {
	loc         VarLoc
	mutable     bool
	found       bool
	sameScope   bool
	initialized bool
}

func lookup(from Scope, name string) lookupResult {
	dist := uint16(0)
	cur := from
	for cur != nil {
		if idx := indexOf(cur.Names(), name); idx >= 0 {
			return lookupResult{
				loc:         VarLoc{FrameDist: dist, Offset: uint16(idx)},
				mutable:     cur.isMutable(idx),
				found:       true,
				sameScope:   dist == 0,
				initialized: cur.isInitialized(idx),
			}
		}
		dist++
		cur = cur.ParentScope()
	}
	return lookupResult{}
}
