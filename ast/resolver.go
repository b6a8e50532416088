package ast

import "fmt"

// ResolveError is raised for any compile-time name-resolution failure:
// an unknown name, a name referenced before its own initializer has
// finished evaluating, or `set` applied to an immutable binding.
type ResolveError struct {
	Name    string
	Message string
}

func (e ResolveError) Error() string {
	return fmt.Sprintf("💥 ResolveError: %s: %s", e.Name, e.Message)
}

// Resolve performs the resolver's single combined init/emit-prep pass
// over node: it interns every literal into interner and caches the
// returned immediate id, and it computes and caches a VarLoc for
// every Variable/Set reference by walking the lexical scope chain.
// current is the lexical scope node is resolved within — callers
// resolving a freshly parsed top-level program pass their TopLevel
// node as both node and scope.
func Resolve(node Node, current Scope, interner Interner) error {
	switch n := node.(type) {
	case *IntegerLit:
		if !n.Resolved() {
			n.MarkResolved(interner.InternInteger(n.Value))
		}
	case *FloatLit:
		if !n.Resolved() {
			n.MarkResolved(interner.InternFloat(n.Value))
		}
	case *StringLit:
		if !n.Resolved() {
			n.MarkResolved(interner.InternString(n.Value))
		}
	case *CharLit:
		if !n.Resolved() {
			n.MarkResolved(interner.InternChar(n.Value))
		}
	case *BoolLit, *NullLit:
		// Singletons; nothing to resolve.
	case *Quote:
		if !n.Resolved() {
			n.MarkResolved(interner.InternDatum(n.Value))
		}
	case *Variable:
		res := lookup(current, n.Name)
		if !res.found {
			return ResolveError{n.Name, "unknown name"}
		}
		if res.sameScope && !res.initialized {
			return ResolveError{n.Name, "used before defined in its own initializer"}
		}
		n.SetLoc(res.loc)
	case *Set:
		res := lookup(current, n.Name)
		if !res.found {
			return ResolveError{n.Name, "unknown name"}
		}
		if !res.mutable {
			return ResolveError{n.Name, "cannot set an immutable binding (declare with def-mut/let-mut)"}
		}
		if err := Resolve(n.Value, current, interner); err != nil {
			return err
		}
		n.SetLoc(res.loc)
	case *Def:
		offset := current.(interface {
			DeclareUninitialized(string, bool) int
		}).DeclareUninitialized(n.Name, n.Mutable)
		if err := Resolve(n.Value, current, interner); err != nil {
			return err
		}
		current.(interface{ MarkInitialized(int) }).MarkInitialized(offset)
	case *Lambda:
		if n.HasDoc && !n.DocResolved() {
			n.MarkDocResolved(interner.InternString(n.Docstring))
		}
		for _, stmt := range n.Body {
			if err := Resolve(stmt, n, interner); err != nil {
				return err
			}
		}
	case *Let:
		// Bindings are non-recursive: each value is resolved against
		// the enclosing scope, not the let's own frame, so a binding
		// cannot see its sibling bindings or itself.
		for _, b := range n.Bindings {
			if err := Resolve(b.Value, current, interner); err != nil {
				return err
			}
		}
		for _, b := range n.Bindings {
			if n.Mutable {
				n.DeclareMutable(b.Name)
			} else {
				n.Declare(b.Name)
			}
		}
		for _, stmt := range n.Body {
			if err := Resolve(stmt, n, interner); err != nil {
				return err
			}
		}
	case *If:
		if err := Resolve(n.Cond, current, interner); err != nil {
			return err
		}
		if err := Resolve(n.Then, current, interner); err != nil {
			return err
		}
		if err := Resolve(n.Else, current, interner); err != nil {
			return err
		}
	case *Begin:
		for _, stmt := range n.Body {
			if err := Resolve(stmt, current, interner); err != nil {
				return err
			}
		}
	case *Namespace:
		// Transparent: no new scope, names declared within land in
		// the nearest enclosing frame scope. See DESIGN.md.
		for _, stmt := range n.Body {
			if err := Resolve(stmt, current, interner); err != nil {
				return err
			}
		}
	case *And:
		for _, arg := range n.Args {
			if err := Resolve(arg, current, interner); err != nil {
				return err
			}
		}
	case *Or:
		for _, arg := range n.Args {
			if err := Resolve(arg, current, interner); err != nil {
				return err
			}
		}
	case *Recur:
		for _, arg := range n.Args {
			if err := Resolve(arg, current, interner); err != nil {
				return err
			}
		}
	case *Application:
		if err := Resolve(n.Callee, current, interner); err != nil {
			return err
		}
		for _, arg := range n.Args {
			if err := Resolve(arg, current, interner); err != nil {
				return err
			}
		}
	case *TopLevel:
		for _, stmt := range n.Body {
			if err := Resolve(stmt, n, interner); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("🤖 DeveloperError: unhandled node type %T", node)
	}
	return nil
}
