package ast

// SplitDocstring implements the docstring detachment rule from
// spec.md §4.2: if the first body statement is a string literal and
// at least one more statement follows, the string is detached and
// returned as the docstring. A lambda whose sole statement is a
// string literal is the boundary case from spec.md §8 — the string is
// the lambda's return value, not its docstring, so it is left alone.
func SplitDocstring(body []Node) (doc string, hasDoc bool, rest []Node) {
	if len(body) < 2 {
		return "", false, body
	}
	first, ok := body[0].(*StringLit)
	if !ok {
		return "", false, body
	}
	return first.Value, true, body[1:]
}
