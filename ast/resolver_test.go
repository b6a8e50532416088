package ast

import "testing"

type fakeInterner struct {
	ints    map[int32]uint16
	nextInt uint16
}

func newFakeInterner() *fakeInterner {
	return &fakeInterner{ints: map[int32]uint16{}}
}

func (f *fakeInterner) InternInteger(v int32) uint16 {
	if id, ok := f.ints[v]; ok {
		return id
	}
	id := f.nextInt
	f.nextInt++
	f.ints[v] = id
	return id
}
func (f *fakeInterner) InternFloat(v float64) uint16   { return 0 }
func (f *fakeInterner) InternString(v string) uint16   { return 0 }
func (f *fakeInterner) InternChar(v rune) uint16       { return 0 }
func (f *fakeInterner) InternSymbol(name string) uint16 { return 0 }
func (f *fakeInterner) InternDatum(d Datum) uint16     { return 0 }

func TestResolveVariableSameScope(t *testing.T) {
	top := NewTopLevel()
	top.Body = []Node{
		&Def{Name: "x", Value: &IntegerLit{Value: 1}},
		&Variable{Name: "x"},
	}
	if err := Resolve(top, top, newFakeInterner()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ref := top.Body[1].(*Variable)
	if ref.Loc.FrameDist != 0 || ref.Loc.Offset != 0 {
		t.Fatalf("unexpected loc: %+v", ref.Loc)
	}
}

func TestResolveUnknownName(t *testing.T) {
	top := NewTopLevel()
	top.Body = []Node{&Variable{Name: "nope"}}
	err := Resolve(top, top, newFakeInterner())
	if err == nil {
		t.Fatal("expected error for unknown name")
	}
}

func TestResolveSelfReferenceInInitializerFails(t *testing.T) {
	top := NewTopLevel()
	top.Body = []Node{
		&Def{Name: "x", Value: &Variable{Name: "x"}},
	}
	err := Resolve(top, top, newFakeInterner())
	if err == nil {
		t.Fatal("expected error for direct self-reference in initializer")
	}
}

func TestResolveRecursiveLambdaSelfReferenceSucceeds(t *testing.T) {
	top := NewTopLevel()
	lambda := NewLambda(top, []string{"n"}, false, nil)
	lambda.Body = []Node{
		&Recur{Args: []Node{&Variable{Name: "n"}}},
		&Application{Callee: &Variable{Name: "fact"}, Args: []Node{&Variable{Name: "n"}}},
	}
	top.Body = []Node{
		&Def{Name: "fact", Value: lambda},
	}
	if err := Resolve(top, top, newFakeInterner()); err != nil {
		t.Fatalf("expected recursive self-reference through closure to succeed, got %v", err)
	}
}

func TestResolveLetBindingNotVisibleToItself(t *testing.T) {
	top := NewTopLevel()
	let := NewLet(top, []LetBinding{
		{Name: "x", Value: &Variable{Name: "x"}},
	}, false, nil)
	top.Body = []Node{let}
	err := Resolve(top, top, newFakeInterner())
	if err == nil {
		t.Fatal("expected error: let binding cannot reference itself")
	}
}

func TestResolveSetOnImmutableFails(t *testing.T) {
	top := NewTopLevel()
	top.Body = []Node{
		&Def{Name: "x", Value: &IntegerLit{Value: 1}, Mutable: false},
		&Set{Name: "x", Value: &IntegerLit{Value: 2}},
	}
	err := Resolve(top, top, newFakeInterner())
	if err == nil {
		t.Fatal("expected error: cannot set immutable binding")
	}
}

func TestResolveSetOnMutableSucceeds(t *testing.T) {
	top := NewTopLevel()
	top.Body = []Node{
		&Def{Name: "x", Value: &IntegerLit{Value: 1}, Mutable: true},
		&Set{Name: "x", Value: &IntegerLit{Value: 2}},
	}
	if err := Resolve(top, top, newFakeInterner()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveNamespaceIsTransparent(t *testing.T) {
	top := NewTopLevel()
	ns := &Namespace{Name: "util", Body: []Node{
		&Def{Name: "x", Value: &IntegerLit{Value: 1}},
	}}
	top.Body = []Node{ns, &Variable{Name: "x"}}
	if err := Resolve(top, top, newFakeInterner()); err != nil {
		t.Fatalf("expected namespace def to land in enclosing scope, got %v", err)
	}
}
