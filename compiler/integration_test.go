package compiler

import (
	"testing"

	"nilan/ast"
	"nilan/lexer"
	"nilan/parser"
)

type countingInterner struct {
	nextInt, nextFloat, nextString, nextChar, nextSymbol, nextDatum uint16
}

func (c *countingInterner) InternInteger(v int32) uint16 { id := c.nextInt; c.nextInt++; return id }
func (c *countingInterner) InternFloat(v float64) uint16 { id := c.nextFloat; c.nextFloat++; return id }
func (c *countingInterner) InternString(v string) uint16 { id := c.nextString; c.nextString++; return id }
func (c *countingInterner) InternChar(v rune) uint16      { id := c.nextChar; c.nextChar++; return id }
func (c *countingInterner) InternSymbol(name string) uint16 {
	id := c.nextSymbol
	c.nextSymbol++
	return id
}
func (c *countingInterner) InternDatum(d ast.Datum) uint16 { id := c.nextDatum; c.nextDatum++; return id }

// compileSource runs the full tokens -> AST -> resolve -> bytecode
// pipeline and returns the disassembly text, so each test can assert
// on the opcodes it cares about without hand-encoding bytes.
func compileSource(t *testing.T, source string) string {
	t.Helper()
	toks, err := lexer.New(source).Scan()
	if err != nil {
		t.Fatalf("lexing failed: %v", err)
	}

	top := ast.NewTopLevel()
	// Stand in for the builtins package's top-level injection (see
	// SPEC_FULL.md §4.3): only the names these tests actually
	// reference need to exist ahead of the resolver's pass.
	for _, name := range []string{"+", "cons", "car", "cdr", "null?"} {
		top.Declare(name)
	}

	forms, errs := parser.Make(toks, top).Parse()
	if len(errs) > 0 {
		t.Fatalf("parsing failed: %v", errs[0])
	}
	top.Body = forms

	if err := ast.Resolve(top, top, &countingInterner{}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	bc, err := NewBuilder().Build(top)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	dis, err := bc.DisassembleBytecode()
	if err != nil {
		t.Fatalf("disassemble failed: %v", err)
	}
	return dis
}

func TestBuildSimpleArithmeticApplication(t *testing.T) {
	dis := compileSource(t, "(+ 1 2)")
	for _, want := range []string{"PushI 0", "PushI 1", "Call 2", "Exit"} {
		if !hasLineWithPrefix(dis, want) {
			t.Errorf("expected disassembly to contain %q, got:\n%s", want, dis)
		}
	}
}

func TestBuildInlinesTopLevelCons(t *testing.T) {
	dis := compileSource(t, "(cons 1 2)")
	if !hasMnemonic(dis, "Cons") {
		t.Errorf("expected cons call to inline to Cons opcode, got:\n%s", dis)
	}
	if hasMnemonic(dis, "Call") {
		t.Errorf("did not expect a Call opcode for an inlined builtin, got:\n%s", dis)
	}
}

func TestBuildShadowedConsIsNotInlined(t *testing.T) {
	dis := compileSource(t, "(lambda (cons) (cons 1 2))")
	if !hasLineWithPrefix(dis, "Call 2") {
		t.Errorf("expected a real Call when 'cons' is shadowed by a parameter, got:\n%s", dis)
	}
}

func TestBuildLambdaEmitsStoreForEachParam(t *testing.T) {
	dis := compileSource(t, "(lambda (a b) a)")
	count := 0
	for _, line := range splitLines(dis) {
		if line == "Store" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 Store instructions for 2 params, got %d:\n%s", count, dis)
	}
}

func TestBuildIfEmitsJumps(t *testing.T) {
	dis := compileSource(t, "(if true 1 2)")
	if !hasMnemonic(dis, "JumpIfFalse") {
		t.Errorf("expected JumpIfFalse in if compilation, got:\n%s", dis)
	}
}

func TestBuildLetEntersAndExitsFrame(t *testing.T) {
	dis := compileSource(t, "(let ((x 1)) x)")
	if !hasMnemonic(dis, "EnterLet") || !hasMnemonic(dis, "ExitLet") {
		t.Errorf("expected EnterLet/ExitLet pair, got:\n%s", dis)
	}
}

func TestBuildRecurInsideLetExitsTheLet(t *testing.T) {
	dis := compileSource(t, "(lambda (n) (let ((x 1)) (recur n)))")
	lines := splitLines(dis)
	recurIdx := -1
	for i, l := range lines {
		if l == "Recur" {
			recurIdx = i
		}
	}
	if recurIdx <= 0 || lines[recurIdx-1] != "ExitLet" {
		t.Errorf("expected an ExitLet immediately before Recur, got:\n%s", dis)
	}
}

// hasMnemonic reports whether any disassembled line's opcode name
// (its text before the first space, or the whole line if it has no
// operands) equals mnemonic exactly.
func hasMnemonic(dis, mnemonic string) bool {
	for _, l := range splitLines(dis) {
		if l == mnemonic {
			return true
		}
		for i, c := range l {
			if c == ' ' {
				if l[:i] == mnemonic {
					return true
				}
				break
			}
		}
	}
	return false
}

// hasLineWithPrefix reports whether any disassembled line equals
// want exactly.
func hasLineWithPrefix(dis, want string) bool {
	for _, l := range splitLines(dis) {
		if l == want {
			return true
		}
	}
	return false
}

func splitLines(dis string) []string {
	var lines []string
	start := 0
	for i, c := range dis {
		if c == '\n' {
			lines = append(lines, stripOffset(dis[start:i]))
			start = i + 1
		}
	}
	return lines
}

// stripOffset drops the "%04d " byte-offset prefix DisassembleBytecode
// writes ahead of each instruction's mnemonic.
func stripOffset(line string) string {
	for i, c := range line {
		if c == ' ' {
			return line[i+1:]
		}
	}
	return line
}
