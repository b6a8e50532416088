package parser

import (
	"testing"

	"nilan/ast"
	"nilan/lexer"
)

func parseAll(t *testing.T, src string) []ast.Node {
	t.Helper()
	toks, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	top := ast.NewTopLevel()
	p := Make(toks, top)
	forms, errs := p.Parse()
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	return forms
}

func TestParseIntegerLiteral(t *testing.T) {
	forms := parseAll(t, "42")
	if len(forms) != 1 {
		t.Fatalf("expected 1 form, got %d", len(forms))
	}
	lit, ok := forms[0].(*ast.IntegerLit)
	if !ok || lit.Value != 42 {
		t.Fatalf("expected IntegerLit{42}, got %#v", forms[0])
	}
}

func TestParseApplication(t *testing.T) {
	forms := parseAll(t, "(+ 1 2)")
	app, ok := forms[0].(*ast.Application)
	if !ok {
		t.Fatalf("expected Application, got %#v", forms[0])
	}
	if v, ok := app.Callee.(*ast.Variable); !ok || v.Name != "+" {
		t.Fatalf("unexpected callee: %#v", app.Callee)
	}
	if len(app.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(app.Args))
	}
}

func TestParseEmptyListIsNull(t *testing.T) {
	forms := parseAll(t, "()")
	if _, ok := forms[0].(*ast.NullLit); !ok {
		t.Fatalf("expected NullLit, got %#v", forms[0])
	}
}

func TestParseDefAndVariable(t *testing.T) {
	forms := parseAll(t, "(def x 1) x")
	def, ok := forms[0].(*ast.Def)
	if !ok || def.Name != "x" || def.Mutable {
		t.Fatalf("unexpected def: %#v", forms[0])
	}
	if _, ok := forms[1].(*ast.Variable); !ok {
		t.Fatalf("expected Variable, got %#v", forms[1])
	}
}

func TestParseDefnSugar(t *testing.T) {
	forms := parseAll(t, "(defn add (a b) (+ a b))")
	def, ok := forms[0].(*ast.Def)
	if !ok || def.Name != "add" {
		t.Fatalf("unexpected def: %#v", forms[0])
	}
	lambda, ok := def.Value.(*ast.Lambda)
	if !ok || len(lambda.Params) != 2 {
		t.Fatalf("expected 2-param lambda, got %#v", def.Value)
	}
}

func TestParseVariadicLambda(t *testing.T) {
	forms := parseAll(t, "(lambda (a ... rest) rest)")
	lambda, ok := forms[0].(*ast.Lambda)
	if !ok || !lambda.Variadic || len(lambda.Params) != 2 {
		t.Fatalf("expected variadic 2-param lambda, got %#v", forms[0])
	}
	if lambda.Params[1] != "rest" {
		t.Fatalf("expected rest param 'rest', got %q", lambda.Params[1])
	}
}

func TestParseLambdaDocstringDetached(t *testing.T) {
	forms := parseAll(t, `(lambda (x) "doubles x" (* x 2))`)
	lambda := forms[0].(*ast.Lambda)
	if !lambda.HasDoc || lambda.Docstring != "doubles x" {
		t.Fatalf("expected docstring to be detached, got %#v", lambda)
	}
	if len(lambda.Body) != 1 {
		t.Fatalf("expected 1 remaining body statement, got %d", len(lambda.Body))
	}
}

func TestParseLambdaSoleStringIsReturnValueNotDocstring(t *testing.T) {
	forms := parseAll(t, `(lambda (x) "just a string")`)
	lambda := forms[0].(*ast.Lambda)
	if lambda.HasDoc {
		t.Fatalf("expected no docstring when body has only one statement")
	}
	if len(lambda.Body) != 1 {
		t.Fatalf("expected the string kept as the sole body statement")
	}
}

func TestParseIfWithoutElseDefaultsToNull(t *testing.T) {
	forms := parseAll(t, "(if true 1)")
	ifNode := forms[0].(*ast.If)
	if _, ok := ifNode.Else.(*ast.NullLit); !ok {
		t.Fatalf("expected Else to default to NullLit, got %#v", ifNode.Else)
	}
}

func TestParseCondLowersToIfChain(t *testing.T) {
	forms := parseAll(t, "(cond (false 1) (true 2) (else 3))")
	ifNode, ok := forms[0].(*ast.If)
	if !ok {
		t.Fatalf("expected cond to lower to an If, got %#v", forms[0])
	}
	// Walk to the innermost If. The `else` clause lowers to a literal
	// true guard, so its Then arm should be the `else` clause's 3,
	// confirming all three clauses were consumed.
	depth := 0
	for {
		next, ok := ifNode.Else.(*ast.If)
		if !ok {
			break
		}
		ifNode = next
		depth++
	}
	if depth != 2 {
		t.Fatalf("expected two nested Ifs (3 clauses total), got depth %d", depth)
	}
	if lit, ok := ifNode.Then.(*ast.IntegerLit); !ok || lit.Value != 3 {
		t.Fatalf("expected else clause to be the literal 3, got %#v", ifNode.Then)
	}
}

func TestParseLetBindings(t *testing.T) {
	forms := parseAll(t, "(let ((x 1) (y 2)) (+ x y))")
	let := forms[0].(*ast.Let)
	if len(let.Bindings) != 2 || let.Bindings[0].Name != "x" || let.Bindings[1].Name != "y" {
		t.Fatalf("unexpected bindings: %#v", let.Bindings)
	}
}

func TestParseDelayLowersToZeroArgLambda(t *testing.T) {
	forms := parseAll(t, "(delay (+ 1 2))")
	lambda, ok := forms[0].(*ast.Lambda)
	if !ok || len(lambda.Params) != 0 {
		t.Fatalf("expected zero-arg lambda, got %#v", forms[0])
	}
}

func TestParseStreamConsLowersToConsOfDelay(t *testing.T) {
	forms := parseAll(t, "(stream-cons 1 2)")
	app, ok := forms[0].(*ast.Application)
	if !ok {
		t.Fatalf("expected Application, got %#v", forms[0])
	}
	if v, ok := app.Callee.(*ast.Variable); !ok || v.Name != "cons" {
		t.Fatalf("expected callee 'cons', got %#v", app.Callee)
	}
	if _, ok := app.Args[1].(*ast.Lambda); !ok {
		t.Fatalf("expected second arg to be a delayed lambda, got %#v", app.Args[1])
	}
}

func TestParseQuoteSugarAndLongForm(t *testing.T) {
	sugared := parseAll(t, "'(1 2 3)")
	longForm := parseAll(t, "(quote (1 2 3))")

	for _, forms := range [][]ast.Node{sugared, longForm} {
		q, ok := forms[0].(*ast.Quote)
		if !ok {
			t.Fatalf("expected Quote, got %#v", forms[0])
		}
		pair, ok := q.Value.(ast.DatumPair)
		if !ok {
			t.Fatalf("expected DatumPair, got %#v", q.Value)
		}
		if n, ok := pair.Car.(ast.DatumInt); !ok || n.Value != 1 {
			t.Fatalf("expected first element 1, got %#v", pair.Car)
		}
	}
}

func TestParseQuotedSymbolDoesNotEvaluateSpecialForm(t *testing.T) {
	forms := parseAll(t, "'(if a b)")
	q := forms[0].(*ast.Quote)
	pair := q.Value.(ast.DatumPair)
	sym, ok := pair.Car.(ast.DatumSymbol)
	if !ok || sym.Name != "if" {
		t.Fatalf("expected quoted 'if' to stay a plain symbol datum, got %#v", pair.Car)
	}
}

func TestParseNamespaceIsNotAScope(t *testing.T) {
	forms := parseAll(t, "(namespace util (def x 1))")
	ns, ok := forms[0].(*ast.Namespace)
	if !ok || ns.Name != "util" {
		t.Fatalf("unexpected namespace: %#v", forms[0])
	}
	if _, isScope := forms[0].(ast.Scope); isScope {
		t.Fatalf("namespace should not introduce a scope, got %#v", forms[0])
	}
	def, ok := ns.Body[0].(*ast.Def)
	if !ok || def.Name != "x" {
		t.Fatalf("expected def x inside namespace body, got %#v", ns.Body[0])
	}
}

func TestParseUnterminatedListIsSyntaxError(t *testing.T) {
	toks, err := lexer.New("(+ 1 2").Scan()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	_, errs := Make(toks, ast.NewTopLevel()).Parse()
	if len(errs) == 0 {
		t.Fatal("expected a syntax error for an unterminated list")
	}
}

func TestParseUnexpectedClosingParen(t *testing.T) {
	toks, err := lexer.New(")").Scan()
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	_, errs := Make(toks, ast.NewTopLevel()).Parse()
	if len(errs) == 0 {
		t.Fatal("expected an error for a stray closing paren")
	}
	if _, ok := errs[0].(UnexpectedClosingParen); !ok {
		t.Fatalf("expected UnexpectedClosingParen, got %#v", errs[0])
	}
}
