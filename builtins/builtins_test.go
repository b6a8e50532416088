package builtins_test

import (
	"testing"

	"nilan/builtins"
	"nilan/runtime"
	_ "nilan/vm"
)

func mustContext(t *testing.T) *runtime.Context {
	t.Helper()
	ctx, err := runtime.New(1 << 20)
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}
	if err := builtins.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return ctx
}

func evalRepr(t *testing.T, ctx *runtime.Context, src string) string {
	t.Helper()
	result, err := ctx.Exec(src)
	if err != nil {
		t.Fatalf("Exec(%q): %v", src, err)
	}
	return builtins.Repr(ctx, result)
}

func TestArithmeticWidening(t *testing.T) {
	cases := []struct{ src, want string }{
		{"(+ 1 2 3)", "6"},
		{"(+ 1 2.5)", "3.5"},
		{"(- 5)", "-5"},
		{"(- 10 3 2)", "5"},
		{"(* 2 3 4)", "24"},
		{"(/ 2.0)", "0.5"},
		{"(/ 10 2)", "5"},
		{"(/ 10 4)", "2"},
	}
	for _, c := range cases {
		ctx := mustContext(t)
		if got := evalRepr(t, ctx, c.src); got != c.want {
			t.Errorf("%s = %s, want %s", c.src, got, c.want)
		}
	}
}

func TestModIsFloored(t *testing.T) {
	ctx := mustContext(t)
	if got, want := evalRepr(t, ctx, "(mod (- 1) 5)"), "4"; got != want {
		t.Errorf("(mod (- 1) 5) = %s, want %s", got, want)
	}
	if got, want := evalRepr(t, ctx, "(mod 7 3)"), "1"; got != want {
		t.Errorf("(mod 7 3) = %s, want %s", got, want)
	}
}

func TestDivisionByZeroRaises(t *testing.T) {
	ctx := mustContext(t)
	if _, err := ctx.Exec("(/ 1 0)"); err == nil {
		t.Fatal("expected an error dividing by zero")
	}
	ctx2 := mustContext(t)
	if _, err := ctx2.Exec("(mod 1 0)"); err == nil {
		t.Fatal("expected an error for (mod 1 0)")
	}
}

func TestListOperations(t *testing.T) {
	ctx := mustContext(t)
	if got, want := evalRepr(t, ctx, "(cons 1 2)"), "(1 . 2)"; got != want {
		t.Errorf("(cons 1 2) = %s, want %s", got, want)
	}
	if got, want := evalRepr(t, ctx, "(car (list 1 2 3))"), "1"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
	if got, want := evalRepr(t, ctx, "(length (list 1 2 3))"), "3"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
	if got, want := evalRepr(t, ctx, "(null? (cdr (list 1)))"), "true"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
}

func TestEquality(t *testing.T) {
	ctx := mustContext(t)
	if got, want := evalRepr(t, ctx, `(equal? (list 1 2) (list 1 2))`), "true"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
	if got, want := evalRepr(t, ctx, `(eq? (list 1 2) (list 1 2))`), "false"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
}

func TestComparisonChains(t *testing.T) {
	ctx := mustContext(t)
	if got, want := evalRepr(t, ctx, "(< 1 2 3)"), "true"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
	if got, want := evalRepr(t, ctx, "(< 1 3 2)"), "false"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
}

func TestTypeOf(t *testing.T) {
	ctx := mustContext(t)
	if got, want := evalRepr(t, ctx, `(type-of 42)`), "Integer"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
}

func TestErrorRaisesRuntimeError(t *testing.T) {
	ctx := mustContext(t)
	_, err := ctx.Exec(`(error "boom")`)
	if err == nil {
		t.Fatal("expected an error")
	}
	if got, want := err.Error(), "💥 RuntimeError: boom"; got != want {
		t.Errorf("error text = %q, want %q", got, want)
	}
}
