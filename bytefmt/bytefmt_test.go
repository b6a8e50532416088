package bytefmt_test

import (
	"bytes"
	"testing"

	"nilan/builtins"
	"nilan/bytefmt"
	"nilan/runtime"
	_ "nilan/vm"
)

func mustContext(t *testing.T) *runtime.Context {
	t.Helper()
	ctx, err := runtime.New(1 << 20)
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}
	return ctx
}

func TestDumpLoadRoundTripsQuotedData(t *testing.T) {
	ctx := mustContext(t)
	want, err := ctx.Exec(`(quote (1 2.5 three "four" (5 . 6)))`)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	var buf bytes.Buffer
	if err := bytefmt.Dump(ctx, &buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}

	loaded := mustContext(t)
	got, err := bytefmt.Load(loaded, &buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	wantRepr := builtins.Repr(ctx, want)
	gotRepr := builtins.Repr(loaded, got)
	if gotRepr != wantRepr {
		t.Fatalf("round trip mismatch: got %q want %q", gotRepr, wantRepr)
	}
}

func TestDumpLoadRoundTripsScalarImmediates(t *testing.T) {
	ctx := mustContext(t)
	want, err := ctx.Exec(`"hello, world"`)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	var buf bytes.Buffer
	if err := bytefmt.Dump(ctx, &buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}

	loaded := mustContext(t)
	got, err := bytefmt.Load(loaded, &buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if gotRepr, wantRepr := builtins.Repr(loaded, got), builtins.Repr(ctx, want); gotRepr != wantRepr {
		t.Fatalf("round trip mismatch: got %q want %q", gotRepr, wantRepr)
	}
}

// TestDumpLoadReplaysFullProgram mirrors the emit/runBytecode pairing
// end to end: the dumping context has every built-in installed (so its
// immediates pool holds Wrapped Function values), and the loading
// context registers only the native-function table -- the replayed
// program re-defines the built-ins and the user's own globals itself,
// at the same frame offsets the bytecode was compiled against.
func TestDumpLoadReplaysFullProgram(t *testing.T) {
	ctx := mustContext(t)
	if err := builtins.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, err := ctx.Exec(`(def fact (lambda (n) (if (< n 2) 1 (* n (fact (- n 1)))))) (fact 5)`); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	var buf bytes.Buffer
	if err := bytefmt.Dump(ctx, &buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}

	loaded := mustContext(t)
	builtins.InstallNatives(loaded)
	got, err := bytefmt.Load(loaded, &buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if repr := builtins.Repr(loaded, got); repr != "120" {
		t.Fatalf("replayed (fact 5) = %s, want 120", repr)
	}
}

func TestLoadRejectsMissingSeparator(t *testing.T) {
	ctx := mustContext(t)
	if _, err := bytefmt.Load(ctx, bytes.NewBufferString("deadbeef\n")); err == nil {
		t.Fatal("expected an error for a header with no @Section:Program separator")
	}
}
