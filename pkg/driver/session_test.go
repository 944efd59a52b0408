package driver

import (
	"strings"
	"testing"

	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/runtime"
)

func TestSessionEvalEntry(t *testing.T) {
	b := fir.NewBuilder()
	b.Entry(b.Int(42))

	s := NewSession(testProgram(b.Finish()), Options{})
	v, err := s.EvalEntry()
	if err != nil {
		t.Fatalf("EvalEntry returned error: %v", err)
	}
	if got := runtime.UnwrapInt(v); got != 42 {
		t.Fatalf("entry value = %d, want 42", got)
	}
}

func TestSessionEvalEntryRequiresEntry(t *testing.T) {
	pkg, _ := twicePackage()
	pkg.EntryGraph = nil

	s := NewSession(testProgram(pkg), Options{})
	if _, err := s.EvalEntry(); err == nil || !strings.Contains(err.Error(), "no entry point") {
		t.Fatalf("expected entry point error, got %v", err)
	}
}

func TestSessionFragmentsShareEnvironment(t *testing.T) {
	b := fir.NewBuilder()
	px, x := b.Bind("x")
	s1 := b.Let(px, b.Int(5))
	s2 := b.ExprStatement(b.BinExpr(fir.BinOpAdd, b.Var(x), b.Int(2)))
	b.TopStmt(s1)
	b.TopStmt(s2)
	program := testProgram(b.Finish())
	if got := len(program.TopStmts()); got != 2 {
		t.Fatalf("top statements = %d, want 2", got)
	}

	s := NewSession(program, Options{})
	v, err := s.EvalStmt(program.TopStmts()[0])
	if err != nil {
		t.Fatalf("first fragment: %v", err)
	}
	if v.Kind() != runtime.KindUnit {
		t.Fatalf("binding fragment value = %s, want Unit", v.Kind())
	}

	v, err = s.EvalStmt(program.TopStmts()[1])
	if err != nil {
		t.Fatalf("second fragment: %v", err)
	}
	if got := runtime.UnwrapInt(v); got != 7 {
		t.Fatalf("fragment value = %d, want 7", got)
	}
}

func TestSessionInvokeCallable(t *testing.T) {
	pkg, _ := twicePackage()
	s := NewSession(testProgram(pkg), Options{})

	callee, ok := s.Callable("Twice")
	if !ok {
		t.Fatal("Twice not found")
	}
	v, err := s.Invoke(callee, runtime.IntValue{Val: 21})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if got := runtime.UnwrapInt(v); got != 42 {
		t.Fatalf("Invoke value = %d, want 42", got)
	}

	if _, ok := s.Callable("Thrice"); ok {
		t.Fatal("unknown callable resolved")
	}
}

func TestSessionSeedMakesDrawsReproducible(t *testing.T) {
	build := func() *Program {
		b := fir.NewBuilder()
		plo, _ := b.Bind("lo")
		phi, _ := b.Bind("hi")
		draw := b.Intrinsic("DrawRandomInt", b.TuplePattern(plo, phi), false)
		b.Entry(b.Call(b.Global(draw), b.Tuple(b.Int(0), b.Int(1_000_000))))
		return testProgram(b.Finish())
	}

	seed := uint64(404)
	first := NewSession(build(), Options{Seed: &seed})
	a, err := first.EvalEntry()
	if err != nil {
		t.Fatalf("first draw: %v", err)
	}
	again, err := first.EvalEntry()
	if err != nil {
		t.Fatalf("repeated draw: %v", err)
	}
	if !runtime.ValuesEqual(a, again) {
		t.Fatalf("same-session draws differ: %s vs %s", a, again)
	}

	second := NewSession(build(), Options{Seed: &seed})
	c, err := second.EvalEntry()
	if err != nil {
		t.Fatalf("fresh session draw: %v", err)
	}
	if !runtime.ValuesEqual(a, c) {
		t.Fatalf("seeded draws differ across sessions: %s vs %s", a, c)
	}
}
