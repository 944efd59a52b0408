package interpreter

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"quill/interpreter-go/pkg/backend"
	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/output"
	"quill/interpreter-go/pkg/runtime"
)

// evalEntry runs a package's entry graph to completion and returns the
// program value.
func evalEntry(t *testing.T, pkg *fir.Package, back backend.Backend) runtime.Value {
	t.Helper()
	v, err := tryEvalEntry(pkg, back, output.NewGenericReceiver(io.Discard))
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	return v
}

func tryEvalEntry(pkg *fir.Package, back backend.Backend, out output.Receiver) (runtime.Value, error) {
	store := fir.NewPackageStore()
	store.Insert(0, pkg)
	state := NewState(0, pkg.EntryGraph, nil)
	res, err := state.Eval(store, runtime.NewEnv(), back, out, nil, StepContinue)
	if err != nil {
		return nil, err
	}
	if res.Kind != StepResultReturn {
		return nil, fmt.Errorf("paused with %s, want completion", res.Kind)
	}
	return res.Value, nil
}

func TestState_EntryValue(t *testing.T) {
	b := fir.NewBuilder()
	b.Entry(b.Int(42))

	got := evalEntry(t, b.Finish(), backend.Unsupported{})
	if v := runtime.UnwrapInt(got); v != 42 {
		t.Fatalf("entry value: got %d want 42", v)
	}
}

func TestState_BlockBindingAndUse(t *testing.T) {
	b := fir.NewBuilder()
	px, x := b.Bind("x")
	b.Entry(b.BlockVal(b.BlockOf(
		b.Let(px, b.Int(7)),
		b.ExprStatement(b.BinExpr(fir.BinOpAdd, b.Var(x), b.Int(1))),
	)))

	got := evalEntry(t, b.Finish(), backend.Unsupported{})
	if v := runtime.UnwrapInt(got); v != 8 {
		t.Fatalf("block value: got %d want 8", v)
	}
}

func TestState_TupleDestructuring(t *testing.T) {
	b := fir.NewBuilder()
	px, x := b.Bind("x")
	py, y := b.Bind("y")
	b.Entry(b.BlockVal(b.BlockOf(
		b.Let(b.TuplePattern(px, py), b.Tuple(b.Int(1), b.Int(2))),
		b.ExprStatement(b.Tuple(b.Var(y), b.Var(x))),
	)))

	got := runtime.UnwrapTuple(evalEntry(t, b.Finish(), backend.Unsupported{}))
	if len(got) != 2 {
		t.Fatalf("tuple arity: got %d want 2", len(got))
	}
	if a, b2 := runtime.UnwrapInt(got[0]), runtime.UnwrapInt(got[1]); a != 2 || b2 != 1 {
		t.Fatalf("destructured values: got (%d, %d) want (2, 1)", a, b2)
	}
}

func TestState_IfElseSelectsBranch(t *testing.T) {
	build := func(cond bool) *fir.Package {
		b := fir.NewBuilder()
		b.Entry(b.IfElse(b.Bool(cond), b.Int(1), b.Int(2)))
		return b.Finish()
	}

	if v := runtime.UnwrapInt(evalEntry(t, build(true), backend.Unsupported{})); v != 1 {
		t.Fatalf("then branch: got %d want 1", v)
	}
	if v := runtime.UnwrapInt(evalEntry(t, build(false), backend.Unsupported{})); v != 2 {
		t.Fatalf("else branch: got %d want 2", v)
	}
}

func TestState_IfWithoutElseIsUnit(t *testing.T) {
	b := fir.NewBuilder()
	b.Entry(b.If(b.Bool(false), b.Int(1)))

	got := evalEntry(t, b.Finish(), backend.Unsupported{})
	if got.Kind() != runtime.KindUnit {
		t.Fatalf("skipped conditional: got %s want Unit", got.Kind())
	}
}

func TestState_WhileLoop(t *testing.T) {
	b := fir.NewBuilder()
	pi, i := b.Bind("i")
	ps, s := b.Bind("s")
	body := b.BlockOf(
		b.Semi(b.Assign(b.Var(s), b.BinExpr(fir.BinOpAdd, b.Var(s), b.Var(i)))),
		b.Semi(b.Assign(b.Var(i), b.BinExpr(fir.BinOpAdd, b.Var(i), b.Int(1)))),
	)
	b.Entry(b.BlockVal(b.BlockOf(
		b.Mut(pi, b.Int(0)),
		b.Mut(ps, b.Int(0)),
		b.Semi(b.While(b.BinExpr(fir.BinOpLt, b.Var(i), b.Int(5)), body)),
		b.ExprStatement(b.Var(s)),
	)))

	got := evalEntry(t, b.Finish(), backend.Unsupported{})
	if v := runtime.UnwrapInt(got); v != 10 {
		t.Fatalf("loop sum: got %d want 10", v)
	}
}

func TestState_CallReturnsValue(t *testing.T) {
	build := func(arg int64) *fir.Package {
		b := fir.NewBuilder()
		input, n := b.Bind("n")
		clamp := b.Callable(fir.CallableDef{
			Name:  "Clamp",
			Input: input,
			Body: b.BlockOf(b.ExprStatement(b.IfElse(
				b.BinExpr(fir.BinOpGt, b.Var(n), b.Int(10)),
				b.BlockVal(b.BlockOf(b.ExprStatement(b.Return(b.Int(100))))),
				b.BinExpr(fir.BinOpMul, b.Var(n), b.Int(2)),
			))),
		})
		b.Entry(b.Call(b.Global(clamp), b.Int(arg)))
		return b.Finish()
	}

	if v := runtime.UnwrapInt(evalEntry(t, build(3), backend.Unsupported{})); v != 6 {
		t.Fatalf("computed branch: got %d want 6", v)
	}
	// The early return pops the call frame from inside the conditional.
	if v := runtime.UnwrapInt(evalEntry(t, build(21), backend.Unsupported{})); v != 100 {
		t.Fatalf("early return: got %d want 100", v)
	}
}

func TestState_FragmentsShareEnvironment(t *testing.T) {
	b := fir.NewBuilder()
	px, x := b.Bind("x")
	s1 := b.Let(px, b.Int(5))
	s2 := b.ExprStatement(b.BinExpr(fir.BinOpAdd, b.Var(x), b.Int(2)))
	b.TopStmt(s1)
	b.TopStmt(s2)
	pkg := b.Finish()

	store := fir.NewPackageStore()
	store.Insert(0, pkg)
	env := runtime.NewEnv()
	out := output.NewGenericReceiver(io.Discard)

	first := NewState(0, pkg.StmtSection(s1), nil)
	res, err := first.Eval(store, env, backend.Unsupported{}, out, nil, StepContinue)
	if err != nil {
		t.Fatalf("first fragment: %v", err)
	}
	if res.Kind != StepResultReturn || res.Value.Kind() != runtime.KindUnit {
		t.Fatalf("first fragment result: got %s %v", res.Kind, res.Value)
	}

	second := NewState(0, pkg.StmtSection(s2), nil)
	res, err = second.Eval(store, env, backend.Unsupported{}, out, nil, StepContinue)
	if err != nil {
		t.Fatalf("second fragment: %v", err)
	}
	if v := runtime.UnwrapInt(res.Value); v != 7 {
		t.Fatalf("binding did not persist across fragments: got %d want 7", v)
	}
}

func TestState_StepNextWalksStatements(t *testing.T) {
	b := fir.NewBuilder().WithDebug(true)
	px, _ := b.Bind("x")
	s1 := b.Let(px, b.Int(1))
	s2 := b.Semi(b.Int(2))
	s3 := b.ExprStatement(b.Int(3))
	b.Entry(b.BlockVal(b.BlockOf(s1, s2, s3)))
	pkg := b.Finish()

	store := fir.NewPackageStore()
	store.Insert(0, pkg)
	env := runtime.NewEnv()
	out := output.NewGenericReceiver(io.Discard)
	state := NewState(0, pkg.EntryGraph, nil)

	for _, want := range []fir.StmtId{s1, s2, s3} {
		res, err := state.Eval(store, env, backend.Unsupported{}, out, nil, StepNext)
		if err != nil {
			t.Fatalf("step to statement %d: %v", want, err)
		}
		if res.Kind != StepResultNext || res.Stmt != want {
			t.Fatalf("pause: got %s at %d, want next at %d", res.Kind, res.Stmt, want)
		}
		if state.CurrentSpan() != pkg.Stmts[want].Span {
			t.Fatalf("current span: got %+v want %+v", state.CurrentSpan(), pkg.Stmts[want].Span)
		}
	}

	res, err := state.Eval(store, env, backend.Unsupported{}, out, nil, StepContinue)
	if err != nil {
		t.Fatalf("run to completion: %v", err)
	}
	if res.Kind != StepResultReturn {
		t.Fatalf("completion: got %s", res.Kind)
	}
	if v := runtime.UnwrapInt(res.Value); v != 3 {
		t.Fatalf("final value: got %d want 3", v)
	}
}

// steppingProgram is a debug-mode package whose entry calls a two-statement
// callable and then runs one more statement.
type steppingProgram struct {
	pkg          *fir.Package
	callStmt     fir.StmtId
	afterStmt    fir.StmtId
	calleeFirst  fir.StmtId
	calleeSecond fir.StmtId
}

func buildSteppingProgram() steppingProgram {
	b := fir.NewBuilder().WithDebug(true)
	input := b.UnitPattern()
	cs1 := b.Semi(b.Int(1))
	cs2 := b.ExprStatement(b.Int(9))
	nine := b.Callable(fir.CallableDef{Name: "Nine", Input: input, Body: b.BlockOf(cs1, cs2)})
	px, x := b.Bind("x")
	s1 := b.Let(px, b.Call(b.Global(nine), b.Unit()))
	s2 := b.ExprStatement(b.Var(x))
	b.Entry(b.BlockVal(b.BlockOf(s1, s2)))
	return steppingProgram{
		pkg:          b.Finish(),
		callStmt:     s1,
		afterStmt:    s2,
		calleeFirst:  cs1,
		calleeSecond: cs2,
	}
}

func TestState_StepInAndOutAcrossCalls(t *testing.T) {
	prog := buildSteppingProgram()
	store := fir.NewPackageStore()
	store.Insert(0, prog.pkg)
	env := runtime.NewEnv()
	out := output.NewGenericReceiver(io.Discard)
	state := NewState(0, prog.pkg.EntryGraph, nil)

	step := func(action StepAction, wantKind StepResultKind, wantStmt fir.StmtId) {
		t.Helper()
		res, err := state.Eval(store, env, backend.Unsupported{}, out, nil, action)
		if err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		if res.Kind != wantKind || res.Stmt != wantStmt {
			t.Fatalf("%s: got %s at %d, want %s at %d", action, res.Kind, res.Stmt, wantKind, wantStmt)
		}
	}

	step(StepIn, StepResultStepIn, prog.callStmt)
	step(StepIn, StepResultStepIn, prog.calleeFirst)
	if depth := len(state.CallStack()); depth != 1 {
		t.Fatalf("call depth inside callee: got %d want 1", depth)
	}
	step(StepIn, StepResultStepIn, prog.calleeSecond)
	step(StepOut, StepResultStepOut, prog.afterStmt)
	if depth := len(state.CallStack()); depth != 0 {
		t.Fatalf("call depth after step out: got %d want 0", depth)
	}

	res, err := state.Eval(store, env, backend.Unsupported{}, out, nil, StepContinue)
	if err != nil {
		t.Fatalf("run to completion: %v", err)
	}
	if res.Kind != StepResultReturn {
		t.Fatalf("completion: got %s", res.Kind)
	}
	if v := runtime.UnwrapInt(res.Value); v != 9 {
		t.Fatalf("final value: got %d want 9", v)
	}
}

func TestState_StepNextSkipsCalleeStatements(t *testing.T) {
	prog := buildSteppingProgram()
	store := fir.NewPackageStore()
	store.Insert(0, prog.pkg)
	env := runtime.NewEnv()
	out := output.NewGenericReceiver(io.Discard)
	state := NewState(0, prog.pkg.EntryGraph, nil)

	res, err := state.Eval(store, env, backend.Unsupported{}, out, nil, StepNext)
	if err != nil {
		t.Fatalf("first step: %v", err)
	}
	if res.Kind != StepResultNext || res.Stmt != prog.callStmt {
		t.Fatalf("first pause: got %s at %d", res.Kind, res.Stmt)
	}

	res, err = state.Eval(store, env, backend.Unsupported{}, out, nil, StepNext)
	if err != nil {
		t.Fatalf("step over call: %v", err)
	}
	if res.Kind != StepResultNext || res.Stmt != prog.afterStmt {
		t.Fatalf("step over call paused at %d, want %d", res.Stmt, prog.afterStmt)
	}
}

func TestState_BreakpointPausesContinue(t *testing.T) {
	b := fir.NewBuilder().WithDebug(true)
	s1 := b.Semi(b.Int(1))
	s2 := b.Semi(b.Int(2))
	s3 := b.ExprStatement(b.Int(3))
	b.Entry(b.BlockVal(b.BlockOf(s1, s2, s3)))
	pkg := b.Finish()

	store := fir.NewPackageStore()
	store.Insert(0, pkg)
	env := runtime.NewEnv()
	out := output.NewGenericReceiver(io.Discard)
	state := NewState(0, pkg.EntryGraph, nil)
	breakpoints := []fir.StmtId{s2}

	res, err := state.Eval(store, env, backend.Unsupported{}, out, breakpoints, StepContinue)
	if err != nil {
		t.Fatalf("run to breakpoint: %v", err)
	}
	if res.Kind != StepResultBreakpoint || res.Stmt != s2 {
		t.Fatalf("breakpoint pause: got %s at %d, want breakpoint at %d", res.Kind, res.Stmt, s2)
	}

	res, err = state.Eval(store, env, backend.Unsupported{}, out, breakpoints, StepContinue)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Kind != StepResultReturn {
		t.Fatalf("resume: got %s, want completion", res.Kind)
	}
	if v := runtime.UnwrapInt(res.Value); v != 3 {
		t.Fatalf("final value: got %d want 3", v)
	}
}

func TestState_ErrorCarriesFrames(t *testing.T) {
	b := fir.NewBuilder()
	innerInput := b.UnitPattern()
	inner := b.Callable(fir.CallableDef{
		Name:  "Inner",
		Input: innerInput,
		Body:  b.BlockOf(b.ExprStatement(b.Fail(b.Str("boom")))),
	})
	outerInput := b.UnitPattern()
	outer := b.Callable(fir.CallableDef{
		Name:  "Outer",
		Input: outerInput,
		Body:  b.BlockOf(b.ExprStatement(b.Call(b.Global(inner), b.Unit()))),
	})
	b.Entry(b.Call(b.Global(outer), b.Unit()))

	_, err := tryEvalEntry(b.Finish(), backend.Unsupported{}, output.NewGenericReceiver(io.Discard))
	if err == nil {
		t.Fatal("expected failure")
	}
	if err.Error() != "program failed: boom" {
		t.Fatalf("message: got %q", err.Error())
	}

	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("error type: got %T", err)
	}
	if len(evalErr.Frames) != 2 {
		t.Fatalf("frame count: got %d want 2", len(evalErr.Frames))
	}
	if evalErr.Frames[0].Id.Item != outer || evalErr.Frames[1].Id.Item != inner {
		t.Fatalf("frames: got %v, %v want outermost first", evalErr.Frames[0].Id, evalErr.Frames[1].Id)
	}

	var rtErr *runtime.Error
	if !errors.As(err, &rtErr) {
		t.Fatalf("wrapped error type: got %T", errors.Unwrap(err))
	}
	if rtErr.Kind != runtime.ErrUserFail {
		t.Fatalf("wrapped kind: got %d want user failure", rtErr.Kind)
	}
}

func TestState_EarlyReturnClosesBlockScopes(t *testing.T) {
	b := fir.NewBuilder().WithDebug(true)
	input := b.UnitPattern()
	pa, a := b.Bind("a")
	early := b.Callable(fir.CallableDef{
		Name:  "EarlyOut",
		Input: input,
		Body: b.BlockOf(
			b.Let(pa, b.Int(41)),
			b.ExprStatement(b.BlockVal(b.BlockOf(b.ExprStatement(b.Return(b.Var(a)))))),
		),
	})
	px, x := b.Bind("x")
	s1 := b.Let(px, b.Call(b.Global(early), b.Unit()))
	s2 := b.ExprStatement(b.BinExpr(fir.BinOpAdd, b.Var(x), b.Int(1)))
	b.Entry(b.BlockVal(b.BlockOf(s1, s2)))
	pkg := b.Finish()

	store := fir.NewPackageStore()
	store.Insert(0, pkg)
	env := runtime.NewEnv()
	out := output.NewGenericReceiver(io.Discard)
	state := NewState(0, pkg.EntryGraph, nil)

	// Pause after the call: the returning frame must have closed both of its
	// block scopes, leaving x in the entry frame.
	res, err := state.Eval(store, env, backend.Unsupported{}, out, []fir.StmtId{s2}, StepContinue)
	if err != nil {
		t.Fatalf("run to breakpoint: %v", err)
	}
	if res.Kind != StepResultBreakpoint || res.Stmt != s2 {
		t.Fatalf("pause: got %s at %d", res.Kind, res.Stmt)
	}
	vars := env.VariablesInFrame(0)
	if len(vars) != 1 || vars[0].Name != "x" {
		t.Fatalf("entry frame variables: got %+v, want x only", vars)
	}
	if v := runtime.UnwrapInt(vars[0].Value); v != 41 {
		t.Fatalf("x: got %d want 41", v)
	}

	res, err = state.Eval(store, env, backend.Unsupported{}, out, nil, StepContinue)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if v := runtime.UnwrapInt(res.Value); v != 42 {
		t.Fatalf("final value: got %d want 42", v)
	}
}
