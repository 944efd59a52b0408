package driver

import (
	"strings"
	"testing"

	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/runtime"
)

// debugProgram is a debug-build program whose entry binds the result of a
// one-statement callable and then uses it.
type debugProgram struct {
	program    *Program
	callStmt   fir.StmtId
	afterStmt  fir.StmtId
	calleeStmt fir.StmtId
}

func buildDebugProgram() debugProgram {
	b := fir.NewBuilder().WithDebug(true)
	pn, n := b.Bind("n")
	calleeStmt := b.ExprStatement(b.BinExpr(fir.BinOpAdd, b.Var(n), b.Int(4)))
	bump := b.Callable(fir.CallableDef{Name: "Bump", Input: pn, Body: b.BlockOf(calleeStmt)})
	px, x := b.Bind("x")
	callStmt := b.Let(px, b.Call(b.Global(bump), b.Int(5)))
	afterStmt := b.ExprStatement(b.BinExpr(fir.BinOpAdd, b.Var(x), b.Int(1)))
	b.Entry(b.BlockVal(b.BlockOf(callStmt, afterStmt)))
	return debugProgram{
		program:    testProgram(b.Finish()),
		callStmt:   callStmt,
		afterStmt:  afterStmt,
		calleeStmt: calleeStmt,
	}
}

func debugStep(t *testing.T, dbg *Debugger, action interpreter.StepAction, wantKind interpreter.StepResultKind, wantStmt fir.StmtId) {
	t.Helper()
	res, err := dbg.Step(action)
	if err != nil {
		t.Fatalf("%s: %v", action, err)
	}
	if res.Kind != wantKind || res.Stmt != wantStmt {
		t.Fatalf("%s: got %s at %d, want %s at %d", action, res.Kind, res.Stmt, wantKind, wantStmt)
	}
}

func TestDebuggerListsBreakableStatements(t *testing.T) {
	prog := buildDebugProgram()
	dbg, err := NewDebugger(prog.program, Options{})
	if err != nil {
		t.Fatalf("NewDebugger returned error: %v", err)
	}

	spans := dbg.Breakpoints()
	if len(spans) != 3 {
		t.Fatalf("breakable statements = %d, want 3", len(spans))
	}
	for i, bp := range spans {
		if i > 0 && spans[i-1].Stmt >= bp.Stmt {
			t.Fatalf("breakpoints out of order: %v", spans)
		}
		if bp.Span.IsZero() {
			t.Fatalf("statement %d has no span", bp.Stmt)
		}
	}
}

func TestDebuggerBreakpointPausesAndResumes(t *testing.T) {
	prog := buildDebugProgram()
	dbg, err := NewDebugger(prog.program, Options{})
	if err != nil {
		t.Fatalf("NewDebugger returned error: %v", err)
	}
	dbg.SetBreakpoints([]fir.StmtId{prog.afterStmt})

	debugStep(t, dbg, interpreter.StepContinue, interpreter.StepResultBreakpoint, prog.afterStmt)
	wantSpan := prog.program.Store.Get(prog.program.Entry).Stmts[prog.afterStmt].Span
	if got := dbg.CurrentSpan(); got != wantSpan {
		t.Fatalf("current span = %+v, want %+v", got, wantSpan)
	}

	res, err := dbg.Step(interpreter.StepContinue)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Kind != interpreter.StepResultReturn {
		t.Fatalf("resume kind = %s, want completion", res.Kind)
	}
	if got := runtime.UnwrapInt(res.Value); got != 10 {
		t.Fatalf("final value = %d, want 10", got)
	}
	if !dbg.Done() {
		t.Fatal("debugger not done after completion")
	}
	if _, err := dbg.Step(interpreter.StepContinue); err == nil {
		t.Fatal("step after completion should fail")
	}
}

func TestDebuggerStepInOutAndStack(t *testing.T) {
	prog := buildDebugProgram()
	dbg, err := NewDebugger(prog.program, Options{})
	if err != nil {
		t.Fatalf("NewDebugger returned error: %v", err)
	}

	debugStep(t, dbg, interpreter.StepIn, interpreter.StepResultStepIn, prog.callStmt)
	debugStep(t, dbg, interpreter.StepIn, interpreter.StepResultStepIn, prog.calleeStmt)

	frames := dbg.StackFrames()
	if len(frames) != 2 {
		t.Fatalf("stack depth = %d, want 2", len(frames))
	}
	if frames[0].Name != "entry" || frames[1].Name != "Bump" {
		t.Fatalf("frame names = %q, %q", frames[0].Name, frames[1].Name)
	}
	if frames[1].Functor != "" {
		t.Fatalf("plain call functor = %q, want empty", frames[1].Functor)
	}
	calleeSpan := prog.program.Store.Get(prog.program.Entry).Stmts[prog.calleeStmt].Span
	if frames[1].Span.Span != calleeSpan {
		t.Fatalf("innermost frame span = %+v, want %+v", frames[1].Span.Span, calleeSpan)
	}

	locals := dbg.Locals(1)
	if len(locals) != 1 || locals[0].Name != "n" || runtime.UnwrapInt(locals[0].Value) != 5 {
		t.Fatalf("callee locals = %+v, want n = 5", locals)
	}
	if v, ok := dbg.Lookup("n"); !ok || runtime.UnwrapInt(v.Value) != 5 {
		t.Fatalf("Lookup(n) = %+v, %v", v, ok)
	}
	if _, ok := dbg.Lookup("x"); ok {
		t.Fatal("x bound before the call completed")
	}

	debugStep(t, dbg, interpreter.StepOut, interpreter.StepResultStepOut, prog.afterStmt)
	if v, ok := dbg.Lookup("x"); !ok || runtime.UnwrapInt(v.Value) != 9 {
		t.Fatalf("Lookup(x) after return = %+v, %v", v, ok)
	}

	res, err := dbg.Step(interpreter.StepContinue)
	if err != nil {
		t.Fatalf("run to completion: %v", err)
	}
	if res.Kind != interpreter.StepResultReturn || runtime.UnwrapInt(res.Value) != 10 {
		t.Fatalf("completion = %s %v, want return of 10", res.Kind, res.Value)
	}
}

func TestDebuggerStepNextStaysAtDepth(t *testing.T) {
	prog := buildDebugProgram()
	dbg, err := NewDebugger(prog.program, Options{})
	if err != nil {
		t.Fatalf("NewDebugger returned error: %v", err)
	}

	debugStep(t, dbg, interpreter.StepNext, interpreter.StepResultNext, prog.callStmt)
	debugStep(t, dbg, interpreter.StepNext, interpreter.StepResultNext, prog.afterStmt)

	res, err := dbg.Step(interpreter.StepContinue)
	if err != nil {
		t.Fatalf("run to completion: %v", err)
	}
	if res.Kind != interpreter.StepResultReturn || runtime.UnwrapInt(res.Value) != 10 {
		t.Fatalf("completion = %s %v, want return of 10", res.Kind, res.Value)
	}
}

func TestDebuggerLookupPrefersInnermost(t *testing.T) {
	b := fir.NewBuilder().WithDebug(true)
	pInner, inner := b.Bind("x")
	calleeStmt := b.ExprStatement(b.BinExpr(fir.BinOpAdd, b.Var(inner), b.Int(1)))
	bump := b.Callable(fir.CallableDef{Name: "Bump", Input: pInner, Body: b.BlockOf(calleeStmt)})
	pOuter, outer := b.Bind("x")
	s1 := b.Let(pOuter, b.Int(10))
	s2 := b.ExprStatement(b.Call(b.Global(bump), b.BinExpr(fir.BinOpAdd, b.Var(outer), b.Int(5))))
	b.Entry(b.BlockVal(b.BlockOf(s1, s2)))
	program := testProgram(b.Finish())

	dbg, err := NewDebugger(program, Options{})
	if err != nil {
		t.Fatalf("NewDebugger returned error: %v", err)
	}
	dbg.SetBreakpoints([]fir.StmtId{calleeStmt})
	debugStep(t, dbg, interpreter.StepContinue, interpreter.StepResultBreakpoint, calleeStmt)

	if v, ok := dbg.Lookup("x"); !ok || runtime.UnwrapInt(v.Value) != 15 {
		t.Fatalf("Lookup(x) = %+v, %v, want inner binding 15", v, ok)
	}
}

func TestDebuggerLocalsHideGeneratedBindings(t *testing.T) {
	b := fir.NewBuilder().WithDebug(true)
	pa, _ := b.Bind("@aux")
	py, y := b.Bind("y")
	s1 := b.Let(pa, b.Int(1))
	s2 := b.Let(py, b.Int(2))
	s3 := b.ExprStatement(b.Var(y))
	b.Entry(b.BlockVal(b.BlockOf(s1, s2, s3)))
	program := testProgram(b.Finish())

	dbg, err := NewDebugger(program, Options{})
	if err != nil {
		t.Fatalf("NewDebugger returned error: %v", err)
	}
	dbg.SetBreakpoints([]fir.StmtId{s3})
	debugStep(t, dbg, interpreter.StepContinue, interpreter.StepResultBreakpoint, s3)

	locals := dbg.Locals(0)
	if len(locals) != 1 || locals[0].Name != "y" {
		t.Fatalf("visible locals = %+v, want y only", locals)
	}
}

func TestDebuggerRequiresEntry(t *testing.T) {
	pkg, _ := twicePackage()
	pkg.EntryGraph = nil
	if _, err := NewDebugger(testProgram(pkg), Options{}); err == nil || !strings.Contains(err.Error(), "no entry point") {
		t.Fatalf("expected entry point error, got %v", err)
	}
}
