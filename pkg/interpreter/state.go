package interpreter

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"quill/interpreter-go/pkg/backend"
	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/output"
	"quill/interpreter-go/pkg/runtime"
)

// log is the package trace logger, disabled until SetLogger installs one.
var log = zerolog.Nop()

// SetLogger routes evaluation trace events to l.
func SetLogger(l zerolog.Logger) { log = l }

//-----------------------------------------------------------------------------
// Stepping
//-----------------------------------------------------------------------------

// StepAction tells Eval how far to run before pausing.
type StepAction int

const (
	// StepContinue runs until a breakpoint hit or the end of the program.
	StepContinue StepAction = iota
	// StepNext pauses at the next statement at or above the starting depth.
	StepNext
	// StepIn pauses at the next statement regardless of depth.
	StepIn
	// StepOut pauses at the next statement below the starting depth.
	StepOut
)

func (a StepAction) String() string {
	switch a {
	case StepContinue:
		return "continue"
	case StepNext:
		return "next"
	case StepIn:
		return "step in"
	case StepOut:
		return "step out"
	default:
		return fmt.Sprintf("StepAction(%d)", int(a))
	}
}

// StepResultKind identifies why Eval stopped.
type StepResultKind int

const (
	// StepResultBreakpoint is a pause on a statement in the breakpoint set.
	StepResultBreakpoint StepResultKind = iota
	// StepResultNext is a pause requested by StepNext.
	StepResultNext
	// StepResultStepIn is a pause requested by StepIn.
	StepResultStepIn
	// StepResultStepOut is a pause requested by StepOut.
	StepResultStepOut
	// StepResultReturn is the completion of the program.
	StepResultReturn
)

func (k StepResultKind) String() string {
	switch k {
	case StepResultBreakpoint:
		return "breakpoint"
	case StepResultNext:
		return "next"
	case StepResultStepIn:
		return "step in"
	case StepResultStepOut:
		return "step out"
	case StepResultReturn:
		return "return"
	default:
		return fmt.Sprintf("StepResultKind(%d)", int(k))
	}
}

// StepResult is where evaluation stopped. Value carries the final program
// value for StepResultReturn and is nil for pauses; Stmt identifies the
// paused statement for everything but completion.
type StepResult struct {
	Kind  StepResultKind
	Stmt  fir.StmtId
	Value runtime.Value
}

//-----------------------------------------------------------------------------
// Call frames and errors
//-----------------------------------------------------------------------------

// Frame is one active call. Span locates the call site in the caller's
// package, and Functor records which specialization the call selected.
type Frame struct {
	Span          fir.PackageSpan
	Id            fir.StoreItemId
	CallerPackage fir.PackageId
	Functor       runtime.FunctorApp
}

// EvalError is an evaluation failure together with the call stack at the
// point of failure, outermost call first.
type EvalError struct {
	Err    *runtime.Error
	Frames []Frame
}

func (e *EvalError) Error() string { return e.Err.Error() }

func (e *EvalError) Unwrap() error { return e.Err }

//-----------------------------------------------------------------------------
// State
//-----------------------------------------------------------------------------

// State is the resumable execution state of one program. A State runs a
// single graph to completion across any number of Eval calls; sessions that
// evaluate several fragments build one State per fragment over a shared
// environment.
type State struct {
	graphStack  []fir.ExecGraph
	idx         int
	idxStack    []int
	curr        runtime.Value
	valStack    [][]runtime.Value
	pkg         fir.PackageId
	callStack   []Frame
	currentSpan fir.Span
	rng         *rand.Rand
}

// NewState prepares graph for execution in the context of package pkg. A nil
// seed draws classical randomness from the clock; a concrete one makes the
// DrawRandom intrinsics reproducible.
func NewState(pkg fir.PackageId, graph fir.ExecGraph, seed *uint64) *State {
	var src rand.Source
	if seed != nil {
		src = rand.NewSource(int64(*seed))
	} else {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &State{
		graphStack: []fir.ExecGraph{graph},
		valStack:   [][]runtime.Value{nil},
		pkg:        pkg,
		rng:        rand.New(src),
	}
}

// Package is the package currently executing.
func (s *State) Package() fir.PackageId { return s.pkg }

// CurrentSpan is the span of the most recent statement marker, anchoring
// the debugger's position between pauses.
func (s *State) CurrentSpan() fir.Span { return s.currentSpan }

// CallStack is a snapshot of the active calls, outermost first.
func (s *State) CallStack() []Frame {
	return append([]Frame(nil), s.callStack...)
}

// takeVal moves the current value out of the register.
func (s *State) takeVal() runtime.Value {
	if s.curr == nil {
		panic("current value register is empty")
	}
	v := s.curr
	s.curr = nil
	return v
}

// setVal replaces the register. A value still sitting there was produced
// and never consumed, so its temporary claims dissolve.
func (s *State) setVal(v runtime.Value) {
	if s.curr != nil {
		runtime.DropTemp(s.curr)
	}
	s.curr = v
}

func (s *State) pushVal(v runtime.Value) {
	top := len(s.valStack) - 1
	s.valStack[top] = append(s.valStack[top], v)
}

func (s *State) popVal() runtime.Value {
	top := len(s.valStack) - 1
	ops := s.valStack[top]
	if len(ops) == 0 {
		panic("operand stack is empty")
	}
	v := ops[len(ops)-1]
	s.valStack[top] = ops[:len(ops)-1]
	return v
}

// popVals pops count operands, restoring their left-to-right push order.
func (s *State) popVals(count int) []runtime.Value {
	out := make([]runtime.Value, count)
	for i := count - 1; i >= 0; i-- {
		out[i] = s.popVal()
	}
	return out
}

// pushCall enters a callee graph, saving the caller's resume point and
// giving the call its own operand stack and scope.
func (s *State) pushCall(graph fir.ExecGraph, frame Frame, calleePkg fir.PackageId, env *runtime.Env) {
	s.callStack = append(s.callStack, frame)
	s.graphStack = append(s.graphStack, graph)
	s.idxStack = append(s.idxStack, s.idx)
	s.idx = 0
	s.valStack = append(s.valStack, nil)
	s.pkg = calleePkg
	env.PushScope(len(s.callStack))
}

// ret leaves the innermost call: leftover operands dissolve, every scope
// the call opened closes, and the caller's resume point and package are
// restored. At the entry level only entry-owned scopes unwind, which ends
// the program with the register intact.
func (s *State) ret(env *runtime.Env) {
	s.popExecution()
	env.LeaveFrame(len(s.callStack))
	if n := len(s.callStack); n > 0 {
		frame := s.callStack[n-1]
		s.callStack = s.callStack[:n-1]
		s.pkg = frame.CallerPackage
	}
}

// popExecution drops the finished graph with its leftover operands and
// restores the saved resume point, leaving scopes and call frames alone.
// Fragment graphs end this way so their bindings persist in the session
// environment.
func (s *State) popExecution() {
	top := len(s.valStack) - 1
	for _, v := range s.valStack[top] {
		runtime.DropTemp(v)
	}
	s.valStack = s.valStack[:top]
	s.graphStack = s.graphStack[:len(s.graphStack)-1]
	if n := len(s.idxStack); n > 0 {
		s.idx = s.idxStack[n-1]
		s.idxStack = s.idxStack[:n-1]
	}
}

// takeResult yields the program's final value. A program whose last
// statement left nothing behind produced unit.
func (s *State) takeResult() runtime.Value {
	if s.curr == nil {
		return runtime.Unit
	}
	return s.takeVal()
}

// fail wraps an evaluation error with the call stack at the failure point.
func (s *State) fail(err *runtime.Error) error {
	log.Debug().Str("error", err.Error()).Int("depth", len(s.callStack)).Msg("evaluation failed")
	return &EvalError{Err: err, Frames: s.CallStack()}
}

//-----------------------------------------------------------------------------
// Evaluation
//-----------------------------------------------------------------------------

// Eval resumes execution until the program completes, fails, or pauses at a
// statement selected by breakpoints or the step action. Globals resolve
// callables across packages, env carries bindings and is shared across the
// fragments of a session, and back and out absorb quantum operations and
// program output.
func (s *State) Eval(globals fir.PackageStoreLookup, env *runtime.Env, back backend.Backend, out output.Receiver, breakpoints []fir.StmtId, action StepAction) (StepResult, error) {
	ev := &evaluator{
		state:   s,
		globals: globals,
		env:     env,
		backend: back,
		out:     out,
	}
	if len(breakpoints) > 0 {
		ev.breakpoints = make(map[fir.StmtId]bool, len(breakpoints))
		for _, id := range breakpoints {
			ev.breakpoints[id] = true
		}
	}
	return ev.run(action)
}

// evaluator bundles one Eval call's capabilities around the state.
type evaluator struct {
	state       *State
	globals     fir.PackageStoreLookup
	env         *runtime.Env
	backend     backend.Backend
	out         output.Receiver
	breakpoints map[fir.StmtId]bool
}

// view adapts the store-wide lookup to the package currently executing.
func (ev *evaluator) view() packageView {
	return packageView{globals: ev.globals, pkg: ev.state.pkg}
}

// run executes graph nodes until the stack of graphs drains. Conditional
// jumps consume the register; a taken jump restores the decision value so
// short-circuited logical operators keep their left operand as the result.
func (ev *evaluator) run(action StepAction) (StepResult, error) {
	s := ev.state
	startDepth := len(s.callStack)
	for len(s.graphStack) > 0 {
		graph := s.graphStack[len(s.graphStack)-1]
		if s.idx >= len(graph) {
			s.popExecution()
			continue
		}
		node := graph[s.idx]
		s.idx++
		switch node.Kind {
		case fir.GraphBind:
			ev.env.Bind(ev.view(), node.Pat, s.takeVal())
		case fir.GraphExpr:
			if err := ev.evalExpr(node.Expr); err != nil {
				return StepResult{}, s.fail(err)
			}
		case fir.GraphStmt:
			if res, pause := ev.pauseAt(node.Stmt, action, startDepth); pause {
				return res, nil
			}
		case fir.GraphJump:
			s.idx = node.Target
		case fir.GraphJumpIf:
			if runtime.UnwrapBool(s.takeVal()) {
				s.setVal(runtime.BoolValue{Val: true})
				s.idx = node.Target
			}
		case fir.GraphJumpIfNot:
			if !runtime.UnwrapBool(s.takeVal()) {
				s.setVal(runtime.BoolValue{Val: false})
				s.idx = node.Target
			}
		case fir.GraphStore:
			s.pushVal(s.takeVal())
		case fir.GraphUnit:
			s.setVal(runtime.Unit)
		case fir.GraphRet, fir.GraphRetFrame:
			s.ret(ev.env)
		case fir.GraphPushScope:
			ev.env.PushScope(len(s.callStack))
		case fir.GraphPopScope:
			ev.env.LeaveScope()
		case fir.GraphBlockEnd:
			// a step anchor, nothing to execute
		default:
			panic(fmt.Sprintf("unhandled graph node %s", node))
		}
	}
	return StepResult{Kind: StepResultReturn, Value: s.takeResult()}, nil
}

// pauseAt decides whether execution stops at a statement marker. Compiler
// generated statements carry no span and are never step targets, though
// their marker still anchors the current span for error reporting.
func (ev *evaluator) pauseAt(id fir.StmtId, action StepAction, startDepth int) (StepResult, bool) {
	s := ev.state
	stmt := ev.globals.Stmt(fir.StoreStmtId{Package: s.pkg, Stmt: id})
	s.currentSpan = stmt.Span
	if stmt.Span.IsZero() {
		return StepResult{}, false
	}
	if ev.breakpoints[id] {
		return StepResult{Kind: StepResultBreakpoint, Stmt: id}, true
	}
	switch action {
	case StepNext:
		if len(s.callStack) <= startDepth {
			return StepResult{Kind: StepResultNext, Stmt: id}, true
		}
	case StepIn:
		return StepResult{Kind: StepResultStepIn, Stmt: id}, true
	case StepOut:
		if len(s.callStack) < startDepth {
			return StepResult{Kind: StepResultStepOut, Stmt: id}, true
		}
	}
	return StepResult{}, false
}

// packageView resolves ids of a fixed package through the store lookup.
type packageView struct {
	globals fir.PackageStoreLookup
	pkg     fir.PackageId
}

func (v packageView) Expr(id fir.ExprId) *fir.Expr {
	return v.globals.Expr(fir.StoreExprId{Package: v.pkg, Expr: id})
}

func (v packageView) Pat(id fir.PatId) *fir.Pat {
	return v.globals.Pat(fir.StorePatId{Package: v.pkg, Pat: id})
}
