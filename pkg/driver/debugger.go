package driver

import (
	"fmt"
	"sort"
	"strings"

	"quill/interpreter-go/pkg/backend"
	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/output"
	"quill/interpreter-go/pkg/runtime"
)

// StackFrame is one diagnostic call frame: the callable name, the functor
// applied at the call, and the position execution holds within the frame.
type StackFrame struct {
	Name    string
	Functor string
	Span    fir.PackageSpan
}

// BreakpointSpan is a statement execution can pause on. Only statements
// from debug-mode builds carry markers and spans; release graphs step
// straight through.
type BreakpointSpan struct {
	Stmt fir.StmtId
	Span fir.Span
}

// Debugger owns a paused execution of a program entry and resumes it one
// step action at a time. The program runs to the same result it would
// without the debugger; pausing only suspends the state.
type Debugger struct {
	program     *Program
	state       *interpreter.State
	env         *runtime.Env
	back        backend.Backend
	out         output.Receiver
	breakpoints []fir.StmtId
	done        bool
}

// NewDebugger prepares an execution of the program entry, paused before the
// first node.
func NewDebugger(program *Program, opts Options) (*Debugger, error) {
	graph := program.EntryGraph()
	if len(graph) == 0 {
		return nil, fmt.Errorf("debugger: program has no entry point")
	}
	back := opts.backend()
	back.SetSeed(opts.Seed)
	return &Debugger{
		program: program,
		state:   interpreter.NewState(program.Entry, graph, opts.Seed),
		env:     runtime.NewEnv(),
		back:    back,
		out:     opts.receiver(),
	}, nil
}

// SetBreakpoints replaces the breakpoint set with the given statements.
func (d *Debugger) SetBreakpoints(stmts []fir.StmtId) {
	d.breakpoints = append([]fir.StmtId(nil), stmts...)
}

// Breakpoints lists the entry package's statements a breakpoint can bind
// to, in statement order.
func (d *Debugger) Breakpoints() []BreakpointSpan {
	pkg := d.program.Store.Get(d.program.Entry)
	out := make([]BreakpointSpan, 0, len(pkg.Stmts))
	for id, stmt := range pkg.Stmts {
		if !stmt.Span.IsZero() {
			out = append(out, BreakpointSpan{Stmt: id, Span: stmt.Span})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stmt < out[j].Stmt })
	return out
}

// Step resumes execution until the action's pause condition, a breakpoint,
// completion, or failure. After completion or failure the debugger is
// spent.
func (d *Debugger) Step(action interpreter.StepAction) (interpreter.StepResult, error) {
	if d.done {
		return interpreter.StepResult{}, fmt.Errorf("debugger: program already completed")
	}
	res, err := d.state.Eval(d.program.Store, d.env, d.back, d.out, d.breakpoints, action)
	if err != nil {
		d.done = true
		return interpreter.StepResult{}, err
	}
	if res.Kind == interpreter.StepResultReturn {
		d.done = true
	}
	return res, nil
}

// Done reports whether the program has completed or failed.
func (d *Debugger) Done() bool { return d.done }

// CurrentSpan is the source span of the statement execution is paused at.
func (d *Debugger) CurrentSpan() fir.Span { return d.state.CurrentSpan() }

// StackFrames renders the active calls for diagnostics, outermost first.
// Frame 0 is the entry level; every frame's span is the position execution
// holds within it, so outer frames show their call sites and the innermost
// frame shows the paused statement.
func (d *Debugger) StackFrames() []StackFrame {
	frames := d.state.CallStack()
	out := make([]StackFrame, 0, len(frames)+1)
	out = append(out, StackFrame{Name: "entry"})
	for _, frame := range frames {
		out = append(out, StackFrame{
			Name:    d.program.CallableName(frame.Id),
			Functor: frame.Functor.String(),
		})
	}
	for i := 0; i < len(frames); i++ {
		out[i].Span = frames[i].Span
	}
	out[len(out)-1].Span = fir.PackageSpan{Package: d.state.Package(), Span: d.state.CurrentSpan()}
	return out
}

// Locals lists the variables visible in a stack frame, by StackFrames
// index. Compiler-generated bindings, named with a leading '@', are
// filtered out.
func (d *Debugger) Locals(frameId int) []runtime.Variable {
	var out []runtime.Variable
	for _, v := range d.env.VariablesInFrame(frameId) {
		if strings.HasPrefix(v.Name, "@") {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Lookup finds a variable by name, innermost frame first. Later bindings
// shadow earlier ones of the same name.
func (d *Debugger) Lookup(name string) (runtime.Variable, bool) {
	for frameId := len(d.state.CallStack()); frameId >= 0; frameId-- {
		vars := d.env.VariablesInFrame(frameId)
		for i := len(vars) - 1; i >= 0; i-- {
			if vars[i].Name == name {
				return vars[i], true
			}
		}
	}
	return runtime.Variable{}, false
}
