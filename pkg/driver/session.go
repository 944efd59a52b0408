package driver

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"quill/interpreter-go/pkg/backend"
	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/output"
	"quill/interpreter-go/pkg/runtime"
)

// log is the package logger, disabled until SetLogger installs one.
var log = zerolog.Nop()

// SetLogger routes driver log events to l.
func SetLogger(l zerolog.Logger) { log = l }

// Options configure a session or debugger. The zero value uses a fresh
// basis-state simulator, discards output, and draws seeds from the clock.
type Options struct {
	Backend  backend.Backend
	Receiver output.Receiver
	Seed     *uint64
}

func (o Options) backend() backend.Backend {
	if o.Backend != nil {
		return o.Backend
	}
	return backend.NewBasisSim()
}

func (o Options) receiver() output.Receiver {
	if o.Receiver != nil {
		return o.Receiver
	}
	return output.NewGenericReceiver(io.Discard)
}

// Session drives one program interactively. The environment, backend, and
// qubits persist across evaluations, so a fragment can use bindings and
// allocations an earlier fragment made. A session serves one goroutine.
type Session struct {
	program *Program
	env     *runtime.Env
	back    backend.Backend
	out     output.Receiver
	seed    *uint64
}

// NewSession prepares a session over a loaded program.
func NewSession(program *Program, opts Options) *Session {
	s := &Session{
		program: program,
		env:     runtime.NewEnv(),
		back:    opts.backend(),
		out:     opts.receiver(),
	}
	s.SetSeed(opts.Seed)
	return s
}

// SetSeed seeds classical randomness for subsequent evaluations and hands
// the seed to the backend for measurement randomness. A nil seed returns
// both to clock-drawn values.
func (s *Session) SetSeed(seed *uint64) {
	s.seed = seed
	s.back.SetSeed(seed)
}

// EvalEntry runs the program's entry graph on a fresh state. Top-level
// bindings land in the session environment, so later fragments and
// invocations see them.
func (s *Session) EvalEntry() (runtime.Value, error) {
	graph := s.program.EntryGraph()
	if len(graph) == 0 {
		return nil, fmt.Errorf("session: program has no entry point")
	}
	return s.eval(graph)
}

// EvalStmt executes one top-level statement of the entry package as a
// standalone fragment over the session environment.
func (s *Session) EvalStmt(id fir.StmtId) (runtime.Value, error) {
	section := s.program.Store.Get(s.program.Entry).StmtSection(id)
	return s.eval(section)
}

func (s *Session) eval(graph fir.ExecGraph) (runtime.Value, error) {
	state := interpreter.NewState(s.program.Entry, graph, s.seed)
	res, err := state.Eval(s.program.Store, s.env, s.back, s.out, nil, interpreter.StepContinue)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// Invoke applies a callable value to an argument and runs the call to
// completion against the session's environment and backend.
func (s *Session) Invoke(callee, arg runtime.Value) (runtime.Value, error) {
	return interpreter.Invoke(s.program.Store, s.env, s.back, s.out, s.program.Entry, s.seed, callee, arg)
}

// Callable finds a global callable of the program by name.
func (s *Session) Callable(name string) (runtime.Value, bool) {
	return s.program.Callable(name)
}

// Program is the loaded program the session runs.
func (s *Session) Program() *Program { return s.program }
