package interpreter

import (
	"quill/interpreter-go/pkg/backend"
	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/output"
	"quill/interpreter-go/pkg/runtime"
)

// Invoke applies a callable value to an argument outside any enclosing
// graph and runs the call to completion. The callee must be a global or a
// closure; pkg anchors resolution of references to the current package. The
// call sees env the same way a call inside a program would, so bindings it
// creates unwind when it returns while mutations to existing bindings stick.
func Invoke(globals fir.PackageStoreLookup, env *runtime.Env, back backend.Backend, out output.Receiver, pkg fir.PackageId, seed *uint64, callee, arg runtime.Value) (runtime.Value, error) {
	s := NewState(pkg, nil, seed)
	ev := &evaluator{state: s, globals: globals, env: env, backend: back, out: out}
	s.pushVal(callee)
	s.setVal(arg)
	if err := ev.evalCall(fir.Span{}); err != nil {
		return nil, s.fail(err)
	}
	res, err := ev.run(StepContinue)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}
