package interpreter

import (
	"fmt"

	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/runtime"
)

// evalCall applies a callable value to its argument. The callee decides the
// shape of the call: record constructors pass the argument through, native
// intrinsics run to completion here, and graph-backed callables push a
// frame and continue in the run loop.
func (ev *evaluator) evalCall(callSpan fir.Span) *runtime.Error {
	s := ev.state
	arg := s.takeVal()
	callee := s.popVal()

	var id fir.StoreItemId
	var functor runtime.FunctorApp
	var fixed []runtime.Value
	switch c := callee.(type) {
	case runtime.GlobalValue:
		id = c.Id
		functor = c.Functor
	case *runtime.ClosureValue:
		id = c.Id
		functor = c.Functor
		fixed = c.FixedArgs
	default:
		panic(fmt.Sprintf("value should be Global or Closure, got %s", callee.Kind()))
	}

	global := ev.globals.Global(id)
	if global == nil {
		panic(fmt.Sprintf("global %s not found", id))
	}
	switch g := global.(type) {
	case fir.UdtGlobal:
		// a record carries no tag of its own; constructing one is identity
		s.setVal(arg)
		return nil
	case fir.CallableGlobal:
		return ev.invoke(g.Decl, id, functor, fixed, arg, callee, ev.span(callSpan))
	default:
		panic(fmt.Sprintf("unhandled global %T", global))
	}
}

func (ev *evaluator) invoke(decl *fir.CallableDecl, id fir.StoreItemId, functor runtime.FunctorApp, fixed []runtime.Value, arg, callee runtime.Value, callSpan fir.PackageSpan) *runtime.Error {
	s := ev.state
	frame := Frame{Span: callSpan, Id: id, CallerPackage: s.pkg, Functor: functor}
	switch impl := decl.Impl.(type) {
	case fir.IntrinsicImpl:
		arg = mergeFixedArgs(fixed, arg)
		runtime.DropTemp(callee)
		// the frame makes the intrinsic visible in failure stacks
		s.callStack = append(s.callStack, frame)
		log.Trace().Str("callable", decl.Name).Msg("invoking intrinsic")
		result, err := invokeIntrinsic(decl.Name, arg, callSpan, s.rng, ev.backend, ev.out)
		if err != nil {
			return err
		}
		if !decl.UnitOutput && result.Kind() == runtime.KindUnit {
			return runtime.UnsupportedIntrinsicTypeError(decl.Name, callSpan)
		}
		runtime.DropTemp(arg)
		s.callStack = s.callStack[:len(s.callStack)-1]
		s.setVal(result)
		return nil
	case fir.SpecImpl:
		spec := selectSpec(impl, functor, decl.Name)
		ev.enterSpec(spec, decl, id, functor, fixed, arg, callee, frame)
		return nil
	case fir.SimulatableIntrinsicImpl:
		if functor != (runtime.FunctorApp{}) {
			panic(fmt.Sprintf("functor application %s is not supported for simulatable intrinsic %s", functor, decl.Name))
		}
		ev.enterSpec(&impl.Body, decl, id, functor, fixed, arg, callee, frame)
		return nil
	default:
		panic(fmt.Sprintf("unhandled callable implementation %T", decl.Impl))
	}
}

// selectSpec picks the specialization a functor application selects: the
// adjoint flag picks between body and adjoint, and any controls pick the
// controlled variant of that choice.
func selectSpec(impl fir.SpecImpl, functor runtime.FunctorApp, name string) *fir.SpecDecl {
	var spec *fir.SpecDecl
	switch {
	case !functor.Adjoint && functor.Controlled == 0:
		spec = &impl.Body
	case functor.Adjoint && functor.Controlled == 0:
		spec = impl.Adj
	case !functor.Adjoint:
		spec = impl.Ctl
	default:
		spec = impl.CtlAdj
	}
	if spec == nil {
		panic(fmt.Sprintf("missing specialization %s for callable %s", functor, name))
	}
	return spec
}

// enterSpec pushes a graph-backed call. Each Controlled application nests
// the argument in another (controls, rest) pair, outermost first; the
// peeled controls flatten into one array bound to the specialization's
// controls input before the underlying parameter binds.
func (ev *evaluator) enterSpec(spec *fir.SpecDecl, decl *fir.CallableDecl, id fir.StoreItemId, functor runtime.FunctorApp, fixed []runtime.Value, arg, callee runtime.Value, frame Frame) {
	s := ev.state
	log.Trace().Str("callable", decl.Name).Str("functor", functor.String()).Msg("pushing call")
	s.pushCall(spec.Graph, frame, id.Package, ev.env)
	calleeView := packageView{globals: ev.globals, pkg: id.Package}
	if functor.Controlled > 0 {
		var ctls []runtime.Value
		for i := uint8(0); i < functor.Controlled; i++ {
			ctlArr, rest := runtime.UnwrapPair(arg)
			ctls = append(ctls, runtime.UnwrapArray(ctlArr).Items...)
			arg = rest
		}
		if spec.Input == nil {
			panic(fmt.Sprintf("missing controls input for callable %s", decl.Name))
		}
		ev.env.Bind(calleeView, *spec.Input, runtime.NewArray(ctls))
	}
	arg = mergeFixedArgs(fixed, arg)
	runtime.DropTemp(callee)
	ev.env.Bind(calleeView, decl.Input, arg)
}

// mergeFixedArgs prepends a closure's captured values to the argument.
func mergeFixedArgs(fixed []runtime.Value, arg runtime.Value) runtime.Value {
	if len(fixed) == 0 {
		return arg
	}
	items := make([]runtime.Value, 0, len(fixed)+1)
	items = append(items, fixed...)
	items = append(items, arg)
	return runtime.NewTuple(items)
}
