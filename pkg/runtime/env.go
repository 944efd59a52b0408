package runtime

import (
	"fmt"

	"quill/interpreter-go/pkg/fir"
)

// PackageView resolves program elements of a single package. *fir.Package
// satisfies it directly; the evaluator adapts its store-wide lookup to the
// package currently executing.
type PackageView interface {
	Expr(id fir.ExprId) *fir.Expr
	Pat(id fir.PatId) *fir.Pat
}

// Variable is one named binding.
type Variable struct {
	Name  string
	Value Value
	Span  fir.Span
}

type scope struct {
	frameID int
	vars    map[fir.LocalVarId]*Variable
	order   []fir.LocalVarId
}

func newScope(frameID int) *scope {
	return &scope{frameID: frameID, vars: make(map[fir.LocalVarId]*Variable)}
}

// Env is the variable environment: a stack of lexical scopes, each tagged
// with the call frame it belongs to. An Env outlives any single evaluation
// so interactive fragments can keep their top-level bindings.
type Env struct {
	scopes []*scope
}

// NewEnv starts with the top-level scope, which can never be popped.
func NewEnv() *Env {
	return &Env{scopes: []*scope{newScope(0)}}
}

// PushScope opens a scope tagged with the given call frame.
func (e *Env) PushScope(frameID int) {
	e.scopes = append(e.scopes, newScope(frameID))
}

// LeaveScope closes the innermost scope, dropping the claims its bindings
// hold. The top-level scope stays.
func (e *Env) LeaveScope() {
	if len(e.scopes) <= 1 {
		return
	}
	top := e.scopes[len(e.scopes)-1]
	for _, id := range top.order {
		Release(top.vars[id].Value)
	}
	e.scopes = e.scopes[:len(e.scopes)-1]
}

// LeaveFrame closes every scope the given call frame opened. An early
// return can leave block scopes of the frame open; the frame tag tells how
// far to unwind.
func (e *Env) LeaveFrame(frameID int) {
	for len(e.scopes) > 1 && e.scopes[len(e.scopes)-1].frameID == frameID {
		e.LeaveScope()
	}
}

// Lookup finds the binding for id, innermost scope first.
func (e *Env) Lookup(id fir.LocalVarId) (*Variable, bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if v, ok := e.scopes[i].vars[id]; ok {
			return v, true
		}
	}
	return nil, false
}

// Bind destructures value against the pattern, inserting bindings into the
// innermost scope. Tuple patterns are arity-exact. Passing ownership here
// lets a register-built container give up its claims once its items have
// found homes, keeping owner counts tight for the common argument-tuple case.
func (e *Env) Bind(view PackageView, pat fir.PatId, value Value) {
	p := view.Pat(pat)
	switch kind := p.Kind.(type) {
	case fir.BindPat:
		Retain(value)
		e.insert(kind.Name.Var, &Variable{Name: kind.Name.Name, Value: value, Span: kind.Name.Span})
	case fir.DiscardPat:
		DropTemp(value)
	case fir.TuplePat:
		items := UnwrapTuple(value)
		if len(items) != len(kind.Items) {
			panic(fmt.Sprintf("tuple pattern expected %d items, got %d", len(kind.Items), len(items)))
		}
		for i, sub := range kind.Items {
			e.Bind(view, sub, items[i])
		}
		DropTemp(value)
	default:
		panic(fmt.Sprintf("unknown pattern kind %T", p.Kind))
	}
}

// Update rebinds an existing variable, swapping the ownership claim from the
// old value to the new one.
func (e *Env) Update(id fir.LocalVarId, value Value) bool {
	v, ok := e.Lookup(id)
	if !ok {
		return false
	}
	Retain(value)
	Release(v.Value)
	v.Value = value
	return true
}

func (e *Env) insert(id fir.LocalVarId, v *Variable) {
	top := e.scopes[len(e.scopes)-1]
	if old, exists := top.vars[id]; exists {
		Release(old.Value)
	} else {
		top.order = append(top.order, id)
	}
	top.vars[id] = v
}

// VariablesInFrame flattens every scope tagged with frameID in creation
// order, for debugger consumption.
func (e *Env) VariablesInFrame(frameID int) []Variable {
	var out []Variable
	for _, s := range e.scopes {
		if s.frameID != frameID {
			continue
		}
		for _, id := range s.order {
			out = append(out, *s.vars[id])
		}
	}
	return out
}

// IsUpdatableInPlace reports whether an assignment target may be mutated
// directly instead of cloned. Only a bare local-variable reference whose
// array cell has exactly one lasting owner qualifies; anything else might
// alias storage the update must not disturb.
func IsUpdatableInPlace(view PackageView, env *Env, expr fir.ExprId) (*ArrayValue, bool) {
	kind, ok := view.Expr(expr).Kind.(fir.VarExpr)
	if !ok {
		return nil, false
	}
	local, ok := kind.Res.(fir.LocalRes)
	if !ok {
		return nil, false
	}
	v, ok := env.Lookup(local.Var)
	if !ok {
		return nil, false
	}
	arr, ok := v.Value.(*ArrayValue)
	if !ok || arr.owners != 1 {
		return nil, false
	}
	return arr, true
}
