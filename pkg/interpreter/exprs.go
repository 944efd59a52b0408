package interpreter

import (
	"fmt"
	"strings"

	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/runtime"
)

// evalExpr evaluates one expression node. The builder walks subexpressions
// before the expression's own node, leaving the last operand in the register
// and the earlier ones on the operand stack, so each handler starts by
// unstacking in reverse.
func (ev *evaluator) evalExpr(id fir.ExprId) *runtime.Error {
	s := ev.state
	expr := ev.view().Expr(id)
	switch kind := expr.Kind.(type) {
	case fir.ArrayExpr:
		s.setVal(runtime.NewArray(s.popVals(len(kind.Items))))
	case fir.ArrayLitExpr:
		items := make([]runtime.Value, len(kind.Items))
		for i, item := range kind.Items {
			lit, ok := ev.view().Expr(item).Kind.(fir.LitExpr)
			if !ok {
				panic(fmt.Sprintf("array literal item should be a literal, got %T", ev.view().Expr(item).Kind))
			}
			items[i] = litValue(lit.Lit)
		}
		s.setVal(runtime.NewArray(items))
	case fir.ArrayRepeatExpr:
		size := runtime.UnwrapInt(s.takeVal())
		value := s.popVal()
		if size < 0 {
			return runtime.InvalidArrayLengthError(size, ev.exprSpan(kind.Size))
		}
		items := make([]runtime.Value, size)
		for i := range items {
			items[i] = value
		}
		arr := runtime.NewArray(items)
		runtime.DropTemp(value)
		s.setVal(arr)
	case fir.AssignExpr:
		ev.updateBinding(kind.Lhs, s.takeVal())
	case fir.AssignOpExpr:
		return ev.evalAssignOp(kind)
	case fir.AssignFieldExpr:
		record := s.takeVal()
		replace := s.popVal()
		updated := updateField(record, kind.Field, replace)
		runtime.DropTemp(record)
		ev.updateBinding(kind.Record, updated)
	case fir.AssignIndexExpr:
		return ev.evalAssignIndex(kind)
	case fir.BinOpExpr:
		if kind.Op == fir.BinOpAndL || kind.Op == fir.BinOpOrL {
			panic(fmt.Sprintf("%T with %s should be lowered into the execution graph", kind, kind.Op))
		}
		rhs := s.takeVal()
		lhs := s.popVal()
		result, err := binOpEval(kind.Op, lhs, rhs, ev.exprSpan(kind.Rhs))
		if err != nil {
			return err
		}
		s.setVal(result)
	case fir.CallExpr:
		return ev.evalCall(expr.Span)
	case fir.ClosureExpr:
		fixed := make([]runtime.Value, len(kind.Captures))
		for i, capture := range kind.Captures {
			v, ok := ev.env.Lookup(capture)
			if !ok {
				return runtime.UnboundNameError(ev.span(expr.Span))
			}
			fixed[i] = v.Value
		}
		callable := fir.StoreItemId{Package: s.pkg, Item: kind.Callable}
		s.setVal(runtime.NewClosure(fixed, callable, runtime.FunctorApp{}))
	case fir.FailExpr:
		return runtime.UserFailError(runtime.UnwrapString(s.takeVal()), ev.span(expr.Span))
	case fir.FieldExpr:
		s.setVal(readField(s.takeVal(), kind.Field))
	case fir.HoleExpr:
		panic("hole expressions cannot be evaluated")
	case fir.IndexExpr:
		index := s.takeVal()
		array := runtime.UnwrapArray(s.popVal())
		switch idx := index.(type) {
		case runtime.IntValue:
			item, err := runtime.IndexArray(array.Items, idx.Val, ev.exprSpan(kind.Index))
			if err != nil {
				return err
			}
			s.setVal(item)
		case runtime.RangeValue:
			items, err := runtime.SliceArray(array.Items, idx, ev.exprSpan(kind.Index))
			if err != nil {
				return err
			}
			s.setVal(runtime.NewArray(items))
		default:
			panic(fmt.Sprintf("value should be Int or Range, got %s", index.Kind()))
		}
	case fir.LitExpr:
		s.setVal(litValue(kind.Lit))
	case fir.RangeExpr:
		var end *int64
		if kind.End != nil {
			v := runtime.UnwrapInt(s.takeVal())
			end = &v
		}
		step := runtime.DefaultRangeStep
		if kind.Step != nil {
			step = runtime.UnwrapInt(s.popVal())
		}
		var start *int64
		if kind.Start != nil {
			v := runtime.UnwrapInt(s.popVal())
			start = &v
		}
		s.setVal(runtime.RangeValue{Start: start, Step: step, End: end})
	case fir.StringExpr:
		ev.evalString(kind)
	case fir.StructExpr:
		ev.evalStruct(kind)
	case fir.TupleExpr:
		s.setVal(runtime.NewTuple(s.popVals(len(kind.Items))))
	case fir.UnOpExpr:
		s.setVal(unOpEval(kind.Op, s.takeVal()))
	case fir.UpdateIndexExpr:
		return ev.evalUpdateIndex(kind)
	case fir.UpdateFieldExpr:
		record := s.takeVal()
		replace := s.popVal()
		updated := updateField(record, kind.Field, replace)
		runtime.DropTemp(record)
		s.setVal(updated)
	case fir.VarExpr:
		switch res := kind.Res.(type) {
		case fir.ItemRes:
			item := res.Item.In(s.pkg)
			if ev.globals.Global(item) == nil {
				panic(fmt.Sprintf("global %s not found", item))
			}
			s.setVal(runtime.GlobalValue{Id: item})
		case fir.LocalRes:
			v, ok := ev.env.Lookup(res.Var)
			if !ok {
				panic(fmt.Sprintf("local variable %d is not bound", res.Var))
			}
			s.setVal(v.Value)
		default:
			panic(fmt.Sprintf("unhandled name resolution %T", kind.Res))
		}
	case fir.BlockExpr, fir.IfExpr, fir.ReturnExpr, fir.WhileExpr:
		panic(fmt.Sprintf("%T should be lowered into the execution graph", expr.Kind))
	default:
		panic(fmt.Sprintf("unhandled expression %T", expr.Kind))
	}
	return nil
}

// span locates a source span in the package currently executing.
func (ev *evaluator) span(s fir.Span) fir.PackageSpan {
	return fir.PackageSpan{Package: ev.state.pkg, Span: s}
}

// exprSpan locates an expression's span in the package currently executing.
func (ev *evaluator) exprSpan(id fir.ExprId) fir.PackageSpan {
	return ev.span(ev.view().Expr(id).Span)
}

func (ev *evaluator) evalAssignOp(kind fir.AssignOpExpr) *runtime.Error {
	s := ev.state
	switch {
	case kind.Append:
		rhs := s.takeVal()
		rhsArr := runtime.UnwrapArray(rhs)
		if arr, ok := runtime.IsUpdatableInPlace(ev.view(), ev.env, kind.Lhs); ok {
			runtime.AppendArrayInPlace(arr, rhsArr)
			runtime.DropTemp(rhs)
			return nil
		}
		lhsArr := runtime.UnwrapArray(ev.lookupVarValue(kind.Lhs))
		concat := runtime.ConcatArrays(lhsArr, rhsArr)
		runtime.DropTemp(rhs)
		ev.updateBinding(kind.Lhs, concat)
	case kind.Op == fir.BinOpAndL || kind.Op == fir.BinOpOrL:
		// the jump chain already reduced both sides to the result
		ev.updateBinding(kind.Lhs, s.takeVal())
	default:
		rhs := s.takeVal()
		lhs := s.popVal()
		result, err := binOpEval(kind.Op, lhs, rhs, ev.exprSpan(kind.Rhs))
		if err != nil {
			return err
		}
		ev.updateBinding(kind.Lhs, result)
	}
	return nil
}

// evalAssignIndex is `set a w/= i <- b`. The target array is never walked;
// it is read through its binding so an uniquely owned array can mutate in
// place instead of copying.
func (ev *evaluator) evalAssignIndex(kind fir.AssignIndexExpr) *runtime.Error {
	s := ev.state
	replace := s.takeVal()
	index := s.popVal()
	span := ev.exprSpan(kind.Index)
	if arr, ok := runtime.IsUpdatableInPlace(ev.view(), ev.env, kind.Array); ok {
		switch idx := index.(type) {
		case runtime.IntValue:
			return runtime.UpdateArrayInPlace(arr, idx.Val, replace, span)
		case runtime.RangeValue:
			replaceArr := runtime.UnwrapArray(replace)
			if err := runtime.UpdateRangeInPlace(arr, idx, replaceArr.Items, span); err != nil {
				return err
			}
			runtime.DropTemp(replace)
			return nil
		default:
			panic(fmt.Sprintf("value should be Int or Range, got %s", index.Kind()))
		}
	}
	array := runtime.UnwrapArray(ev.lookupVarValue(kind.Array))
	switch idx := index.(type) {
	case runtime.IntValue:
		items, err := runtime.UpdateIndexSingle(array.Items, idx.Val, replace, span)
		if err != nil {
			return err
		}
		ev.updateBinding(kind.Array, runtime.NewArray(items))
	case runtime.RangeValue:
		replaceArr := runtime.UnwrapArray(replace)
		items, err := runtime.UpdateIndexRange(array.Items, idx, replaceArr.Items, span)
		if err != nil {
			return err
		}
		ev.updateBinding(kind.Array, runtime.NewArray(items))
		runtime.DropTemp(replace)
	default:
		panic(fmt.Sprintf("value should be Int or Range, got %s", index.Kind()))
	}
	return nil
}

func (ev *evaluator) evalUpdateIndex(kind fir.UpdateIndexExpr) *runtime.Error {
	s := ev.state
	array := s.takeVal()
	replace := s.popVal()
	index := s.popVal()
	span := ev.exprSpan(kind.Index)
	source := runtime.UnwrapArray(array)
	switch idx := index.(type) {
	case runtime.IntValue:
		items, err := runtime.UpdateIndexSingle(source.Items, idx.Val, replace, span)
		if err != nil {
			return err
		}
		updated := runtime.NewArray(items)
		runtime.DropTemp(array)
		s.setVal(updated)
	case runtime.RangeValue:
		replaceArr := runtime.UnwrapArray(replace)
		items, err := runtime.UpdateIndexRange(source.Items, idx, replaceArr.Items, span)
		if err != nil {
			return err
		}
		updated := runtime.NewArray(items)
		runtime.DropTemp(array)
		runtime.DropTemp(replace)
		s.setVal(updated)
	default:
		panic(fmt.Sprintf("value should be Int or Range, got %s", index.Kind()))
	}
	return nil
}

func (ev *evaluator) evalString(kind fir.StringExpr) {
	s := ev.state
	exprs := 0
	for _, component := range kind.Components {
		if _, ok := component.(fir.ExprComponent); ok {
			exprs++
		}
	}
	vals := s.popVals(exprs)
	var b strings.Builder
	next := 0
	for _, component := range kind.Components {
		switch c := component.(type) {
		case fir.LitComponent:
			b.WriteString(c.Text)
		case fir.ExprComponent:
			b.WriteString(vals[next].String())
			next++
		default:
			panic(fmt.Sprintf("unhandled string component %T", component))
		}
	}
	for _, v := range vals {
		runtime.DropTemp(v)
	}
	s.setVal(runtime.StringValue{Val: b.String()})
}

func (ev *evaluator) evalStruct(kind fir.StructExpr) {
	s := ev.state
	vals := s.popVals(len(kind.Fields))
	if kind.Copy != nil {
		src := s.popVal()
		cur := src
		for i, field := range kind.Fields {
			next := updateField(cur, field.Field, vals[i])
			if cur != src {
				runtime.DropTemp(cur)
			}
			cur = next
		}
		if cur != src {
			runtime.DropTemp(src)
		}
		s.setVal(cur)
		return
	}
	// A record with one field is represented by the bare field value, the
	// same shape a constructor call produces.
	if len(kind.Fields) == 1 {
		if path, ok := kind.Fields[0].Field.(fir.PathField); ok && len(path.Indices) == 0 {
			s.setVal(vals[0])
			return
		}
	}
	items := make([]runtime.Value, len(kind.Fields))
	for i, field := range kind.Fields {
		path, ok := field.Field.(fir.PathField)
		if !ok || len(path.Indices) == 0 {
			panic(fmt.Sprintf("unhandled constructor field %v", field.Field))
		}
		items[path.Indices[0]] = vals[i]
	}
	s.setVal(runtime.NewStruct(kind.Item.In(s.pkg), items))
}

// updateBinding writes a value through an assignment target, destructuring
// tuple targets item by item.
func (ev *evaluator) updateBinding(lhs fir.ExprId, value runtime.Value) {
	expr := ev.view().Expr(lhs)
	switch kind := expr.Kind.(type) {
	case fir.HoleExpr:
		runtime.DropTemp(value)
	case fir.VarExpr:
		res, ok := kind.Res.(fir.LocalRes)
		if !ok {
			panic("assignment target should be a local variable")
		}
		if !ev.env.Update(res.Var, value) {
			panic(fmt.Sprintf("local variable %d is not bound", res.Var))
		}
	case fir.TupleExpr:
		items := runtime.UnwrapTuple(value)
		if len(items) != len(kind.Items) {
			panic(fmt.Sprintf("tuple assignment expected %d items, got %d", len(kind.Items), len(items)))
		}
		for i, sub := range kind.Items {
			ev.updateBinding(sub, items[i])
		}
		runtime.DropTemp(value)
	default:
		panic(fmt.Sprintf("unhandled assignment target %T", expr.Kind))
	}
}

// lookupVarValue reads the current value of a variable assignment target.
func (ev *evaluator) lookupVarValue(id fir.ExprId) runtime.Value {
	kind, ok := ev.view().Expr(id).Kind.(fir.VarExpr)
	if !ok {
		panic("assignment target should be a variable")
	}
	res, ok := kind.Res.(fir.LocalRes)
	if !ok {
		panic("assignment target should be a local variable")
	}
	v, ok := ev.env.Lookup(res.Var)
	if !ok {
		panic(fmt.Sprintf("local variable %d is not bound", res.Var))
	}
	return v.Value
}

// readField extracts a record field. An empty path is the record itself,
// which is how single-field records are laid out.
func readField(record runtime.Value, field fir.Field) runtime.Value {
	switch f := field.(type) {
	case fir.PathField:
		v := record
		for _, idx := range f.Indices {
			v = runtime.UnwrapTuple(v)[idx]
		}
		return v
	case fir.PrimField:
		r := runtime.UnwrapRange(record)
		switch f {
		case fir.FieldStart:
			if r.Start == nil {
				panic("range has no start")
			}
			return runtime.IntValue{Val: *r.Start}
		case fir.FieldStep:
			return runtime.IntValue{Val: r.Step}
		case fir.FieldEnd:
			if r.End == nil {
				panic("range has no end")
			}
			return runtime.IntValue{Val: *r.End}
		}
	}
	panic(fmt.Sprintf("unhandled field %v", field))
}

// updateField is a copy-and-update of one record field.
func updateField(record runtime.Value, field fir.Field, replace runtime.Value) runtime.Value {
	path, ok := field.(fir.PathField)
	if !ok {
		panic(fmt.Sprintf("field %v cannot be updated", field))
	}
	return updatePath(record, path.Indices, replace)
}

// updatePath rebuilds the spine of tuples along a field path, sharing every
// item off the path. The caller owns dissolving the source record.
func updatePath(record runtime.Value, indices []int, replace runtime.Value) runtime.Value {
	if len(indices) == 0 {
		return replace
	}
	tuple, ok := record.(*runtime.TupleValue)
	if !ok {
		panic(fmt.Sprintf("value should be Tuple, got %s", record.Kind()))
	}
	items := make([]runtime.Value, len(tuple.Items))
	copy(items, tuple.Items)
	items[indices[0]] = updatePath(items[indices[0]], indices[1:], replace)
	if tuple.Udt != nil {
		return runtime.NewStruct(*tuple.Udt, items)
	}
	return runtime.NewTuple(items)
}

func litValue(lit fir.Lit) runtime.Value {
	switch l := lit.(type) {
	case fir.BigIntLit:
		return runtime.BigIntValue{Val: l.Val}
	case fir.BoolLit:
		return runtime.BoolValue{Val: l.Val}
	case fir.DoubleLit:
		return runtime.DoubleValue{Val: l.Val}
	case fir.IntLit:
		return runtime.IntValue{Val: l.Val}
	case fir.PauliLit:
		return runtime.PauliValue{Val: l.Val}
	case fir.ResultLit:
		return runtime.ResultBool(l.One)
	default:
		panic(fmt.Sprintf("unhandled literal %T", lit))
	}
}
