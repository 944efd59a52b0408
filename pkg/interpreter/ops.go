package interpreter

import (
	"fmt"
	"math"
	"math/big"

	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/runtime"
)

// binOpEval applies a binary operator to fully evaluated operands. Integer
// arithmetic wraps; only division, modulo, exponentiation, and shifts can
// fail. The span locates the right-hand operand for error reporting.
func binOpEval(op fir.BinOp, lhs, rhs runtime.Value, span fir.PackageSpan) (runtime.Value, *runtime.Error) {
	switch op {
	case fir.BinOpAdd:
		return evalAdd(lhs, rhs), nil
	case fir.BinOpAndB, fir.BinOpOrB, fir.BinOpXorB:
		return evalBitwise(op, lhs, rhs), nil
	case fir.BinOpDiv:
		return evalDiv(lhs, rhs, span)
	case fir.BinOpEq:
		return runtime.BoolValue{Val: runtime.ValuesEqual(lhs, rhs)}, nil
	case fir.BinOpExp:
		return evalExp(lhs, rhs, span)
	case fir.BinOpGt, fir.BinOpGte, fir.BinOpLt, fir.BinOpLte:
		return evalCompare(op, lhs, rhs), nil
	case fir.BinOpMod:
		return evalMod(lhs, rhs, span)
	case fir.BinOpMul:
		return evalMul(lhs, rhs), nil
	case fir.BinOpNeq:
		return runtime.BoolValue{Val: !runtime.ValuesEqual(lhs, rhs)}, nil
	case fir.BinOpShl:
		return evalShift(lhs, runtime.UnwrapInt(rhs), true, span)
	case fir.BinOpShr:
		return evalShift(lhs, runtime.UnwrapInt(rhs), false, span)
	case fir.BinOpSub:
		return evalSub(lhs, rhs), nil
	case fir.BinOpAndL, fir.BinOpOrL:
		panic(fmt.Sprintf("logical %s should be lowered into the execution graph", op))
	default:
		panic(fmt.Sprintf("unhandled binary operator %s", op))
	}
}

func evalAdd(lhs, rhs runtime.Value) runtime.Value {
	switch l := lhs.(type) {
	case runtime.IntValue:
		return runtime.IntValue{Val: l.Val + runtime.UnwrapInt(rhs)}
	case runtime.BigIntValue:
		return runtime.BigIntValue{Val: new(big.Int).Add(l.Val, runtime.UnwrapBigInt(rhs))}
	case runtime.DoubleValue:
		return runtime.DoubleValue{Val: l.Val + runtime.UnwrapDouble(rhs)}
	case runtime.StringValue:
		return runtime.StringValue{Val: l.Val + runtime.UnwrapString(rhs)}
	case *runtime.ArrayValue:
		return runtime.ConcatArrays(l, runtime.UnwrapArray(rhs))
	default:
		panic(fmt.Sprintf("unsupported operand kind %s for +", lhs.Kind()))
	}
}

func evalSub(lhs, rhs runtime.Value) runtime.Value {
	switch l := lhs.(type) {
	case runtime.IntValue:
		return runtime.IntValue{Val: l.Val - runtime.UnwrapInt(rhs)}
	case runtime.BigIntValue:
		return runtime.BigIntValue{Val: new(big.Int).Sub(l.Val, runtime.UnwrapBigInt(rhs))}
	case runtime.DoubleValue:
		return runtime.DoubleValue{Val: l.Val - runtime.UnwrapDouble(rhs)}
	default:
		panic(fmt.Sprintf("unsupported operand kind %s for -", lhs.Kind()))
	}
}

func evalMul(lhs, rhs runtime.Value) runtime.Value {
	switch l := lhs.(type) {
	case runtime.IntValue:
		return runtime.IntValue{Val: l.Val * runtime.UnwrapInt(rhs)}
	case runtime.BigIntValue:
		return runtime.BigIntValue{Val: new(big.Int).Mul(l.Val, runtime.UnwrapBigInt(rhs))}
	case runtime.DoubleValue:
		return runtime.DoubleValue{Val: l.Val * runtime.UnwrapDouble(rhs)}
	default:
		panic(fmt.Sprintf("unsupported operand kind %s for *", lhs.Kind()))
	}
}

func evalDiv(lhs, rhs runtime.Value, span fir.PackageSpan) (runtime.Value, *runtime.Error) {
	switch l := lhs.(type) {
	case runtime.IntValue:
		r := runtime.UnwrapInt(rhs)
		if r == 0 {
			return nil, runtime.DivZeroError(span)
		}
		// Go faults on MinInt64 / -1; the wrapped quotient is MinInt64.
		if l.Val == math.MinInt64 && r == -1 {
			return runtime.IntValue{Val: math.MinInt64}, nil
		}
		return runtime.IntValue{Val: l.Val / r}, nil
	case runtime.BigIntValue:
		r := runtime.UnwrapBigInt(rhs)
		if r.Sign() == 0 {
			return nil, runtime.DivZeroError(span)
		}
		return runtime.BigIntValue{Val: new(big.Int).Quo(l.Val, r)}, nil
	case runtime.DoubleValue:
		return runtime.DoubleValue{Val: l.Val / runtime.UnwrapDouble(rhs)}, nil
	default:
		panic(fmt.Sprintf("unsupported operand kind %s for /", lhs.Kind()))
	}
}

func evalMod(lhs, rhs runtime.Value, span fir.PackageSpan) (runtime.Value, *runtime.Error) {
	switch l := lhs.(type) {
	case runtime.IntValue:
		r := runtime.UnwrapInt(rhs)
		if r == 0 {
			return nil, runtime.DivZeroError(span)
		}
		// Go faults on MinInt64 % -1; the wrapped remainder is zero.
		if l.Val == math.MinInt64 && r == -1 {
			return runtime.IntValue{Val: 0}, nil
		}
		return runtime.IntValue{Val: l.Val % r}, nil
	case runtime.BigIntValue:
		r := runtime.UnwrapBigInt(rhs)
		if r.Sign() == 0 {
			return nil, runtime.DivZeroError(span)
		}
		return runtime.BigIntValue{Val: new(big.Int).Rem(l.Val, r)}, nil
	case runtime.DoubleValue:
		r := runtime.UnwrapDouble(rhs)
		if r == 0 {
			return nil, runtime.DivZeroError(span)
		}
		return runtime.DoubleValue{Val: math.Mod(l.Val, r)}, nil
	default:
		panic(fmt.Sprintf("unsupported operand kind %s for %%", lhs.Kind()))
	}
}

func evalExp(lhs, rhs runtime.Value, span fir.PackageSpan) (runtime.Value, *runtime.Error) {
	switch l := lhs.(type) {
	case runtime.IntValue:
		exp := runtime.UnwrapInt(rhs)
		if exp < 0 {
			return nil, runtime.InvalidNegativeIntError(exp, span)
		}
		if exp > math.MaxUint32 {
			return nil, runtime.IntTooLargeError(exp, span)
		}
		result, ok := intPow(l.Val, uint32(exp))
		if !ok {
			return nil, runtime.IntTooLargeError(exp, span)
		}
		return runtime.IntValue{Val: result}, nil
	case runtime.BigIntValue:
		exp := runtime.UnwrapInt(rhs)
		if exp < 0 {
			return nil, runtime.InvalidNegativeIntError(exp, span)
		}
		if exp > math.MaxUint32 {
			return nil, runtime.IntTooLargeError(exp, span)
		}
		return runtime.BigIntValue{Val: new(big.Int).Exp(l.Val, big.NewInt(exp), nil)}, nil
	case runtime.DoubleValue:
		return runtime.DoubleValue{Val: math.Pow(l.Val, runtime.UnwrapDouble(rhs))}, nil
	default:
		panic(fmt.Sprintf("unsupported operand kind %s for ^", lhs.Kind()))
	}
}

// evalShift shifts lhs by an amount of bits, leftward or not. A negative
// amount shifts the other way; negating MinInt64 wraps, so that amount is
// rejected before the flip.
func evalShift(lhs runtime.Value, amount int64, leftward bool, span fir.PackageSpan) (runtime.Value, *runtime.Error) {
	if amount < 0 {
		if amount == math.MinInt64 {
			return nil, runtime.IntTooLargeError(amount, span)
		}
		return evalShift(lhs, -amount, !leftward, span)
	}
	if amount > math.MaxUint32 {
		return nil, runtime.IntTooLargeError(amount, span)
	}
	switch l := lhs.(type) {
	case runtime.IntValue:
		if amount >= 64 {
			return nil, runtime.IntTooLargeError(amount, span)
		}
		if leftward {
			return runtime.IntValue{Val: l.Val << uint(amount)}, nil
		}
		return runtime.IntValue{Val: l.Val >> uint(amount)}, nil
	case runtime.BigIntValue:
		if leftward {
			return runtime.BigIntValue{Val: new(big.Int).Lsh(l.Val, uint(amount))}, nil
		}
		return runtime.BigIntValue{Val: new(big.Int).Rsh(l.Val, uint(amount))}, nil
	default:
		panic(fmt.Sprintf("unsupported operand kind %s for shift", lhs.Kind()))
	}
}

func evalBitwise(op fir.BinOp, lhs, rhs runtime.Value) runtime.Value {
	switch l := lhs.(type) {
	case runtime.IntValue:
		r := runtime.UnwrapInt(rhs)
		switch op {
		case fir.BinOpAndB:
			return runtime.IntValue{Val: l.Val & r}
		case fir.BinOpOrB:
			return runtime.IntValue{Val: l.Val | r}
		case fir.BinOpXorB:
			return runtime.IntValue{Val: l.Val ^ r}
		}
	case runtime.BigIntValue:
		r := runtime.UnwrapBigInt(rhs)
		switch op {
		case fir.BinOpAndB:
			return runtime.BigIntValue{Val: new(big.Int).And(l.Val, r)}
		case fir.BinOpOrB:
			return runtime.BigIntValue{Val: new(big.Int).Or(l.Val, r)}
		case fir.BinOpXorB:
			return runtime.BigIntValue{Val: new(big.Int).Xor(l.Val, r)}
		}
	default:
		panic(fmt.Sprintf("unsupported operand kind %s for %s", lhs.Kind(), op))
	}
	panic(fmt.Sprintf("unhandled bitwise operator %s", op))
}

func evalCompare(op fir.BinOp, lhs, rhs runtime.Value) runtime.Value {
	switch l := lhs.(type) {
	case runtime.IntValue:
		r := runtime.UnwrapInt(rhs)
		switch op {
		case fir.BinOpGt:
			return runtime.BoolValue{Val: l.Val > r}
		case fir.BinOpGte:
			return runtime.BoolValue{Val: l.Val >= r}
		case fir.BinOpLt:
			return runtime.BoolValue{Val: l.Val < r}
		case fir.BinOpLte:
			return runtime.BoolValue{Val: l.Val <= r}
		}
	case runtime.BigIntValue:
		c := l.Val.Cmp(runtime.UnwrapBigInt(rhs))
		switch op {
		case fir.BinOpGt:
			return runtime.BoolValue{Val: c > 0}
		case fir.BinOpGte:
			return runtime.BoolValue{Val: c >= 0}
		case fir.BinOpLt:
			return runtime.BoolValue{Val: c < 0}
		case fir.BinOpLte:
			return runtime.BoolValue{Val: c <= 0}
		}
	case runtime.DoubleValue:
		r := runtime.UnwrapDouble(rhs)
		switch op {
		case fir.BinOpGt:
			return runtime.BoolValue{Val: l.Val > r}
		case fir.BinOpGte:
			return runtime.BoolValue{Val: l.Val >= r}
		case fir.BinOpLt:
			return runtime.BoolValue{Val: l.Val < r}
		case fir.BinOpLte:
			return runtime.BoolValue{Val: l.Val <= r}
		}
	default:
		panic(fmt.Sprintf("unsupported operand kind %s for %s", lhs.Kind(), op))
	}
	panic(fmt.Sprintf("unhandled comparison %s", op))
}

// intPow is exponentiation by squaring with overflow detection.
func intPow(base int64, exp uint32) (int64, bool) {
	if exp == 0 {
		return 1, true
	}
	acc := int64(1)
	for {
		if exp&1 == 1 {
			v, ok := mulInt(acc, base)
			if !ok {
				return 0, false
			}
			acc = v
			if exp == 1 {
				return acc, true
			}
		}
		exp >>= 1
		v, ok := mulInt(base, base)
		if !ok {
			return 0, false
		}
		base = v
	}
}

// mulInt multiplies with overflow detection. MinInt64 times negative one
// overflows, and the quotient check below would fault on it.
func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

// unOpEval applies a unary operator. Functor applications only shift the
// selector on a callable value; the panics are for shapes the lowering
// never produces.
func unOpEval(op fir.UnOp, v runtime.Value) runtime.Value {
	switch op {
	case fir.UnOpNeg:
		switch val := v.(type) {
		case runtime.IntValue:
			return runtime.IntValue{Val: -val.Val}
		case runtime.BigIntValue:
			return runtime.BigIntValue{Val: new(big.Int).Neg(val.Val)}
		case runtime.DoubleValue:
			return runtime.DoubleValue{Val: -val.Val}
		default:
			panic(fmt.Sprintf("unsupported operand kind %s for negation", v.Kind()))
		}
	case fir.UnOpNotB:
		switch val := v.(type) {
		case runtime.IntValue:
			return runtime.IntValue{Val: ^val.Val}
		case runtime.BigIntValue:
			return runtime.BigIntValue{Val: new(big.Int).Not(val.Val)}
		default:
			panic(fmt.Sprintf("unsupported operand kind %s for bitwise not", v.Kind()))
		}
	case fir.UnOpNotL:
		return runtime.BoolValue{Val: !runtime.UnwrapBool(v)}
	case fir.UnOpPos:
		return v
	case fir.UnOpAdjoint, fir.UnOpControlled:
		return runtime.ApplyFunctor(v, op)
	case fir.UnOpUnwrap:
		return unwrapUdt(v)
	default:
		panic(fmt.Sprintf("unhandled unary operator %d", int(op)))
	}
}

// unwrapUdt strips the record tag from a value. Values that carry no tag,
// including bare single-field records, unwrap to themselves.
func unwrapUdt(v runtime.Value) runtime.Value {
	tuple, ok := v.(*runtime.TupleValue)
	if !ok || tuple.Udt == nil {
		return v
	}
	if len(tuple.Items) == 1 {
		return tuple.Items[0]
	}
	return runtime.NewTuple(tuple.Items)
}
