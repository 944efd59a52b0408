package interpreter

import (
	"math"
	"math/big"
	"testing"

	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/runtime"
)

var testSpan = fir.PackageSpan{Package: 0, Span: fir.Span{Lo: 1, Hi: 2}}

func evalOp(t *testing.T, op fir.BinOp, lhs, rhs runtime.Value) runtime.Value {
	t.Helper()
	v, err := binOpEval(op, lhs, rhs, testSpan)
	if err != nil {
		t.Fatalf("%s: unexpected error %v", op, err)
	}
	return v
}

func TestBinOp_IntArithmeticWraps(t *testing.T) {
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpAdd, runtime.IntValue{Val: math.MaxInt64}, runtime.IntValue{Val: 1})); v != math.MinInt64 {
		t.Fatalf("max + 1: got %d want wrap to min", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpSub, runtime.IntValue{Val: math.MinInt64}, runtime.IntValue{Val: 1})); v != math.MaxInt64 {
		t.Fatalf("min - 1: got %d want wrap to max", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpMul, runtime.IntValue{Val: math.MaxInt64}, runtime.IntValue{Val: 2})); v != -2 {
		t.Fatalf("max * 2: got %d want -2", v)
	}
}

func TestBinOp_DivisionTruncatesTowardZero(t *testing.T) {
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpDiv, runtime.IntValue{Val: 7}, runtime.IntValue{Val: 2})); v != 3 {
		t.Fatalf("7 / 2: got %d want 3", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpDiv, runtime.IntValue{Val: -7}, runtime.IntValue{Val: 2})); v != -3 {
		t.Fatalf("-7 / 2: got %d want -3", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpMod, runtime.IntValue{Val: -7}, runtime.IntValue{Val: 2})); v != -1 {
		t.Fatalf("-7 %% 2: got %d want -1", v)
	}
}

func TestBinOp_DivisionByZero(t *testing.T) {
	_, err := binOpEval(fir.BinOpDiv, runtime.IntValue{Val: 1}, runtime.IntValue{Val: 0}, testSpan)
	if err == nil || err.Kind != runtime.ErrDivZero {
		t.Fatalf("int division: got %v, want division by zero", err)
	}
	if err.Error() != "division by zero" {
		t.Fatalf("message: got %q", err.Error())
	}
	if err.Span != testSpan {
		t.Fatalf("span: got %+v want %+v", err.Span, testSpan)
	}

	_, err = binOpEval(fir.BinOpMod, runtime.IntValue{Val: 1}, runtime.IntValue{Val: 0}, testSpan)
	if err == nil || err.Kind != runtime.ErrDivZero {
		t.Fatalf("int modulo: got %v, want division by zero", err)
	}

	_, err = binOpEval(fir.BinOpDiv, runtime.BigIntValue{Val: big.NewInt(1)}, runtime.BigIntValue{Val: big.NewInt(0)}, testSpan)
	if err == nil || err.Kind != runtime.ErrDivZero {
		t.Fatalf("big int division: got %v, want division by zero", err)
	}

	_, err = binOpEval(fir.BinOpMod, runtime.DoubleValue{Val: 1}, runtime.DoubleValue{Val: 0}, testSpan)
	if err == nil || err.Kind != runtime.ErrDivZero {
		t.Fatalf("double modulo: got %v, want division by zero", err)
	}
}

func TestBinOp_MinIntEdgeCases(t *testing.T) {
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpDiv, runtime.IntValue{Val: math.MinInt64}, runtime.IntValue{Val: -1})); v != math.MinInt64 {
		t.Fatalf("min / -1: got %d want wrap to min", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpMod, runtime.IntValue{Val: math.MinInt64}, runtime.IntValue{Val: -1})); v != 0 {
		t.Fatalf("min %% -1: got %d want 0", v)
	}
}

func TestBinOp_Exponent(t *testing.T) {
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpExp, runtime.IntValue{Val: 2}, runtime.IntValue{Val: 10})); v != 1024 {
		t.Fatalf("2^10: got %d want 1024", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpExp, runtime.IntValue{Val: 0}, runtime.IntValue{Val: 0})); v != 1 {
		t.Fatalf("0^0: got %d want 1", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpExp, runtime.IntValue{Val: -2}, runtime.IntValue{Val: 63})); v != math.MinInt64 {
		t.Fatalf("(-2)^63: got %d want min", v)
	}
	if v := runtime.UnwrapDouble(evalOp(t, fir.BinOpExp, runtime.DoubleValue{Val: 9}, runtime.DoubleValue{Val: 0.5})); v != 3 {
		t.Fatalf("9.0^0.5: got %v want 3", v)
	}

	_, err := binOpEval(fir.BinOpExp, runtime.IntValue{Val: 2}, runtime.IntValue{Val: 63}, testSpan)
	if err == nil || err.Kind != runtime.ErrIntTooLarge {
		t.Fatalf("2^63: got %v, want integer too large", err)
	}
	if err.Error() != "integer too large for operation: 63" {
		t.Fatalf("overflow message: got %q", err.Error())
	}

	_, err = binOpEval(fir.BinOpExp, runtime.IntValue{Val: 2}, runtime.IntValue{Val: -2}, testSpan)
	if err == nil || err.Kind != runtime.ErrInvalidNegativeInt {
		t.Fatalf("negative exponent: got %v, want negative int error", err)
	}
	if err.Error() != "negative integers cannot be used here: -2" {
		t.Fatalf("negative exponent message: got %q", err.Error())
	}

	got := evalOp(t, fir.BinOpExp, runtime.BigIntValue{Val: big.NewInt(2)}, runtime.IntValue{Val: 100})
	want := new(big.Int).Lsh(big.NewInt(1), 100)
	if runtime.UnwrapBigInt(got).Cmp(want) != 0 {
		t.Fatalf("big 2^100: got %s want %s", got, want)
	}
}

func TestBinOp_BigIntArithmetic(t *testing.T) {
	sum := evalOp(t, fir.BinOpAdd, runtime.BigIntValue{Val: big.NewInt(7)}, runtime.BigIntValue{Val: big.NewInt(5)})
	if runtime.UnwrapBigInt(sum).Int64() != 12 {
		t.Fatalf("7 + 5: got %s want 12", sum)
	}
	quo := evalOp(t, fir.BinOpDiv, runtime.BigIntValue{Val: big.NewInt(-7)}, runtime.BigIntValue{Val: big.NewInt(2)})
	if runtime.UnwrapBigInt(quo).Int64() != -3 {
		t.Fatalf("-7 / 2: got %s want -3", quo)
	}
	rem := evalOp(t, fir.BinOpMod, runtime.BigIntValue{Val: big.NewInt(-7)}, runtime.BigIntValue{Val: big.NewInt(2)})
	if runtime.UnwrapBigInt(rem).Int64() != -1 {
		t.Fatalf("-7 %% 2: got %s want -1", rem)
	}
}

func TestBinOp_Shifts(t *testing.T) {
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpShl, runtime.IntValue{Val: 1}, runtime.IntValue{Val: 4})); v != 16 {
		t.Fatalf("1 <<< 4: got %d want 16", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpShr, runtime.IntValue{Val: 16}, runtime.IntValue{Val: 2})); v != 4 {
		t.Fatalf("16 >>> 2: got %d want 4", v)
	}
	// A negative amount shifts the opposite way.
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpShl, runtime.IntValue{Val: 16}, runtime.IntValue{Val: -2})); v != 4 {
		t.Fatalf("16 <<< -2: got %d want 4", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpShr, runtime.IntValue{Val: 1}, runtime.IntValue{Val: -4})); v != 16 {
		t.Fatalf("1 >>> -4: got %d want 16", v)
	}

	_, err := binOpEval(fir.BinOpShl, runtime.IntValue{Val: 1}, runtime.IntValue{Val: 64}, testSpan)
	if err == nil || err.Kind != runtime.ErrIntTooLarge {
		t.Fatalf("shift by 64: got %v, want integer too large", err)
	}
	_, err = binOpEval(fir.BinOpShl, runtime.IntValue{Val: 1}, runtime.IntValue{Val: math.MinInt64}, testSpan)
	if err == nil || err.Kind != runtime.ErrIntTooLarge {
		t.Fatalf("shift by min: got %v, want integer too large", err)
	}

	big1 := runtime.BigIntValue{Val: big.NewInt(1)}
	wide := evalOp(t, fir.BinOpShl, big1, runtime.IntValue{Val: 100})
	if runtime.UnwrapBigInt(wide).BitLen() != 101 {
		t.Fatalf("big 1 <<< 100: got %s", wide)
	}
	narrow := evalOp(t, fir.BinOpShr, wide, runtime.IntValue{Val: 100})
	if runtime.UnwrapBigInt(narrow).Int64() != 1 {
		t.Fatalf("big shift back: got %s want 1", narrow)
	}
}

func TestBinOp_Bitwise(t *testing.T) {
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpAndB, runtime.IntValue{Val: 0b1100}, runtime.IntValue{Val: 0b1010})); v != 0b1000 {
		t.Fatalf("and: got %b", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpOrB, runtime.IntValue{Val: 0b1100}, runtime.IntValue{Val: 0b1010})); v != 0b1110 {
		t.Fatalf("or: got %b", v)
	}
	if v := runtime.UnwrapInt(evalOp(t, fir.BinOpXorB, runtime.IntValue{Val: 0b1100}, runtime.IntValue{Val: 0b1010})); v != 0b0110 {
		t.Fatalf("xor: got %b", v)
	}
	xor := evalOp(t, fir.BinOpXorB, runtime.BigIntValue{Val: big.NewInt(12)}, runtime.BigIntValue{Val: big.NewInt(10)})
	if runtime.UnwrapBigInt(xor).Int64() != 6 {
		t.Fatalf("big xor: got %s want 6", xor)
	}
}

func TestBinOp_Comparisons(t *testing.T) {
	if !runtime.UnwrapBool(evalOp(t, fir.BinOpLt, runtime.IntValue{Val: 1}, runtime.IntValue{Val: 2})) {
		t.Fatal("1 < 2 should hold")
	}
	if runtime.UnwrapBool(evalOp(t, fir.BinOpGte, runtime.IntValue{Val: 1}, runtime.IntValue{Val: 2})) {
		t.Fatal("1 >= 2 should not hold")
	}
	if !runtime.UnwrapBool(evalOp(t, fir.BinOpLte, runtime.DoubleValue{Val: 1.5}, runtime.DoubleValue{Val: 1.5})) {
		t.Fatal("1.5 <= 1.5 should hold")
	}
	big7 := runtime.BigIntValue{Val: big.NewInt(7)}
	big9 := runtime.BigIntValue{Val: big.NewInt(9)}
	if !runtime.UnwrapBool(evalOp(t, fir.BinOpGt, big9, big7)) {
		t.Fatal("big 9 > 7 should hold")
	}
}

func TestBinOp_NaNComparesFalse(t *testing.T) {
	nan := runtime.DoubleValue{Val: math.NaN()}
	one := runtime.DoubleValue{Val: 1}
	for _, op := range []fir.BinOp{fir.BinOpGt, fir.BinOpGte, fir.BinOpLt, fir.BinOpLte} {
		if runtime.UnwrapBool(evalOp(t, op, nan, one)) {
			t.Fatalf("NaN %s 1.0 should not hold", op)
		}
		if runtime.UnwrapBool(evalOp(t, op, one, nan)) {
			t.Fatalf("1.0 %s NaN should not hold", op)
		}
	}
	if runtime.UnwrapBool(evalOp(t, fir.BinOpEq, nan, nan)) {
		t.Fatal("NaN == NaN should not hold")
	}
	if !runtime.UnwrapBool(evalOp(t, fir.BinOpNeq, nan, nan)) {
		t.Fatal("NaN != NaN should hold")
	}
}

func TestBinOp_Equality(t *testing.T) {
	a := runtime.NewTuple([]runtime.Value{runtime.IntValue{Val: 1}, runtime.StringValue{Val: "x"}})
	b := runtime.NewTuple([]runtime.Value{runtime.IntValue{Val: 1}, runtime.StringValue{Val: "x"}})
	c := runtime.NewTuple([]runtime.Value{runtime.IntValue{Val: 2}, runtime.StringValue{Val: "x"}})
	if !runtime.UnwrapBool(evalOp(t, fir.BinOpEq, a, b)) {
		t.Fatal("equal tuples should compare equal")
	}
	if !runtime.UnwrapBool(evalOp(t, fir.BinOpNeq, a, c)) {
		t.Fatal("different tuples should compare unequal")
	}
}

func TestBinOp_StringAndArrayConcat(t *testing.T) {
	s := evalOp(t, fir.BinOpAdd, runtime.StringValue{Val: "ab"}, runtime.StringValue{Val: "cd"})
	if runtime.UnwrapString(s) != "abcd" {
		t.Fatalf("string concat: got %q", runtime.UnwrapString(s))
	}

	lhs := runtime.NewArray([]runtime.Value{runtime.IntValue{Val: 1}})
	rhs := runtime.NewArray([]runtime.Value{runtime.IntValue{Val: 2}, runtime.IntValue{Val: 3}})
	cat := runtime.UnwrapArray(evalOp(t, fir.BinOpAdd, lhs, rhs))
	if len(cat.Items) != 3 || runtime.UnwrapInt(cat.Items[2]) != 3 {
		t.Fatalf("array concat: got %s", cat)
	}
}

func TestUnOp_Arithmetic(t *testing.T) {
	if v := runtime.UnwrapInt(unOpEval(fir.UnOpNeg, runtime.IntValue{Val: 5})); v != -5 {
		t.Fatalf("negate int: got %d", v)
	}
	if v := runtime.UnwrapDouble(unOpEval(fir.UnOpNeg, runtime.DoubleValue{Val: 2.5})); v != -2.5 {
		t.Fatalf("negate double: got %v", v)
	}
	neg := unOpEval(fir.UnOpNeg, runtime.BigIntValue{Val: big.NewInt(7)})
	if runtime.UnwrapBigInt(neg).Int64() != -7 {
		t.Fatalf("negate big: got %s", neg)
	}
	if v := runtime.UnwrapInt(unOpEval(fir.UnOpNotB, runtime.IntValue{Val: 5})); v != -6 {
		t.Fatalf("bitwise not: got %d want -6", v)
	}
	if runtime.UnwrapBool(unOpEval(fir.UnOpNotL, runtime.BoolValue{Val: true})) {
		t.Fatal("logical not of true should be false")
	}
	if v := runtime.UnwrapInt(unOpEval(fir.UnOpPos, runtime.IntValue{Val: 5})); v != 5 {
		t.Fatalf("unary plus: got %d", v)
	}
}

func TestUnOp_FunctorApplication(t *testing.T) {
	base := runtime.GlobalValue{Id: fir.StoreItemId{Package: 0, Item: 3}}

	adj := unOpEval(fir.UnOpAdjoint, base).(runtime.GlobalValue)
	if !adj.Functor.Adjoint || adj.Functor.Controlled != 0 {
		t.Fatalf("adjoint: got %+v", adj.Functor)
	}
	cancelled := unOpEval(fir.UnOpAdjoint, adj).(runtime.GlobalValue)
	if cancelled.Functor.Adjoint {
		t.Fatal("double adjoint should cancel")
	}

	ctl := unOpEval(fir.UnOpControlled, unOpEval(fir.UnOpControlled, base)).(runtime.GlobalValue)
	if ctl.Functor.Controlled != 2 {
		t.Fatalf("controlled twice: got %d levels", ctl.Functor.Controlled)
	}
}

func TestUnOp_UnwrapStripsRecordTag(t *testing.T) {
	item := fir.StoreItemId{Package: 0, Item: 1}
	pair := runtime.NewStruct(item, []runtime.Value{runtime.IntValue{Val: 1}, runtime.IntValue{Val: 2}})

	plain, ok := unOpEval(fir.UnOpUnwrap, pair).(*runtime.TupleValue)
	if !ok || plain.Udt != nil {
		t.Fatalf("unwrap: got %#v, want untagged tuple", plain)
	}
	if len(plain.Items) != 2 || runtime.UnwrapInt(plain.Items[0]) != 1 {
		t.Fatalf("unwrap items: got %s", plain)
	}

	single := runtime.NewStruct(item, []runtime.Value{runtime.IntValue{Val: 9}})
	if v := runtime.UnwrapInt(unOpEval(fir.UnOpUnwrap, single)); v != 9 {
		t.Fatalf("unwrap single field: got %d want 9", v)
	}

	// Bare values carry no tag and unwrap to themselves.
	if v := runtime.UnwrapInt(unOpEval(fir.UnOpUnwrap, runtime.IntValue{Val: 4})); v != 4 {
		t.Fatalf("unwrap bare value: got %d want 4", v)
	}
}

func TestIntPow_OverflowDetection(t *testing.T) {
	if v, ok := intPow(2, 62); !ok || v != 1<<62 {
		t.Fatalf("2^62: got %d ok=%v", v, ok)
	}
	if _, ok := intPow(2, 63); ok {
		t.Fatal("2^63 should overflow")
	}
	if v, ok := intPow(-2, 63); !ok || v != math.MinInt64 {
		t.Fatalf("(-2)^63: got %d ok=%v, want min", v, ok)
	}
	if _, ok := intPow(math.MinInt64, 2); ok {
		t.Fatal("min^2 should overflow")
	}
	if v, ok := intPow(1, math.MaxUint32); !ok || v != 1 {
		t.Fatalf("1^max: got %d ok=%v", v, ok)
	}
}
