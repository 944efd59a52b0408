package runtime

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"testing"

	"quill/interpreter-go/pkg/fir"
)

func int64p(v int64) *int64 { return &v }

func TestValues_FormatDouble(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{4.0, "4.0"},
		{-4.0, "-4.0"},
		{0.5, "0.5"},
		{0.1, "0.1"},
		{1e20, "100000000000000000000.0"},
		{math.Copysign(0, -1), "-0.0"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
	}
	for _, c := range cases {
		if got := FormatDouble(c.in); got != c.want {
			t.Fatalf("FormatDouble(%v): got %q want %q", c.in, got, c.want)
		}
	}
}

func TestValues_RangeDisplay(t *testing.T) {
	cases := []struct {
		r    RangeValue
		want string
	}{
		{RangeValue{Start: int64p(1), Step: 1, End: int64p(5)}, "1..5"},
		{RangeValue{Start: int64p(1), Step: 1}, "1..."},
		{RangeValue{Start: int64p(1), Step: 2, End: int64p(5)}, "1..2..5"},
		{RangeValue{Start: int64p(1), Step: 2}, "1..2..."},
		{RangeValue{Step: 1, End: int64p(5)}, "...5"},
		{RangeValue{Step: 1}, "..."},
		{RangeValue{Step: 2, End: int64p(5)}, "...2..5"},
		{RangeValue{Step: 2}, "...2..."},
	}
	for _, c := range cases {
		if got := c.r.String(); got != c.want {
			t.Fatalf("range display: got %q want %q", got, c.want)
		}
	}
}

func TestValues_TupleDisplay(t *testing.T) {
	pair := NewTuple([]Value{IntValue{1}, IntValue{2}})
	if got := pair.String(); got != "(1, 2)" {
		t.Fatalf("pair display: got %q", got)
	}
	single := NewTuple([]Value{IntValue{1}})
	if got := single.String(); got != "(1,)" {
		t.Fatalf("singleton display: got %q", got)
	}
	if v := NewTuple(nil); v != Unit {
		t.Fatalf("empty tuple should collapse to Unit, got %#v", v)
	}
	if got := Unit.String(); got != "()" {
		t.Fatalf("unit display: got %q", got)
	}
}

func TestValues_ArrayDisplay(t *testing.T) {
	arr := NewArray([]Value{IntValue{1}, BoolValue{true}, StringValue{"x"}})
	if got := arr.String(); got != "[1, true, x]" {
		t.Fatalf("array display: got %q", got)
	}
}

func TestValues_GlobalDisplayIncludesFunctors(t *testing.T) {
	id := fir.StoreItemId{Package: 2, Item: 5}
	plain := GlobalValue{Id: id}
	if got := plain.String(); got != "Item 5 (Package 2)" {
		t.Fatalf("plain global display: got %q", got)
	}
	wrapped := GlobalValue{Id: id, Functor: FunctorApp{Adjoint: true, Controlled: 2}}
	if got := wrapped.String(); got != "Controlled Controlled Adjoint Item 5 (Package 2)" {
		t.Fatalf("functor global display: got %q", got)
	}
}

func TestValues_ResultDisplayAndUnwrap(t *testing.T) {
	if got := ResultBool(true).String(); got != "One" {
		t.Fatalf("One display: got %q", got)
	}
	if got := ResultBool(false).String(); got != "Zero" {
		t.Fatalf("Zero display: got %q", got)
	}
	if got := (ResultValue{Form: ResultId, Id: 3}).String(); got != "Result(3)" {
		t.Fatalf("Id display: got %q", got)
	}
	if got := (ResultValue{Form: ResultLoss}).String(); got != "Loss" {
		t.Fatalf("Loss display: got %q", got)
	}
	if !ResultBool(true).UnwrapBool() {
		t.Fatal("One should unwrap to true")
	}

	defer func() {
		r := recover()
		if r != "cannot unwrap Result::Id as bool" {
			t.Fatalf("unexpected panic value: %v", r)
		}
	}()
	ResultValue{Form: ResultId, Id: 1}.UnwrapBool()
}

func TestValues_TypeNameReportsUdt(t *testing.T) {
	plain := NewTuple([]Value{IntValue{1}, IntValue{2}})
	if got := TypeName(plain); got != "Tuple" {
		t.Fatalf("plain tuple type: got %q", got)
	}
	udt := NewStruct(fir.StoreItemId{Package: 0, Item: 1}, []Value{IntValue{1}})
	if got := TypeName(udt); got != "UDT" {
		t.Fatalf("struct type: got %q", got)
	}
}

func TestValues_UnwrapPanicsWithTypeName(t *testing.T) {
	defer func() {
		r := recover()
		want := "value should be Int, got String"
		if r != want {
			t.Fatalf("unexpected panic value: %v", r)
		}
	}()
	UnwrapInt(StringValue{"nope"})
}

func TestValues_EqualityComparesBigIntsByValue(t *testing.T) {
	a := BigIntValue{big.NewInt(42)}
	b := BigIntValue{big.NewInt(42)}
	if !ValuesEqual(a, b) {
		t.Fatal("equal big ints should compare equal")
	}
	if ValuesEqual(a, BigIntValue{big.NewInt(7)}) {
		t.Fatal("different big ints should not compare equal")
	}
	if ValuesEqual(a, IntValue{42}) {
		t.Fatal("BigInt and Int should not compare equal")
	}
}

func TestValues_EqualityIsStructural(t *testing.T) {
	a := NewArray([]Value{IntValue{1}, NewTuple([]Value{BoolValue{true}})})
	b := NewArray([]Value{IntValue{1}, NewTuple([]Value{BoolValue{true}})})
	if !ValuesEqual(a, b) {
		t.Fatal("structurally equal arrays should compare equal")
	}
	c := NewArray([]Value{IntValue{1}, NewTuple([]Value{BoolValue{false}})})
	if ValuesEqual(a, c) {
		t.Fatal("different nested items should not compare equal")
	}
}

func TestValues_QubitReleaseSharedAcrossCopies(t *testing.T) {
	q := NewQubit(4)
	arr := NewArray([]Value{q})
	if got := q.String(); got != "Qubit4" {
		t.Fatalf("live qubit display: got %q", got)
	}
	q.MarkReleased()
	inner := UnwrapQubit(arr.Items[0])
	if !inner.Released() {
		t.Fatal("release should be visible through every copy of the handle")
	}
	if got := inner.String(); got != "Qubit<released>" {
		t.Fatalf("released qubit display: got %q", got)
	}
}

func TestValues_QubitsInWalksContainers(t *testing.T) {
	q1, q2, q3 := NewQubit(1), NewQubit(2), NewQubit(3)
	v := NewTuple([]Value{
		q1,
		NewArray([]Value{q2}),
		NewClosure([]Value{q3}, fir.StoreItemId{}, FunctorApp{}),
		IntValue{9},
	})
	got := QubitsIn(v)
	if len(got) != 3 || got[0] != q1 || got[1] != q2 || got[2] != q3 {
		t.Fatalf("qubit collection mismatch: got %v", got)
	}
}

func TestValues_ReleaseCascadesIntoItems(t *testing.T) {
	inner := NewArray([]Value{IntValue{1}})
	outer := NewArray([]Value{inner})
	if inner.owners != 1 {
		t.Fatalf("slot claim: got %d owners, want 1", inner.owners)
	}
	Retain(outer)
	Release(outer)
	if inner.owners != 0 {
		t.Fatalf("cascade: got %d owners, want 0", inner.owners)
	}
}

func TestValues_ApplyFunctorAlgebra(t *testing.T) {
	g := GlobalValue{Id: fir.StoreItemId{Package: 0, Item: 3}}
	v := ApplyFunctor(g, fir.UnOpAdjoint)
	v = ApplyFunctor(v, fir.UnOpControlled)
	want := FunctorApp{Adjoint: true, Controlled: 1}
	if got := v.(GlobalValue).Functor; got != want {
		t.Fatalf("functor app: got %+v want %+v", got, want)
	}

	// A second adjoint cancels the first.
	v = ApplyFunctor(v, fir.UnOpAdjoint)
	if got := v.(GlobalValue).Functor; got.Adjoint {
		t.Fatalf("double adjoint should cancel, got %+v", got)
	}

	cl := NewClosure([]Value{IntValue{1}}, fir.StoreItemId{Package: 1, Item: 2}, FunctorApp{})
	wrapped := ApplyFunctor(cl, fir.UnOpControlled).(*ClosureValue)
	if wrapped == cl {
		t.Fatal("closure functor application should not mutate the original")
	}
	if wrapped.Functor.Controlled != 1 || cl.Functor.Controlled != 0 {
		t.Fatalf("closure functor app: got %+v / original %+v", wrapped.Functor, cl.Functor)
	}
}

func TestValues_StringRenderingIsRaw(t *testing.T) {
	// Message output prints strings without quoting.
	s := StringValue{"hello world"}
	if got := s.String(); got != "hello world" {
		t.Fatalf("string display: got %q", got)
	}
	if got := fmt.Sprint(NewArray([]Value{s})); !strings.Contains(got, "[hello world]") {
		t.Fatalf("array of strings display: got %q", got)
	}
}
