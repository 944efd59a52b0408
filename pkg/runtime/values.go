package runtime

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"quill/interpreter-go/pkg/fir"
)

//-----------------------------------------------------------------------------
// Kinds
//-----------------------------------------------------------------------------

// Kind identifies the dynamic type of a Value.
type Kind int

const (
	KindUnit Kind = iota
	KindArray
	KindBigInt
	KindBool
	KindClosure
	KindDouble
	KindGlobal
	KindInt
	KindPauli
	KindQubit
	KindRange
	KindResult
	KindString
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "Unit"
	case KindArray:
		return "Array"
	case KindBigInt:
		return "BigInt"
	case KindBool:
		return "Bool"
	case KindClosure:
		return "Closure"
	case KindDouble:
		return "Double"
	case KindGlobal:
		return "Global"
	case KindInt:
		return "Int"
	case KindPauli:
		return "Pauli"
	case KindQubit:
		return "Qubit"
	case KindRange:
		return "Range"
	case KindResult:
		return "Result"
	case KindString:
		return "String"
	case KindTuple:
		return "Tuple"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

//-----------------------------------------------------------------------------
// Value
//-----------------------------------------------------------------------------

// Value is a runtime value. The String form is the user-facing rendering used
// by message output and state dumps.
type Value interface {
	Kind() Kind
	String() string
}

// TypeName is the user-facing type of v. Struct instances report "UDT" rather
// than "Tuple".
func TypeName(v Value) string {
	if t, ok := v.(*TupleValue); ok && t.Udt != nil {
		return "UDT"
	}
	return v.Kind().String()
}

//-----------------------------------------------------------------------------
// Scalar values
//-----------------------------------------------------------------------------

// UnitValue is the empty tuple. Empty tuples are always represented as Unit;
// NewTuple collapses them.
type UnitValue struct{}

// Unit is the canonical unit value.
var Unit Value = UnitValue{}

func (UnitValue) Kind() Kind     { return KindUnit }
func (UnitValue) String() string { return "()" }

type IntValue struct {
	Val int64
}

func (IntValue) Kind() Kind       { return KindInt }
func (v IntValue) String() string { return strconv.FormatInt(v.Val, 10) }

type BigIntValue struct {
	Val *big.Int
}

func (BigIntValue) Kind() Kind       { return KindBigInt }
func (v BigIntValue) String() string { return v.Val.String() }

type DoubleValue struct {
	Val float64
}

func (DoubleValue) Kind() Kind       { return KindDouble }
func (v DoubleValue) String() string { return FormatDouble(v.Val) }

type BoolValue struct {
	Val bool
}

func (BoolValue) Kind() Kind { return KindBool }

func (v BoolValue) String() string {
	if v.Val {
		return "true"
	}
	return "false"
}

type StringValue struct {
	Val string
}

func (StringValue) Kind() Kind       { return KindString }
func (v StringValue) String() string { return v.Val }

type PauliValue struct {
	Val fir.Pauli
}

func (PauliValue) Kind() Kind       { return KindPauli }
func (v PauliValue) String() string { return v.Val.String() }

// ResultForm distinguishes the three shapes a measurement result can take:
// a concrete boolean, a hardware result identifier, and qubit loss.
type ResultForm int

const (
	ResultVal ResultForm = iota
	ResultId
	ResultLoss
)

type ResultValue struct {
	Form ResultForm
	Val  bool
	Id   int
}

// ResultBool is a concrete One (true) or Zero (false) result.
func ResultBool(val bool) ResultValue {
	return ResultValue{Form: ResultVal, Val: val}
}

func (ResultValue) Kind() Kind { return KindResult }

func (v ResultValue) String() string {
	switch v.Form {
	case ResultId:
		return fmt.Sprintf("Result(%d)", v.Id)
	case ResultLoss:
		return "Loss"
	default:
		if v.Val {
			return "One"
		}
		return "Zero"
	}
}

// UnwrapBool converts a concrete result to its boolean. Result identifiers
// and losses carry no boolean and panic.
func (v ResultValue) UnwrapBool() bool {
	switch v.Form {
	case ResultId:
		panic("cannot unwrap Result::Id as bool")
	case ResultLoss:
		panic("cannot unwrap Result::Loss as bool")
	default:
		return v.Val
	}
}

//-----------------------------------------------------------------------------
// Qubits
//-----------------------------------------------------------------------------

// QubitValue is a shared handle to an allocated qubit. Copies of the value
// alias the same handle, so releasing through one copy is visible to all.
type QubitValue struct {
	ID       int
	released bool
}

func NewQubit(id int) *QubitValue {
	return &QubitValue{ID: id}
}

func (*QubitValue) Kind() Kind { return KindQubit }

func (q *QubitValue) String() string {
	if q.released {
		return "Qubit<released>"
	}
	return fmt.Sprintf("Qubit%d", q.ID)
}

func (q *QubitValue) Released() bool { return q.released }

func (q *QubitValue) MarkReleased() { q.released = true }

//-----------------------------------------------------------------------------
// Ranges
//-----------------------------------------------------------------------------

// DefaultRangeStep is the step used when a range literal omits one.
const DefaultRangeStep int64 = 1

// RangeValue is a range with optional start and end. Open ends are nil.
type RangeValue struct {
	Start *int64
	Step  int64
	End   *int64
}

func (RangeValue) Kind() Kind { return KindRange }

func (v RangeValue) String() string {
	switch {
	case v.Start != nil && v.Step == DefaultRangeStep && v.End != nil:
		return fmt.Sprintf("%d..%d", *v.Start, *v.End)
	case v.Start != nil && v.Step == DefaultRangeStep:
		return fmt.Sprintf("%d...", *v.Start)
	case v.Start != nil && v.End != nil:
		return fmt.Sprintf("%d..%d..%d", *v.Start, v.Step, *v.End)
	case v.Start != nil:
		return fmt.Sprintf("%d..%d...", *v.Start, v.Step)
	case v.Step == DefaultRangeStep && v.End != nil:
		return fmt.Sprintf("...%d", *v.End)
	case v.Step == DefaultRangeStep:
		return "..."
	case v.End != nil:
		return fmt.Sprintf("...%d..%d", v.Step, *v.End)
	default:
		return fmt.Sprintf("...%d...", v.Step)
	}
}

//-----------------------------------------------------------------------------
// Composite values
//-----------------------------------------------------------------------------

// ArrayValue is a mutable sequence of values. The owner count tracks how many
// lasting homes (variable bindings and container slots) hold the array;
// in-place mutation is only allowed while that count is exactly one.
type ArrayValue struct {
	Items  []Value
	owners int
}

// NewArray builds an array holding claims on its items.
func NewArray(items []Value) *ArrayValue {
	for _, it := range items {
		Retain(it)
	}
	return &ArrayValue{Items: items}
}

func (*ArrayValue) Kind() Kind { return KindArray }

func (v *ArrayValue) String() string {
	return "[" + joinValues(v.Items, ", ") + "]"
}

// TupleValue is a fixed sequence of values, optionally tagged as an instance
// of a user-defined type. Tuples are never mutated in place; the owner count
// exists only so releasing a tuple can release its items.
type TupleValue struct {
	Items  []Value
	Udt    *fir.StoreItemId
	owners int
}

// NewTuple builds a tuple holding claims on its items. The empty tuple
// collapses to Unit.
func NewTuple(items []Value) Value {
	if len(items) == 0 {
		return Unit
	}
	for _, it := range items {
		Retain(it)
	}
	return &TupleValue{Items: items}
}

// NewStruct builds an instance of the user-defined type id. Unlike plain
// tuples, empty instances do not collapse to Unit.
func NewStruct(id fir.StoreItemId, items []Value) *TupleValue {
	for _, it := range items {
		Retain(it)
	}
	return &TupleValue{Items: items, Udt: &id}
}

func (*TupleValue) Kind() Kind { return KindTuple }

func (v *TupleValue) String() string {
	if len(v.Items) == 1 {
		return "(" + v.Items[0].String() + ",)"
	}
	return "(" + joinValues(v.Items, ", ") + ")"
}

// ClosureValue is a callable with captured arguments fixed in front of the
// invocation argument.
type ClosureValue struct {
	FixedArgs []Value
	Id        fir.StoreItemId
	Functor   FunctorApp
	owners    int
}

func NewClosure(fixedArgs []Value, id fir.StoreItemId, functor FunctorApp) *ClosureValue {
	for _, it := range fixedArgs {
		Retain(it)
	}
	return &ClosureValue{FixedArgs: fixedArgs, Id: id, Functor: functor}
}

func (*ClosureValue) Kind() Kind     { return KindClosure }
func (*ClosureValue) String() string { return "<closure>" }

// GlobalValue names a top-level callable, possibly with functors applied.
type GlobalValue struct {
	Id      fir.StoreItemId
	Functor FunctorApp
}

func (GlobalValue) Kind() Kind { return KindGlobal }

func (v GlobalValue) String() string {
	if v.Functor == (FunctorApp{}) {
		return v.Id.String()
	}
	return fmt.Sprintf("%s %s", v.Functor, v.Id)
}

// FunctorApp is the accumulated functor application on a callable value:
// whether the adjoint is selected and how many levels of control wrap it.
type FunctorApp struct {
	Adjoint    bool
	Controlled uint8
}

func (f FunctorApp) String() string {
	parts := make([]string, 0, int(f.Controlled)+1)
	for i := uint8(0); i < f.Controlled; i++ {
		parts = append(parts, "Controlled")
	}
	if f.Adjoint {
		parts = append(parts, "Adjoint")
	}
	return strings.Join(parts, " ")
}

// WithAdjoint toggles the adjoint flag; two adjoints cancel.
func (f FunctorApp) WithAdjoint() FunctorApp {
	f.Adjoint = !f.Adjoint
	return f
}

// WithControlled adds one level of control.
func (f FunctorApp) WithControlled() FunctorApp {
	f.Controlled++
	return f
}

// ApplyFunctor applies a functor operator (adjoint or controlled) to a
// callable value. Only globals and closures carry functor state.
func ApplyFunctor(v Value, op fir.UnOp) Value {
	switch v := v.(type) {
	case GlobalValue:
		v.Functor = applyTo(v.Functor, op)
		return v
	case *ClosureValue:
		return NewClosure(v.FixedArgs, v.Id, applyTo(v.Functor, op))
	default:
		panic(fmt.Sprintf("value should be Global or Closure, got %s", TypeName(v)))
	}
}

func applyTo(app FunctorApp, op fir.UnOp) FunctorApp {
	switch op {
	case fir.UnOpAdjoint:
		return app.WithAdjoint()
	case fir.UnOpControlled:
		return app.WithControlled()
	default:
		panic(fmt.Sprintf("unary operator %v is not a functor", op))
	}
}

//-----------------------------------------------------------------------------
// Ownership
//-----------------------------------------------------------------------------

// Retain records one more lasting home for v. Scalars are untracked.
func Retain(v Value) {
	switch v := v.(type) {
	case *ArrayValue:
		v.owners++
	case *TupleValue:
		v.owners++
	case *ClosureValue:
		v.owners++
	}
}

// Release drops one lasting home for v. Dropping the last one releases the
// container's claims on its items.
func Release(v Value) {
	switch v := v.(type) {
	case *ArrayValue:
		v.owners--
		if v.owners <= 0 {
			for _, it := range v.Items {
				Release(it)
			}
		}
	case *TupleValue:
		v.owners--
		if v.owners <= 0 {
			for _, it := range v.Items {
				Release(it)
			}
		}
	case *ClosureValue:
		v.owners--
		if v.owners <= 0 {
			for _, it := range v.FixedArgs {
				Release(it)
			}
		}
	}
}

// DropTemp dissolves the construction claims of a value that never found a
// lasting home. Values owned elsewhere are left untouched, so this is safe
// to call on anything popped off a machine register or operand stack.
func DropTemp(v Value) {
	if owners(v) == 0 {
		Release(v)
	}
}

func owners(v Value) int {
	switch v := v.(type) {
	case *ArrayValue:
		return v.owners
	case *TupleValue:
		return v.owners
	case *ClosureValue:
		return v.owners
	default:
		return 0
	}
}

//-----------------------------------------------------------------------------
// Unwrap helpers
//-----------------------------------------------------------------------------

func UnwrapInt(v Value) int64 {
	i, ok := v.(IntValue)
	if !ok {
		panic(unwrapMsg("Int", v))
	}
	return i.Val
}

func UnwrapBigInt(v Value) *big.Int {
	b, ok := v.(BigIntValue)
	if !ok {
		panic(unwrapMsg("BigInt", v))
	}
	return b.Val
}

func UnwrapDouble(v Value) float64 {
	d, ok := v.(DoubleValue)
	if !ok {
		panic(unwrapMsg("Double", v))
	}
	return d.Val
}

func UnwrapBool(v Value) bool {
	b, ok := v.(BoolValue)
	if !ok {
		panic(unwrapMsg("Bool", v))
	}
	return b.Val
}

func UnwrapString(v Value) string {
	s, ok := v.(StringValue)
	if !ok {
		panic(unwrapMsg("String", v))
	}
	return s.Val
}

func UnwrapPauli(v Value) fir.Pauli {
	p, ok := v.(PauliValue)
	if !ok {
		panic(unwrapMsg("Pauli", v))
	}
	return p.Val
}

func UnwrapResult(v Value) ResultValue {
	r, ok := v.(ResultValue)
	if !ok {
		panic(unwrapMsg("Result", v))
	}
	return r
}

func UnwrapQubit(v Value) *QubitValue {
	q, ok := v.(*QubitValue)
	if !ok {
		panic(unwrapMsg("Qubit", v))
	}
	return q
}

func UnwrapRange(v Value) RangeValue {
	r, ok := v.(RangeValue)
	if !ok {
		panic(unwrapMsg("Range", v))
	}
	return r
}

func UnwrapArray(v Value) *ArrayValue {
	a, ok := v.(*ArrayValue)
	if !ok {
		panic(unwrapMsg("Array", v))
	}
	return a
}

// UnwrapTuple returns the items of a tuple, treating Unit as the empty tuple.
func UnwrapTuple(v Value) []Value {
	switch v := v.(type) {
	case UnitValue:
		return nil
	case *TupleValue:
		return v.Items
	default:
		panic(unwrapMsg("Tuple", v))
	}
}

// UnwrapPair destructures a two-element tuple.
func UnwrapPair(v Value) (Value, Value) {
	items := UnwrapTuple(v)
	if len(items) != 2 {
		panic(fmt.Sprintf("tuple should have 2 items, got %d", len(items)))
	}
	return items[0], items[1]
}

func unwrapMsg(want string, v Value) string {
	return fmt.Sprintf("value should be %s, got %s", want, TypeName(v))
}

//-----------------------------------------------------------------------------
// Traversal and equality
//-----------------------------------------------------------------------------

// QubitsIn collects every qubit handle reachable from v.
func QubitsIn(v Value) []*QubitValue {
	var out []*QubitValue
	collectQubits(v, &out)
	return out
}

func collectQubits(v Value, out *[]*QubitValue) {
	switch v := v.(type) {
	case *QubitValue:
		*out = append(*out, v)
	case *ArrayValue:
		for _, it := range v.Items {
			collectQubits(it, out)
		}
	case *TupleValue:
		for _, it := range v.Items {
			collectQubits(it, out)
		}
	case *ClosureValue:
		for _, it := range v.FixedArgs {
			collectQubits(it, out)
		}
	}
}

// ValuesEqual compares two values structurally. Arrays and tuples compare
// elementwise; qubits compare by handle identity.
func ValuesEqual(a, b Value) bool {
	switch a := a.(type) {
	case UnitValue:
		_, ok := b.(UnitValue)
		return ok
	case IntValue:
		bb, ok := b.(IntValue)
		return ok && a.Val == bb.Val
	case BigIntValue:
		bb, ok := b.(BigIntValue)
		return ok && a.Val.Cmp(bb.Val) == 0
	case DoubleValue:
		bb, ok := b.(DoubleValue)
		return ok && a.Val == bb.Val
	case BoolValue:
		bb, ok := b.(BoolValue)
		return ok && a.Val == bb.Val
	case StringValue:
		bb, ok := b.(StringValue)
		return ok && a.Val == bb.Val
	case PauliValue:
		bb, ok := b.(PauliValue)
		return ok && a.Val == bb.Val
	case ResultValue:
		bb, ok := b.(ResultValue)
		return ok && a == bb
	case RangeValue:
		bb, ok := b.(RangeValue)
		return ok && optEq(a.Start, bb.Start) && a.Step == bb.Step && optEq(a.End, bb.End)
	case *QubitValue:
		bb, ok := b.(*QubitValue)
		return ok && a == bb
	case *ArrayValue:
		bb, ok := b.(*ArrayValue)
		return ok && itemsEqual(a.Items, bb.Items)
	case *TupleValue:
		bb, ok := b.(*TupleValue)
		return ok && itemsEqual(a.Items, bb.Items)
	case *ClosureValue:
		bb, ok := b.(*ClosureValue)
		return ok && a.Id == bb.Id && a.Functor == bb.Functor && itemsEqual(a.FixedArgs, bb.FixedArgs)
	case GlobalValue:
		bb, ok := b.(GlobalValue)
		return ok && a == bb
	default:
		return false
	}
}

func itemsEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ValuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func optEq(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

//-----------------------------------------------------------------------------
// Formatting
//-----------------------------------------------------------------------------

// FormatDouble renders a float the way program output does: whole numbers
// keep one fractional digit, everything else uses the shortest round-trip
// decimal form.
func FormatDouble(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func joinValues(items []Value, sep string) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(it.String())
	}
	return sb.String()
}
