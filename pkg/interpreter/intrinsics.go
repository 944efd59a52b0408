package interpreter

import (
	"fmt"
	"math"
	"math/big"
	"math/cmplx"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"quill/interpreter-go/pkg/backend"
	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/output"
	"quill/interpreter-go/pkg/runtime"
)

// qisPrefix starts the names of quantum operation intrinsics. The suffix
// after the gate name selects the specialization: __body, __adj, or __ctl.
const qisPrefix = "__quantum__qis__"

// invokeIntrinsic dispatches an intrinsic callable by name. Names that are
// neither built in nor quantum operations are offered to the backend, which
// is how simulator-specific intrinsics hook in.
func invokeIntrinsic(name string, arg runtime.Value, span fir.PackageSpan, rng *rand.Rand, back backend.Backend, out output.Receiver) (runtime.Value, *runtime.Error) {
	switch name {
	case "Length":
		return runtime.IntValue{Val: int64(len(runtime.UnwrapArray(arg).Items))}, nil
	case "Message":
		if err := out.Message(runtime.UnwrapString(arg)); err != nil {
			return nil, runtime.OutputFailError(span)
		}
		return runtime.Unit, nil
	case "ArcCos":
		return runtime.DoubleValue{Val: math.Acos(runtime.UnwrapDouble(arg))}, nil
	case "ArcSin":
		return runtime.DoubleValue{Val: math.Asin(runtime.UnwrapDouble(arg))}, nil
	case "ArcTan":
		return runtime.DoubleValue{Val: math.Atan(runtime.UnwrapDouble(arg))}, nil
	case "ArcTan2":
		y, x := runtime.UnwrapPair(arg)
		return runtime.DoubleValue{Val: math.Atan2(runtime.UnwrapDouble(y), runtime.UnwrapDouble(x))}, nil
	case "Cos":
		return runtime.DoubleValue{Val: math.Cos(runtime.UnwrapDouble(arg))}, nil
	case "Cosh":
		return runtime.DoubleValue{Val: math.Cosh(runtime.UnwrapDouble(arg))}, nil
	case "Sin":
		return runtime.DoubleValue{Val: math.Sin(runtime.UnwrapDouble(arg))}, nil
	case "Sinh":
		return runtime.DoubleValue{Val: math.Sinh(runtime.UnwrapDouble(arg))}, nil
	case "Sqrt":
		return runtime.DoubleValue{Val: math.Sqrt(runtime.UnwrapDouble(arg))}, nil
	case "Tan":
		return runtime.DoubleValue{Val: math.Tan(runtime.UnwrapDouble(arg))}, nil
	case "Tanh":
		return runtime.DoubleValue{Val: math.Tanh(runtime.UnwrapDouble(arg))}, nil
	case "Log":
		return runtime.DoubleValue{Val: math.Log(runtime.UnwrapDouble(arg))}, nil
	case "Truncate":
		return runtime.IntValue{Val: int64(math.Trunc(runtime.UnwrapDouble(arg)))}, nil
	case "IntAsDouble":
		return runtime.DoubleValue{Val: float64(runtime.UnwrapInt(arg))}, nil
	case "IntAsBigInt":
		return runtime.BigIntValue{Val: big.NewInt(runtime.UnwrapInt(arg))}, nil
	case "DoubleAsStringWithPrecision":
		dVal, pVal := runtime.UnwrapPair(arg)
		d, p := runtime.UnwrapDouble(dVal), runtime.UnwrapInt(pVal)
		if p < 0 {
			return nil, runtime.InvalidNegativeIntError(p, span)
		}
		if p == 0 {
			// zero precision keeps the decimal point: "4."
			return runtime.StringValue{Val: strconv.FormatFloat(d, 'f', 0, 64) + "."}, nil
		}
		return runtime.StringValue{Val: strconv.FormatFloat(d, 'f', int(p), 64)}, nil
	case "DrawRandomInt":
		loVal, hiVal := runtime.UnwrapPair(arg)
		lo, hi := runtime.UnwrapInt(loVal), runtime.UnwrapInt(hiVal)
		if lo > hi {
			return nil, runtime.EmptyRangeError(span)
		}
		delta := uint64(hi) - uint64(lo)
		if delta == math.MaxUint64 {
			return runtime.IntValue{Val: int64(rng.Uint64())}, nil
		}
		return runtime.IntValue{Val: lo + int64(rng.Uint64()%(delta+1))}, nil
	case "DrawRandomDouble":
		loVal, hiVal := runtime.UnwrapPair(arg)
		lo, hi := runtime.UnwrapDouble(loVal), runtime.UnwrapDouble(hiVal)
		if lo > hi {
			return nil, runtime.EmptyRangeError(span)
		}
		return runtime.DoubleValue{Val: lo + rng.Float64()*(hi-lo)}, nil
	case "DrawRandomBool":
		return runtime.BoolValue{Val: rng.Float64() < runtime.UnwrapDouble(arg)}, nil
	case "DumpMachine":
		entries, count := back.CaptureQuantumState()
		if err := out.State(entries, count); err != nil {
			return nil, runtime.OutputFailError(span)
		}
		return runtime.Unit, nil
	case "DumpRegister":
		return dumpRegister(arg, span, back, out)
	case "CheckZero":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err
		}
		return runtime.BoolValue{Val: back.QubitIsZero(q)}, nil
	case "__quantum__rt__qubit_allocate":
		return runtime.NewQubit(back.QubitAllocate()), nil
	case "__quantum__rt__qubit_release":
		q := runtime.UnwrapQubit(arg)
		if q.Released() {
			return nil, runtime.QubitDoubleReleaseError(span)
		}
		ground := back.QubitRelease(q.ID)
		q.MarkReleased()
		if !ground {
			return nil, runtime.ReleasedQubitNotZeroError(q.ID, span)
		}
		return runtime.Unit, nil
	default:
		if strings.HasPrefix(name, qisPrefix) {
			if result, err, ok := invokeQuantum(strings.TrimPrefix(name, qisPrefix), arg, span, back); ok {
				return result, err
			}
		}
		result, handled, err := back.CustomIntrinsic(name, arg)
		if err != nil {
			return nil, runtime.IntrinsicFailError(name, err.Error(), span)
		}
		if handled {
			if result == nil {
				return runtime.Unit, nil
			}
			return result, nil
		}
		return nil, runtime.UnknownIntrinsicError(name, span)
	}
}

// invokeQuantum routes a quantum operation to the backend. Adjoints of self
// adjoint gates share the body case, rotations negate their angle, and the
// few controlled forms the backends support are mapped to their controlled
// gates. Everything else reports unrecognized so the custom intrinsic
// fallback can see the full name.
func invokeQuantum(op string, arg runtime.Value, span fir.PackageSpan, back backend.Backend) (runtime.Value, *runtime.Error, bool) {
	switch op {
	case "ccx__body", "ccx__adj":
		q0, q1, q2, err := threeQubits(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Ccx(q0, q1, q2)
	case "cx__body", "cx__adj":
		ctl, q, err := twoQubits(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Cx(ctl, q)
	case "cy__body", "cy__adj":
		ctl, q, err := twoQubits(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Cy(ctl, q)
	case "cz__body", "cz__adj":
		ctl, q, err := twoQubits(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Cz(ctl, q)
	case "h__body", "h__adj":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.H(q)
	case "m__body":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		return back.M(q), nil, true
	case "mresetz__body":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		return back.MResetZ(q), nil, true
	case "reset__body":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Reset(q)
	case "rx__body", "rx__adj", "ry__body", "ry__adj", "rz__body", "rz__adj":
		theta, q, err := rotationArgs(arg, span)
		if err != nil {
			return nil, err, true
		}
		if strings.HasSuffix(op, "__adj") {
			theta = -theta
		}
		switch op[:2] {
		case "rx":
			back.Rx(theta, q)
		case "ry":
			back.Ry(theta, q)
		case "rz":
			back.Rz(theta, q)
		}
	case "rxx__body", "rxx__adj", "ryy__body", "ryy__adj", "rzz__body", "rzz__adj":
		theta, q0, q1, err := rotation2Args(arg, span)
		if err != nil {
			return nil, err, true
		}
		if strings.HasSuffix(op, "__adj") {
			theta = -theta
		}
		switch op[:3] {
		case "rxx":
			back.Rxx(theta, q0, q1)
		case "ryy":
			back.Ryy(theta, q0, q1)
		case "rzz":
			back.Rzz(theta, q0, q1)
		}
	case "s__body", "sadj__adj":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.S(q)
	case "s__adj", "sadj__body":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Sadj(q)
	case "sx__body":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Sx(q)
	case "swap__body", "swap__adj":
		q0, q1, err := twoQubits(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Swap(q0, q1)
	case "t__body", "tadj__adj":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.T(q)
	case "t__adj", "tadj__body":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Tadj(q)
	case "x__body", "x__adj":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.X(q)
	case "y__body", "y__adj":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Y(q)
	case "z__body", "z__adj":
		q, err := oneQubit(arg, span)
		if err != nil {
			return nil, err, true
		}
		back.Z(q)
	case "x__ctl":
		ctlsVal, rest := runtime.UnwrapPair(arg)
		ctls, err := controlQubits(ctlsVal, span)
		if err != nil {
			return nil, err, true
		}
		q, err := oneQubit(rest, span)
		if err != nil {
			return nil, err, true
		}
		if !uniqueInts(append(ctls, q)) {
			return nil, runtime.QubitUniquenessError(span), true
		}
		switch len(ctls) {
		case 1:
			back.Cx(ctls[0], q)
		case 2:
			back.Ccx(ctls[0], ctls[1], q)
		default:
			panic(fmt.Sprintf("not supported: x gate with %d controls", len(ctls)))
		}
	case "y__ctl", "z__ctl":
		ctlsVal, rest := runtime.UnwrapPair(arg)
		ctls, err := controlQubits(ctlsVal, span)
		if err != nil {
			return nil, err, true
		}
		q, err := oneQubit(rest, span)
		if err != nil {
			return nil, err, true
		}
		if len(ctls) != 1 {
			panic(fmt.Sprintf("not supported: %c gate with %d controls", op[0], len(ctls)))
		}
		if ctls[0] == q {
			return nil, runtime.QubitUniquenessError(span), true
		}
		if op[0] == 'y' {
			back.Cy(ctls[0], q)
		} else {
			back.Cz(ctls[0], q)
		}
	case "cx__ctl":
		ctlsVal, rest := runtime.UnwrapPair(arg)
		ctls, err := controlQubits(ctlsVal, span)
		if err != nil {
			return nil, err, true
		}
		ctl, q, err := twoQubits(rest, span)
		if err != nil {
			return nil, err, true
		}
		if len(ctls) != 1 {
			panic(fmt.Sprintf("not supported: cx gate with %d controls", len(ctls)))
		}
		if !uniqueInts([]int{ctls[0], ctl, q}) {
			return nil, runtime.QubitUniquenessError(span), true
		}
		back.Ccx(ctls[0], ctl, q)
	default:
		return nil, nil, false
	}
	return runtime.Unit, nil, true
}

//-----------------------------------------------------------------------------
// Register dumps
//-----------------------------------------------------------------------------

// separabilityTolerance bounds the amplitude mismatch allowed when deciding
// whether a register factors out of the global state.
const separabilityTolerance = 1e-10

// statePositioner is an optional backend capability mapping a qubit id to
// its position in the captured basis layout. Backends that never reorder
// report positions equal to ids, which is the fallback.
type statePositioner interface {
	QubitPosition(q int) int
}

func dumpRegister(arg runtime.Value, span fir.PackageSpan, back backend.Backend, out output.Receiver) (runtime.Value, *runtime.Error) {
	arr := runtime.UnwrapArray(arg)
	ids := make([]int, len(arr.Items))
	for i, item := range arr.Items {
		q, err := oneQubit(item, span)
		if err != nil {
			return nil, err
		}
		ids[i] = q
	}
	if !uniqueInts(ids) {
		return nil, runtime.QubitUniquenessError(span)
	}
	entries, count := back.CaptureQuantumState()
	position := func(q int) int { return q }
	if p, ok := back.(statePositioner); ok {
		position = p.QubitPosition
	}
	bits := make([]int, len(ids))
	for i, id := range ids {
		bits[i] = count - 1 - position(id)
	}
	sub, ok := splitState(entries, bits)
	if !ok {
		return nil, runtime.QubitsNotSeparableError(span)
	}
	if err := out.State(sub, len(ids)); err != nil {
		return nil, runtime.OutputFailError(span)
	}
	return runtime.Unit, nil
}

// splitState factors the amplitudes of a register out of the global state.
// Entries are grouped by the basis pattern of the qubits outside the
// register; the state is separable exactly when every group carries the
// same register pattern with proportional amplitudes, and the shared factor
// normalizes to the register's state.
func splitState(entries []output.StateEntry, bits []int) ([]output.StateEntry, bool) {
	type subEntry struct {
		sub *big.Int
		amp complex128
	}
	groups := make(map[string][]subEntry)
	var refKey string
	for i, e := range entries {
		rest := new(big.Int).Set(e.Basis)
		sub := new(big.Int)
		for j, b := range bits {
			if e.Basis.Bit(b) == 1 {
				sub.SetBit(sub, len(bits)-1-j, 1)
			}
			rest.SetBit(rest, b, 0)
		}
		key := rest.Text(16)
		if i == 0 {
			refKey = key
		}
		groups[key] = append(groups[key], subEntry{sub: sub, amp: e.Amp})
	}
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].sub.Cmp(g[j].sub) < 0 })
	}
	ref := groups[refKey]
	for key, g := range groups {
		if key == refKey {
			continue
		}
		if len(g) != len(ref) {
			return nil, false
		}
		for i := range g {
			if g[i].sub.Cmp(ref[i].sub) != 0 {
				return nil, false
			}
			if cmplx.Abs(g[i].amp*ref[0].amp-ref[i].amp*g[0].amp) > separabilityTolerance {
				return nil, false
			}
		}
	}
	var norm float64
	for _, e := range ref {
		norm += real(e.amp)*real(e.amp) + imag(e.amp)*imag(e.amp)
	}
	scale := complex(math.Sqrt(norm), 0)
	out := make([]output.StateEntry, len(ref))
	for i, e := range ref {
		out[i] = output.StateEntry{Basis: e.sub, Amp: e.amp / scale}
	}
	return out, true
}

//-----------------------------------------------------------------------------
// Argument helpers
//-----------------------------------------------------------------------------

func oneQubit(v runtime.Value, span fir.PackageSpan) (int, *runtime.Error) {
	q := runtime.UnwrapQubit(v)
	if q.Released() {
		return 0, runtime.QubitUsedAfterReleaseError(span)
	}
	return q.ID, nil
}

func twoQubits(arg runtime.Value, span fir.PackageSpan) (int, int, *runtime.Error) {
	first, second := runtime.UnwrapPair(arg)
	q0, err := oneQubit(first, span)
	if err != nil {
		return 0, 0, err
	}
	q1, err := oneQubit(second, span)
	if err != nil {
		return 0, 0, err
	}
	if q0 == q1 {
		return 0, 0, runtime.QubitUniquenessError(span)
	}
	return q0, q1, nil
}

func threeQubits(arg runtime.Value, span fir.PackageSpan) (int, int, int, *runtime.Error) {
	items := runtime.UnwrapTuple(arg)
	if len(items) != 3 {
		panic(fmt.Sprintf("tuple should have 3 items, got %d", len(items)))
	}
	q0, err := oneQubit(items[0], span)
	if err != nil {
		return 0, 0, 0, err
	}
	q1, err := oneQubit(items[1], span)
	if err != nil {
		return 0, 0, 0, err
	}
	q2, err := oneQubit(items[2], span)
	if err != nil {
		return 0, 0, 0, err
	}
	if !uniqueInts([]int{q0, q1, q2}) {
		return 0, 0, 0, runtime.QubitUniquenessError(span)
	}
	return q0, q1, q2, nil
}

// rotationArgs unpacks an (angle, qubit) pair. Use of a released qubit
// outranks a bad angle.
func rotationArgs(arg runtime.Value, span fir.PackageSpan) (float64, int, *runtime.Error) {
	angle, qubit := runtime.UnwrapPair(arg)
	q, err := oneQubit(qubit, span)
	if err != nil {
		return 0, 0, err
	}
	theta, err := finiteAngle(angle, span)
	if err != nil {
		return 0, 0, err
	}
	return theta, q, nil
}

func rotation2Args(arg runtime.Value, span fir.PackageSpan) (float64, int, int, *runtime.Error) {
	items := runtime.UnwrapTuple(arg)
	if len(items) != 3 {
		panic(fmt.Sprintf("tuple should have 3 items, got %d", len(items)))
	}
	q0, err := oneQubit(items[1], span)
	if err != nil {
		return 0, 0, 0, err
	}
	q1, err := oneQubit(items[2], span)
	if err != nil {
		return 0, 0, 0, err
	}
	theta, err := finiteAngle(items[0], span)
	if err != nil {
		return 0, 0, 0, err
	}
	if q0 == q1 {
		return 0, 0, 0, runtime.QubitUniquenessError(span)
	}
	return theta, q0, q1, nil
}

func finiteAngle(v runtime.Value, span fir.PackageSpan) (float64, *runtime.Error) {
	theta := runtime.UnwrapDouble(v)
	if math.IsNaN(theta) || math.IsInf(theta, 0) {
		return 0, runtime.InvalidRotationAngleError(theta, span)
	}
	return theta, nil
}

func controlQubits(v runtime.Value, span fir.PackageSpan) ([]int, *runtime.Error) {
	arr := runtime.UnwrapArray(v)
	ids := make([]int, len(arr.Items))
	for i, item := range arr.Items {
		q, err := oneQubit(item, span)
		if err != nil {
			return nil, err
		}
		ids[i] = q
	}
	return ids, nil
}

func uniqueInts(ids []int) bool {
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}
