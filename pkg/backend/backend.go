// Package backend defines the operation-invocation interface quantum
// intrinsics call into, plus a small computational-basis simulator. The
// interpreter is agnostic to how a backend represents or evolves state.
package backend

import (
	"quill/interpreter-go/pkg/output"
	"quill/interpreter-go/pkg/runtime"
)

// Backend is implemented by quantum simulators and hardware bridges. Gate
// methods mutate state by qubit id; service functions (allocation, state
// capture, zero checks) do not count as operations.
type Backend interface {
	Ccx(ctl0, ctl1, q int)
	Cx(ctl, q int)
	Cy(ctl, q int)
	Cz(ctl, q int)
	H(q int)
	M(q int) runtime.ResultValue
	MResetZ(q int) runtime.ResultValue
	Reset(q int)
	Rx(theta float64, q int)
	Rxx(theta float64, q0, q1 int)
	Ry(theta float64, q int)
	Ryy(theta float64, q0, q1 int)
	Rz(theta float64, q int)
	Rzz(theta float64, q0, q1 int)
	S(q int)
	Sadj(q int)
	Sx(q int)
	Swap(q0, q1 int)
	T(q int)
	Tadj(q int)
	X(q int)
	Y(q int)
	Z(q int)

	QubitAllocate() int
	// QubitRelease reports whether the qubit was in the ground state when
	// released.
	QubitRelease(q int) bool
	QubitSwapID(q0, q1 int)
	CaptureQuantumState() ([]output.StateEntry, int)
	QubitIsZero(q int) bool
	// CustomIntrinsic handles backend-specific intrinsics. handled reports
	// whether the name was recognized at all.
	CustomIntrinsic(name string, arg runtime.Value) (result runtime.Value, handled bool, err error)
	SetSeed(seed *uint64)
}

// Unsupported provides panicking defaults so simulators embed it and
// implement only the operations they support.
type Unsupported struct{}

func (Unsupported) Ccx(_, _, _ int)          { panic("not supported: ccx gate") }
func (Unsupported) Cx(_, _ int)              { panic("not supported: cx gate") }
func (Unsupported) Cy(_, _ int)              { panic("not supported: cy gate") }
func (Unsupported) Cz(_, _ int)              { panic("not supported: cz gate") }
func (Unsupported) H(_ int)                  { panic("not supported: h gate") }
func (Unsupported) M(_ int) runtime.ResultValue {
	panic("not supported: m operation")
}
func (Unsupported) MResetZ(_ int) runtime.ResultValue {
	panic("not supported: mresetz operation")
}
func (Unsupported) Reset(_ int)              { panic("not supported: reset gate") }
func (Unsupported) Rx(_ float64, _ int)      { panic("not supported: rx gate") }
func (Unsupported) Rxx(_ float64, _, _ int)  { panic("not supported: rxx gate") }
func (Unsupported) Ry(_ float64, _ int)      { panic("not supported: ry gate") }
func (Unsupported) Ryy(_ float64, _, _ int)  { panic("not supported: ryy gate") }
func (Unsupported) Rz(_ float64, _ int)      { panic("not supported: rz gate") }
func (Unsupported) Rzz(_ float64, _, _ int)  { panic("not supported: rzz gate") }
func (Unsupported) S(_ int)                  { panic("not supported: s gate") }
func (Unsupported) Sadj(_ int)               { panic("not supported: sadj gate") }
func (Unsupported) Sx(_ int)                 { panic("not supported: sx gate") }
func (Unsupported) Swap(_, _ int)            { panic("not supported: swap gate") }
func (Unsupported) T(_ int)                  { panic("not supported: t gate") }
func (Unsupported) Tadj(_ int)               { panic("not supported: tadj gate") }
func (Unsupported) X(_ int)                  { panic("not supported: x gate") }
func (Unsupported) Y(_ int)                  { panic("not supported: y gate") }
func (Unsupported) Z(_ int)                  { panic("not supported: z gate") }

func (Unsupported) QubitAllocate() int {
	panic("not supported: qubit allocate operation")
}

func (Unsupported) QubitRelease(_ int) bool {
	panic("not supported: qubit release operation")
}

func (Unsupported) QubitSwapID(_, _ int) {
	panic("not supported: qubit swap id operation")
}

func (Unsupported) CaptureQuantumState() ([]output.StateEntry, int) {
	panic("not supported: capture quantum state operation")
}

func (Unsupported) QubitIsZero(_ int) bool {
	panic("not supported: qubit is zero operation")
}

// CustomIntrinsic reports every name as unrecognized.
func (Unsupported) CustomIntrinsic(string, runtime.Value) (runtime.Value, bool, error) {
	return nil, false, nil
}

func (Unsupported) SetSeed(*uint64) {}
