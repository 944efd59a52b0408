package backend

import (
	"math"
	"math/big"
	"math/rand"
	"sort"
	"time"

	"quill/interpreter-go/pkg/output"
	"quill/interpreter-go/pkg/runtime"
)

// qubitState is the tracked state of one qubit. Coin states are the two H
// images of the basis states; phases beyond the coin sign are not tracked.
type qubitState int

const (
	stateZero qubitState = iota
	stateOne
	statePlus
	stateMinus
)

// BasisSim tracks computational-basis occupancy: X/Cx/Ccx/Swap flip bits, H
// turns a basis state into a coin, and measurement collapses coins with the
// seeded generator. Control qubits collapse before a controlled gate applies.
// It supports classical-control programs and small-register state dumps;
// anything needing real amplitude evolution belongs in an external backend.
type BasisSim struct {
	Unsupported

	qubits map[int]qubitState
	next   int
	free   []int
	rng    *rand.Rand
}

var _ Backend = (*BasisSim)(nil)

func NewBasisSim() *BasisSim {
	return &BasisSim{
		qubits: make(map[int]qubitState),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

//-----------------------------------------------------------------------------
// Gates
//-----------------------------------------------------------------------------

func (s *BasisSim) X(q int) {
	switch s.qubits[q] {
	case stateZero:
		s.qubits[q] = stateOne
	case stateOne:
		s.qubits[q] = stateZero
	}
	// Coin states are X eigenstates up to phase.
}

func (s *BasisSim) H(q int) {
	switch s.qubits[q] {
	case stateZero:
		s.qubits[q] = statePlus
	case statePlus:
		s.qubits[q] = stateZero
	case stateOne:
		s.qubits[q] = stateMinus
	case stateMinus:
		s.qubits[q] = stateOne
	}
}

func (s *BasisSim) Cx(ctl, q int) {
	if s.resolve(ctl) {
		s.X(q)
	}
}

func (s *BasisSim) Ccx(ctl0, ctl1, q int) {
	c0 := s.resolve(ctl0)
	c1 := s.resolve(ctl1)
	if c0 && c1 {
		s.X(q)
	}
}

func (s *BasisSim) Swap(q0, q1 int) {
	s.qubits[q0], s.qubits[q1] = s.qubits[q1], s.qubits[q0]
}

func (s *BasisSim) M(q int) runtime.ResultValue {
	return runtime.ResultBool(s.resolve(q))
}

func (s *BasisSim) MResetZ(q int) runtime.ResultValue {
	res := s.resolve(q)
	s.qubits[q] = stateZero
	return runtime.ResultBool(res)
}

func (s *BasisSim) Reset(q int) {
	s.qubits[q] = stateZero
}

// resolve collapses a coin state and reports whether the qubit reads one.
func (s *BasisSim) resolve(q int) bool {
	switch s.qubits[q] {
	case stateZero:
		return false
	case stateOne:
		return true
	default:
		if s.rng.Intn(2) == 1 {
			s.qubits[q] = stateOne
			return true
		}
		s.qubits[q] = stateZero
		return false
	}
}

//-----------------------------------------------------------------------------
// Service functions
//-----------------------------------------------------------------------------

func (s *BasisSim) QubitAllocate() int {
	if n := len(s.free); n > 0 {
		q := s.free[n-1]
		s.free = s.free[:n-1]
		s.qubits[q] = stateZero
		return q
	}
	q := s.next
	s.next++
	s.qubits[q] = stateZero
	return q
}

func (s *BasisSim) QubitRelease(q int) bool {
	wasZero := s.qubits[q] == stateZero
	delete(s.qubits, q)
	s.free = append(s.free, q)
	return wasZero
}

func (s *BasisSim) QubitSwapID(q0, q1 int) {
	s.Swap(q0, q1)
}

func (s *BasisSim) QubitIsZero(q int) bool {
	return s.qubits[q] == stateZero
}

// QubitPosition is the rank of q among live qubit ids, which is the position
// CaptureQuantumState assigns it in the basis layout.
func (s *BasisSim) QubitPosition(q int) int {
	pos := 0
	for id := range s.qubits {
		if id < q {
			pos++
		}
	}
	return pos
}

// CaptureQuantumState expands every coin qubit into its two branches, so a
// register of product states dumps with exact amplitudes: each coin scales
// by 1/sqrt(2) and a minus coin negates its one-branch.
func (s *BasisSim) CaptureQuantumState() ([]output.StateEntry, int) {
	ids := make([]int, 0, len(s.qubits))
	for q := range s.qubits {
		ids = append(ids, q)
	}
	sort.Ints(ids)
	count := len(ids)
	if count == 0 {
		return nil, 0
	}

	base := new(big.Int)
	amp := 1.0
	var coinBits []int
	var coinMinus []bool
	for pos, q := range ids {
		bit := count - 1 - pos
		switch s.qubits[q] {
		case stateOne:
			base.SetBit(base, bit, 1)
		case statePlus, stateMinus:
			coinBits = append(coinBits, bit)
			coinMinus = append(coinMinus, s.qubits[q] == stateMinus)
			amp /= math.Sqrt2
		}
	}

	entries := make([]output.StateEntry, 0, 1<<len(coinBits))
	for mask := 0; mask < 1<<len(coinBits); mask++ {
		basis := new(big.Int).Set(base)
		sign := 1.0
		for i, bit := range coinBits {
			if mask&(1<<i) != 0 {
				basis.SetBit(basis, bit, 1)
				if coinMinus[i] {
					sign = -sign
				}
			}
		}
		entries = append(entries, output.StateEntry{Basis: basis, Amp: complex(sign*amp, 0)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Basis.Cmp(entries[j].Basis) < 0
	})
	return entries, count
}

func (s *BasisSim) SetSeed(seed *uint64) {
	if seed == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		return
	}
	s.rng = rand.New(rand.NewSource(int64(*seed)))
}
