// Package output carries program output (messages and quantum state dumps)
// from intrinsics to whoever is driving the interpreter.
package output

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// StateEntry is one basis state with a nonzero amplitude. Qubit i occupies
// bit qubitCount-1-i of the basis, so qubit 0 renders leftmost.
type StateEntry struct {
	Basis *big.Int
	Amp   complex128
}

// Receiver accepts program output. Implementations report failures as plain
// errors; the intrinsic layer maps them to output-failure evaluation errors.
type Receiver interface {
	State(entries []StateEntry, qubitCount int) error
	Message(msg string) error
}

// GenericReceiver renders output as plain text.
type GenericReceiver struct {
	w io.Writer
}

func NewGenericReceiver(w io.Writer) *GenericReceiver {
	return &GenericReceiver{w: w}
}

func (r *GenericReceiver) State(entries []StateEntry, qubitCount int) error {
	if _, err := fmt.Fprintln(r.w, "STATE:"); err != nil {
		return err
	}
	if qubitCount == 0 {
		_, err := fmt.Fprintln(r.w, "No qubits allocated")
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(r.w, "|%s⟩: %s\n", FormatBasis(e.Basis, qubitCount), FormatAmplitude(e.Amp)); err != nil {
			return err
		}
	}
	return nil
}

func (r *GenericReceiver) Message(msg string) error {
	_, err := fmt.Fprintln(r.w, msg)
	return err
}

// FormatBasis renders the basis bit string with qubit 0 leftmost.
func FormatBasis(basis *big.Int, qubitCount int) string {
	var sb strings.Builder
	for i := qubitCount - 1; i >= 0; i-- {
		if basis.Bit(i) == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// FormatAmplitude renders a complex amplitude with four decimal places, the
// italic 𝑖, and the typographic minus sign.
func FormatAmplitude(a complex128) string {
	sign := "+"
	if imag(a) < 0 {
		sign = "−"
	}
	return fmt.Sprintf("%s%s%s𝑖", signedFixed(real(a)), sign, strconv.FormatFloat(math.Abs(imag(a)), 'f', 4, 64))
}

func signedFixed(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 4, 64), "-", "−", 1)
}
