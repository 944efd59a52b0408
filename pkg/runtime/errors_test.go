package runtime

import (
	"errors"
	"fmt"
	"testing"

	"quill/interpreter-go/pkg/fir"
)

func TestErrors_Messages(t *testing.T) {
	span := fir.PackageSpan{Package: 1, Span: fir.Span{Lo: 10, Hi: 20}}
	cases := []struct {
		err  *Error
		want string
	}{
		{ArrayTooLargeError(span), "array too large"},
		{InvalidArrayLengthError(-3, span), "invalid array length: -3"},
		{DivZeroError(span), "division by zero"},
		{EmptyRangeError(span), "empty range"},
		{InvalidIndexError(-1, span), "invalid index: -1"},
		{IntTooLargeError(99, span), "integer too large for operation: 99"},
		{IndexOutOfRangeError(12, span), "index out of range: 12"},
		{IntrinsicFailError("Foo", "boom", span), "intrinsic callable `Foo` failed: boom"},
		{InvalidRotationAngleError(2.5, span), "invalid rotation angle: 2.5"},
		{InvalidNegativeIntError(-7, span), "negative integers cannot be used here: -7"},
		{OutputFailError(span), "output failure"},
		{QubitUniquenessError(span), "qubits in invocation are not unique"},
		{QubitsNotSeparableError(span), "qubits are not separable"},
		{QubitUsedAfterReleaseError(span), "qubit used after release"},
		{QubitDoubleReleaseError(span), "qubit double release"},
		{RangeStepZeroError(span), "range with step size of zero"},
		{ReleasedQubitNotZeroError(3, span), "Qubit3 released while not in |0⟩ state"},
		{UnboundNameError(span), "name is not bound"},
		{UnknownIntrinsicError("Bar", span), "unknown intrinsic `Bar`"},
		{UnsupportedIntrinsicTypeError("Baz", span), "unsupported return type for intrinsic `Baz`"},
		{UserFailError("because", span), "program failed: because"},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Fatalf("message mismatch: got %q want %q", got, c.want)
		}
		if c.err.Span != span {
			t.Fatalf("%q lost its span: %+v", c.want, c.err.Span)
		}
	}
}

func TestErrors_MatchThroughWrapping(t *testing.T) {
	span := fir.PackageSpan{Package: 0, Span: fir.Span{Lo: 2, Hi: 4}}
	wrapped := fmt.Errorf("shot 3: %w", UserFailError("nope", span))

	var evalErr *Error
	if !errors.As(wrapped, &evalErr) {
		t.Fatal("wrapped evaluation error should match errors.As")
	}
	if evalErr.Kind != ErrUserFail || evalErr.Message != "nope" {
		t.Fatalf("unexpected unwrapped error: %+v", evalErr)
	}
}
