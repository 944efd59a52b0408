package runtime

import (
	"fmt"

	"quill/interpreter-go/pkg/fir"
)

// ErrorKind identifies the failure category of an evaluation error.
type ErrorKind int

const (
	ErrArrayTooLarge ErrorKind = iota
	ErrInvalidArrayLength
	ErrDivZero
	ErrEmptyRange
	ErrInvalidIndex
	ErrIntTooLarge
	ErrIndexOutOfRange
	ErrIntrinsicFail
	ErrInvalidRotationAngle
	ErrInvalidNegativeInt
	ErrOutputFail
	ErrQubitUniqueness
	ErrQubitsNotSeparable
	ErrQubitUsedAfterRelease
	ErrQubitDoubleRelease
	ErrRangeStepZero
	ErrReleasedQubitNotZero
	ErrUnboundName
	ErrUnknownIntrinsic
	ErrUnsupportedIntrinsicType
	ErrUserFail
)

// Error is a failed evaluation, locating the failure at a source span.
// Payload fields are meaningful per kind; unused ones stay zero.
type Error struct {
	Kind    ErrorKind
	Span    fir.PackageSpan
	Index   int64
	Name    string
	Message string
	Angle   float64
	Qubit   int
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrArrayTooLarge:
		return "array too large"
	case ErrInvalidArrayLength:
		return fmt.Sprintf("invalid array length: %d", e.Index)
	case ErrDivZero:
		return "division by zero"
	case ErrEmptyRange:
		return "empty range"
	case ErrInvalidIndex:
		return fmt.Sprintf("invalid index: %d", e.Index)
	case ErrIntTooLarge:
		return fmt.Sprintf("integer too large for operation: %d", e.Index)
	case ErrIndexOutOfRange:
		return fmt.Sprintf("index out of range: %d", e.Index)
	case ErrIntrinsicFail:
		return fmt.Sprintf("intrinsic callable `%s` failed: %s", e.Name, e.Message)
	case ErrInvalidRotationAngle:
		return fmt.Sprintf("invalid rotation angle: %s", FormatDouble(e.Angle))
	case ErrInvalidNegativeInt:
		return fmt.Sprintf("negative integers cannot be used here: %d", e.Index)
	case ErrOutputFail:
		return "output failure"
	case ErrQubitUniqueness:
		return "qubits in invocation are not unique"
	case ErrQubitsNotSeparable:
		return "qubits are not separable"
	case ErrQubitUsedAfterRelease:
		return "qubit used after release"
	case ErrQubitDoubleRelease:
		return "qubit double release"
	case ErrRangeStepZero:
		return "range with step size of zero"
	case ErrReleasedQubitNotZero:
		return fmt.Sprintf("Qubit%d released while not in |0⟩ state", e.Qubit)
	case ErrUnboundName:
		return "name is not bound"
	case ErrUnknownIntrinsic:
		return fmt.Sprintf("unknown intrinsic `%s`", e.Name)
	case ErrUnsupportedIntrinsicType:
		return fmt.Sprintf("unsupported return type for intrinsic `%s`", e.Name)
	case ErrUserFail:
		return fmt.Sprintf("program failed: %s", e.Message)
	default:
		return fmt.Sprintf("unknown error kind %d", int(e.Kind))
	}
}

func ArrayTooLargeError(span fir.PackageSpan) *Error {
	return &Error{Kind: ErrArrayTooLarge, Span: span}
}

func InvalidArrayLengthError(length int64, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrInvalidArrayLength, Index: length, Span: span}
}

func DivZeroError(span fir.PackageSpan) *Error {
	return &Error{Kind: ErrDivZero, Span: span}
}

func EmptyRangeError(span fir.PackageSpan) *Error {
	return &Error{Kind: ErrEmptyRange, Span: span}
}

func InvalidIndexError(index int64, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrInvalidIndex, Index: index, Span: span}
}

func IntTooLargeError(value int64, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrIntTooLarge, Index: value, Span: span}
}

func IndexOutOfRangeError(index int64, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrIndexOutOfRange, Index: index, Span: span}
}

func IntrinsicFailError(name, message string, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrIntrinsicFail, Name: name, Message: message, Span: span}
}

func InvalidRotationAngleError(angle float64, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrInvalidRotationAngle, Angle: angle, Span: span}
}

func InvalidNegativeIntError(value int64, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrInvalidNegativeInt, Index: value, Span: span}
}

func OutputFailError(span fir.PackageSpan) *Error {
	return &Error{Kind: ErrOutputFail, Span: span}
}

func QubitUniquenessError(span fir.PackageSpan) *Error {
	return &Error{Kind: ErrQubitUniqueness, Span: span}
}

func QubitsNotSeparableError(span fir.PackageSpan) *Error {
	return &Error{Kind: ErrQubitsNotSeparable, Span: span}
}

func QubitUsedAfterReleaseError(span fir.PackageSpan) *Error {
	return &Error{Kind: ErrQubitUsedAfterRelease, Span: span}
}

func QubitDoubleReleaseError(span fir.PackageSpan) *Error {
	return &Error{Kind: ErrQubitDoubleRelease, Span: span}
}

func RangeStepZeroError(span fir.PackageSpan) *Error {
	return &Error{Kind: ErrRangeStepZero, Span: span}
}

func ReleasedQubitNotZeroError(qubit int, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrReleasedQubitNotZero, Qubit: qubit, Span: span}
}

func UnboundNameError(span fir.PackageSpan) *Error {
	return &Error{Kind: ErrUnboundName, Span: span}
}

func UnknownIntrinsicError(name string, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrUnknownIntrinsic, Name: name, Span: span}
}

func UnsupportedIntrinsicTypeError(name string, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrUnsupportedIntrinsicType, Name: name, Span: span}
}

func UserFailError(message string, span fir.PackageSpan) *Error {
	return &Error{Kind: ErrUserFail, Message: message, Span: span}
}
