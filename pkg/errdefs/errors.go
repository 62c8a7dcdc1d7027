// Package errdefs defines the error kinds shared by the correction packages.
//
// Every kind is a struct type carrying context plus a package-level sentinel,
// so callers can either match the kind with errors.Is or inspect the details
// with errors.As.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrGridMismatch is matched by every *GridMismatchError.
	ErrGridMismatch = errors.New("wavelength grids do not overlap sufficiently")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("invalid input")

	// ErrInvalidCoupling is matched by every *InvalidCouplingError.
	ErrInvalidCoupling = errors.New("invalid coupling matrix")

	// ErrConvergence is matched by the corrector's ConvergenceError.
	ErrConvergence = errors.New("correction did not converge")
)

// GridMismatchError is returned when wavelength ranges do not overlap, or
// overlap over less than the configured minimum span.
type GridMismatchError struct {
	// Lo and Hi bound the intersection that was found. Lo >= Hi means empty.
	Lo, Hi  float64
	MinSpan float64
	Reason  string
}

func (e *GridMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%v: %s", ErrGridMismatch, e.Reason)
	}
	return fmt.Sprintf("%v: intersection [%g, %g] nm, minimum span %g nm", ErrGridMismatch, e.Lo, e.Hi, e.MinSpan)
}

func (e *GridMismatchError) Is(target error) bool { return target == ErrGridMismatch }

// ValidationError describes an input that is rejected before any iteration.
type ValidationError struct {
	// Field names the offending input, e.g. "grid", "eqe[1]" or "coupling".
	Field   string
	Message string
}

// NewValidationError formats a ValidationError.
func NewValidationError(field, format string, a ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, a...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidCouplingError reports a coupling matrix that violates its shape,
// range or triangularity constraints. Row and Col are -1 when the violation
// is not tied to a single entry.
type InvalidCouplingError struct {
	Row, Col int
	Message  string
}

// NewInvalidCouplingError formats an InvalidCouplingError.
func NewInvalidCouplingError(row, col int, format string, a ...any) *InvalidCouplingError {
	return &InvalidCouplingError{Row: row, Col: col, Message: fmt.Sprintf(format, a...)}
}

func (e *InvalidCouplingError) Error() string {
	if e.Row < 0 || e.Col < 0 {
		return fmt.Sprintf("%v: %s", ErrInvalidCoupling, e.Message)
	}
	return fmt.Sprintf("%v: entry (%d, %d): %s", ErrInvalidCoupling, e.Row, e.Col, e.Message)
}

func (e *InvalidCouplingError) Is(target error) bool { return target == ErrInvalidCoupling }

// Kind returns a short machine-readable name for the error kind of err, or
// "internal" when err is none of the kinds above.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrGridMismatch):
		return "GridMismatchError"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrInvalidCoupling):
		return "InvalidCouplingError"
	case errors.Is(err, ErrConvergence):
		return "ConvergenceError"
	default:
		return "internal"
	}
}
