package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - centralized error taxonomy for the estimation engine
var (
	// Input validation errors
	ErrAlignment      = errors.New("covariates, treatment and outcome are not aligned")
	ErrTreatmentValue = errors.New("invalid treatment value")
	ErrInvalidValue   = errors.New("invalid value")

	// State errors
	ErrNotFitted = errors.New("estimator has not been fitted")

	// Collaborator errors
	ErrLearnerInterface = errors.New("learner does not satisfy the required interface")

	// Numeric/assumption failures
	ErrPositivityViolation = errors.New("positivity violation")
	ErrConvergence         = errors.New("estimating equation did not converge")
)

// maxListedDetails caps how many offending indices/values are rendered in messages.
const maxListedDetails = 10

// CausalError carries the taxonomy sentinel together with the offending
// indices or values that caused the failure.
type CausalError struct {
	Kind    error
	Message string
	Indices []string
	Values  []string
	Cause   error
}

func (e *CausalError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Indices) > 0 {
		b.WriteString(" (indices: ")
		b.WriteString(truncateList(e.Indices))
		b.WriteString(")")
	}
	if len(e.Values) > 0 {
		b.WriteString(" (values: ")
		b.WriteString(truncateList(e.Values))
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the sentinel kind and the underlying cause to errors.Is/As.
func (e *CausalError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func truncateList(items []string) string {
	if len(items) <= maxListedDetails {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s, ... (%d more)", strings.Join(items[:maxListedDetails], ", "), len(items)-maxListedDetails)
}

// Error constructors with context
func NewAlignmentError(message string, indices []string) error {
	return &CausalError{Kind: ErrAlignment, Message: message, Indices: indices}
}

func NewTreatmentValueError(message string, values []string) error {
	return &CausalError{Kind: ErrTreatmentValue, Message: message, Values: values}
}

func NewInvalidValueError(message string, values ...string) error {
	return &CausalError{Kind: ErrInvalidValue, Message: message, Values: values}
}

func NewNotFittedError(estimator string) error {
	return &CausalError{Kind: ErrNotFitted, Message: fmt.Sprintf("%s: call Fit before estimating", estimator)}
}

func NewLearnerInterfaceError(learner string, capability string) error {
	return &CausalError{
		Kind:    ErrLearnerInterface,
		Message: fmt.Sprintf("%s lacks capability %q", learner, capability),
	}
}

// WrapLearnerError normalises a failure raised inside a supplied model.
func WrapLearnerError(learner, operation string, cause error) error {
	if cause == nil {
		return nil
	}
	var ce *CausalError
	if errors.As(cause, &ce) {
		return cause
	}
	return &CausalError{
		Kind:    ErrLearnerInterface,
		Message: fmt.Sprintf("%s failed during %s", learner, operation),
		Cause:   cause,
	}
}

func NewPositivityViolationError(message string, values []string) error {
	return &CausalError{Kind: ErrPositivityViolation, Message: message, Values: values}
}

func NewConvergenceError(message string, iterations int, residual float64) error {
	return &CausalError{
		Kind:    ErrConvergence,
		Message: message,
		Values:  []string{fmt.Sprintf("iterations=%d", iterations), fmt.Sprintf("residual=%.3g", residual)},
	}
}

// Error checking helpers
func IsValidationError(err error) bool {
	return errors.Is(err, ErrAlignment) ||
		errors.Is(err, ErrTreatmentValue) ||
		errors.Is(err, ErrInvalidValue)
}

func IsFatalAssumptionError(err error) bool {
	return errors.Is(err, ErrPositivityViolation) ||
		errors.Is(err, ErrConvergence)
}
