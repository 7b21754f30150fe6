package domain

import (
	"errors"
	"fmt"
)

// Caller-input error kinds. Use errors.Is to classify an inference error.
var (
	// ErrValidation marks out-of-domain caller input: unknown road, unrecognised
	// nature, hour or day out of range.
	ErrValidation = errors.New("validation error")
	// ErrType marks caller input of the wrong type (e.g. a float day of week).
	ErrType = errors.New("type error")
)

var (
	// ErrModelMismatch means a persisted record cannot be interpreted with the
	// current candidate set (unknown index, wrong parameter count, or a record
	// written by a larger set).
	ErrModelMismatch = errors.New("model does not match candidate set")
	// ErrNonFinitePrediction means a model evaluated to NaN or ±Inf.
	ErrNonFinitePrediction = errors.New("non-finite prediction")

	ErrFitNotConverged = errors.New("fit did not converge")
	ErrEmptyData       = errors.New("no training or validation data")
	ErrStoreWrite      = errors.New("store write failed")
)

// InputError describes a rejected caller input.
type InputError struct {
	Kind   error // ErrValidation or ErrType
	Field  string
	Value  any
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s %v: %s", e.Kind, e.Field, e.Value, e.Reason)
}

func (e *InputError) Unwrap() error { return e.Kind }

func validationError(field string, value any, reason string) error {
	return &InputError{Kind: ErrValidation, Field: field, Value: value, Reason: reason}
}

func typeError(field string, value any, reason string) error {
	return &InputError{Kind: ErrType, Field: field, Value: value, Reason: reason}
}

// NewValidationError builds an ErrValidation input error.
func NewValidationError(field string, value any, reason string) error {
	return validationError(field, value, reason)
}
