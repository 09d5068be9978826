package ledger

import (
	"errors"
	"fmt"
)

// ErrMalformedInput is the sentinel wrapped by every ValidationError. Malformed
// shapes (wrong byte lengths, undecodable encodings) are the only fatal input
// condition of the state and block trees.
var ErrMalformedInput = errors.New("malformed input")

// ValidationError is returned when an input has the wrong shape
type ValidationError struct {
	err error
}

// NewValidationErrorf constructs a new ValidationError
func NewValidationErrorf(msg string, args ...interface{}) *ValidationError {
	return &ValidationError{err: fmt.Errorf(msg, args...)}
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedInput.Error(), e.err.Error())
}

// Is returns true if the other error is a ValidationError or ErrMalformedInput
func (e ValidationError) Is(other error) bool {
	if other == ErrMalformedInput {
		return true
	}
	_, ok := other.(ValidationError)
	if ok {
		return true
	}
	_, ok = other.(*ValidationError)
	return ok
}

// Unwrap unwraps the error
func (e ValidationError) Unwrap() error {
	return e.err
}

// IsValidationError returns whether err is (or wraps) a ValidationError
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}
