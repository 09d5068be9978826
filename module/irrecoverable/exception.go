package irrecoverable

import (
	"errors"
	"fmt"
)

// exception is an error that the caller can not handle: the storage layer
// returns it for undecodable values and failed writes, which indicate a
// corrupted database or a bug rather than a user input.
type exception struct {
	err error
}

func (e exception) Error() string {
	return e.err.Error()
}

func (e exception) Unwrap() error {
	return e.err
}

// NewExceptionf returns an exception wrapping the formatted error.
func NewExceptionf(msg string, args ...interface{}) error {
	return NewException(fmt.Errorf(msg, args...))
}

// NewException wraps err as an exception.
func NewException(err error) error {
	return exception{err: err}
}

// IsException returns true if err is, or wraps, an exception.
func IsException(err error) bool {
	var e exception
	return errors.As(err, &e)
}
