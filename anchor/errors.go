package anchor

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrUnderpriced is returned by the external ledger when the offered fees
	// are too low, either for inclusion or to replace a pending transaction
	// with the same nonce.
	ErrUnderpriced = errors.New("transaction underpriced")

	// ErrSequenceConflict is returned when the nonce used by a submission was
	// already consumed by another transaction of the same identity.
	ErrSequenceConflict = errors.New("sequence number conflict")

	// ErrAlreadyAnchored is returned when the external id already holds a root.
	// The submitter treats it as success.
	ErrAlreadyAnchored = errors.New("already anchored")

	// ErrConnectivity is returned when the external ledger could not be reached.
	ErrConnectivity = errors.New("external ledger unavailable")
)

// ExhaustedError is returned when a submission ran out of attempts while the
// external ledger kept rejecting it with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
	errs     *multierror.Error
}

func newExhaustedError(attempts int, errs *multierror.Error) *ExhaustedError {
	var last error
	if errs != nil && len(errs.Errors) > 0 {
		last = errs.Errors[len(errs.Errors)-1]
	}
	return &ExhaustedError{Attempts: attempts, Last: last, errs: errs}
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("anchor submission exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the cause of the last attempt, so that errors.Is can inspect it.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Errors returns the errors of every failed attempt, in order.
func (e *ExhaustedError) Errors() []error {
	if e.errs == nil {
		return nil
	}
	return e.errs.WrappedErrors()
}

// IsExhaustedError returns true if err is (or wraps) an ExhaustedError.
func IsExhaustedError(err error) bool {
	var target *ExhaustedError
	return errors.As(err, &target)
}

// isRetryable reports whether a submission error leaves room for another attempt.
func isRetryable(err error) bool {
	return errors.Is(err, ErrUnderpriced) ||
		errors.Is(err, ErrSequenceConflict) ||
		errors.Is(err, ErrConnectivity)
}
