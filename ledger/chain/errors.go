package chain

import (
	"errors"
	"fmt"
)

// ErrNothingToClose is returned by CloseBlock when no transaction is pending.
var ErrNothingToClose = errors.New("no pending transactions to close")

// ErrPending is returned when proving a transaction that is not sealed yet.
var ErrPending = errors.New("transaction is not sealed in a block")

// ErrChainBroken is wrapped by every IntegrityError.
var ErrChainBroken = errors.New("chain integrity violated")

// IntegrityError describes the first inconsistency found by VerifyChain.
type IntegrityError struct {
	Height  uint64
	BlockID string
	err     error
}

func newIntegrityErrorf(height uint64, blockID string, msg string, args ...interface{}) *IntegrityError {
	return &IntegrityError{Height: height, BlockID: blockID, err: fmt.Errorf(msg, args...)}
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("%s at height %d (block %s): %s", ErrChainBroken.Error(), e.Height, e.BlockID, e.err.Error())
}

// Is returns true for ErrChainBroken
func (e IntegrityError) Is(other error) bool {
	return other == ErrChainBroken
}

// Unwrap unwraps the error
func (e IntegrityError) Unwrap() error {
	return e.err
}

// IsIntegrityError returns whether err is (or wraps) an IntegrityError
func IsIntegrityError(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}
