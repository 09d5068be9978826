package ethereum

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker"

	"github.com/h2registry/h2-registry/anchor"
)

// ErrReverted is returned when an anchor transaction was included but
// reverted for another reason than an occupied slot.
var ErrReverted = errors.New("anchor transaction reverted")

// node error messages, lower case
var (
	alreadyKnownMessages = []string{
		"already known",
		"known transaction",
	}
	sequenceMessages = []string{
		"nonce too low",
		"nonce has already been used",
	}
	underpricedMessages = []string{
		"replacement transaction underpriced",
		"transaction underpriced",
		"max fee per gas less than block base fee",
		"fee cap less than block base fee",
		"gas price too low",
	}
	alreadyAnchoredMessages = []string{
		"already anchored",
	}
	connectivityMessages = []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"unexpected eof",
		"too many requests",
		"service unavailable",
		"bad gateway",
	}
)

// isAlreadyKnown reports whether the node already holds the exact same
// signed transaction in its pool.
func isAlreadyKnown(err error) bool {
	return err != nil && containsAny(strings.ToLower(err.Error()), alreadyKnownMessages)
}

// classify maps a JSON-RPC failure into the anchor failure taxonomy. Errors it
// does not recognise are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, sequenceMessages):
		return fmt.Errorf("%w: %w", anchor.ErrSequenceConflict, err)
	case containsAny(msg, underpricedMessages):
		return fmt.Errorf("%w: %w", anchor.ErrUnderpriced, err)
	case containsAny(msg, alreadyAnchoredMessages):
		return fmt.Errorf("%w: %w", anchor.ErrAlreadyAnchored, err)
	case isConnectivity(err, msg):
		return fmt.Errorf("%w: %w", anchor.ErrConnectivity, err)
	}
	return err
}

func isConnectivity(err error, msg string) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	// the caller's own deadline is not an outage
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError
	}
	// a flattened io.EOF from the transport, e.g. `Post "http://node": EOF`
	if strings.HasSuffix(msg, ": eof") {
		return true
	}
	return containsAny(msg, connectivityMessages)
}

func containsAny(msg string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
