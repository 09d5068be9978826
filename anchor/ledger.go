package anchor

import (
	"context"

	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// ExternalLedger is the append-once ledger that roots are committed to.
//
// Implementations classify failures into ErrUnderpriced, ErrSequenceConflict,
// ErrAlreadyAnchored and ErrConnectivity, wrapped with context. Any other
// error is terminal for a submission.
type ExternalLedger interface {
	// PendingNonce returns the next sequence number of the sending identity,
	// counting transactions that are not yet included.
	PendingNonce(ctx context.Context) (uint64, error)

	// SuggestFees returns the fees the external ledger currently suggests.
	SuggestFees(ctx context.Context) (Fees, error)

	// SendAnchor signs and broadcasts anchor(id, root) with the given nonce
	// and fees. It returns the external transaction reference.
	SendAnchor(ctx context.Context, nonce uint64, fees Fees, id ExternalID, root hash.Hash) (string, error)

	// WaitConfirmed blocks until the referenced transaction is included. A
	// reverted transaction returns ErrAlreadyAnchored if the slot was taken.
	WaitConfirmed(ctx context.Context, txRef string) error

	// ReadRoot returns the root stored under id, or hash.EmptyHash when the
	// slot is unset.
	ReadRoot(ctx context.Context, id ExternalID) (hash.Hash, error)

	// AnchorRef returns the reference of the transaction that set the slot
	// of id, or the empty string if no such transaction is found.
	AnchorRef(ctx context.Context, id ExternalID) (string, error)
}

// Identity describes where anchors are sent, for receipts.
type Identity interface {
	// Chain returns the identifier of the external ledger.
	Chain() string
	// Contract returns the address of the anchor contract.
	Contract() string
}
