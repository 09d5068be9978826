package registry

import (
	"time"

	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// AnchorKind tells which root an anchor record commits.
type AnchorKind string

const (
	AnchorKindState AnchorKind = "state"
	AnchorKindBlock AnchorKind = "block"
)

// AnchorRecord is the local receipt of a root committed to the external ledger.
type AnchorRecord struct {
	Kind AnchorKind `cbor:"1,keyasint"`
	// InternalID is the block id, or the hex state root for state anchors
	InternalID string `cbor:"2,keyasint"`
	// ExternalID is the decimal uint256 key in the external ledger
	ExternalID string    `cbor:"3,keyasint"`
	Root       hash.Hash `cbor:"4,keyasint"`
	// TxHash is the external transaction reference. It may be empty when the
	// root was found already anchored by an unknown transaction.
	TxHash          string    `cbor:"5,keyasint,omitempty"`
	AlreadyAnchored bool      `cbor:"6,keyasint"`
	Confirmed       bool      `cbor:"7,keyasint"`
	Contract        string    `cbor:"8,keyasint,omitempty"`
	Chain           string    `cbor:"9,keyasint,omitempty"`
	CreatedAt       time.Time `cbor:"10,keyasint"`
}
