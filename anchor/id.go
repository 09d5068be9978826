package anchor

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// stateIDDomain prefixes the hex state root before hashing, so that state and
// block ids never collide.
const stateIDDomain = "smt|"

// ExternalID is the unsigned 256-bit key under which a root is committed to
// the external ledger.
type ExternalID struct {
	v uint256.Int
}

// NewExternalID interprets a hash as a big-endian unsigned integer. Since
// the hash is exactly 256 bits, the reduction mod 2^256 is the identity.
func NewExternalID(h hash.Hash) ExternalID {
	var id ExternalID
	b := [32]byte(h)
	id.v.SetBytes32(b[:])
	return id
}

// ParseExternalID parses the decimal representation of an external id.
func ParseExternalID(s string) (ExternalID, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return ExternalID{}, fmt.Errorf("invalid external id %q", s)
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return ExternalID{}, fmt.Errorf("external id %q exceeds 256 bits", s)
	}
	return ExternalID{v: *v}, nil
}

// DeriveStateID derives the external id of a state root:
// H("smt|" || lower-hex(root)) interpreted as uint256.
func DeriveStateID(root ledger.State) ExternalID {
	return NewExternalID(hash.Sum([]byte(stateIDDomain + root.String())))
}

// DeriveBlockID derives the external id of a ledger block: H(block_id)
// interpreted as uint256.
func DeriveBlockID(blockID string) ExternalID {
	return NewExternalID(hash.Sum([]byte(blockID)))
}

// String returns the decimal representation.
func (id ExternalID) String() string {
	return id.v.ToBig().String()
}

// Big returns a copy of the id as big.Int, as required by ABI packing.
func (id ExternalID) Big() *big.Int {
	return id.v.ToBig()
}

// Bytes32 returns the big-endian 32 byte encoding.
func (id ExternalID) Bytes32() [32]byte {
	return id.v.Bytes32()
}

// Equals compares two external ids.
func (id ExternalID) Equals(other ExternalID) bool {
	return id.v.Eq(&other.v)
}
