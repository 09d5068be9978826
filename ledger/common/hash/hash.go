package hash

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/minio/sha256-simd"
)

// HashLen is the ledger default output hash length in bytes
const HashLen = 32

// Algorithm names the hash function used by every structure of the ledger.
// It is reported verbatim in proof and block views.
const Algorithm = "sha256"

const (
	leafPrefix = byte(0x00)
	nodePrefix = byte(0x01)
)

// Hash is the hash type used in all ledger
type Hash [HashLen]byte

// DummyHash is an arbitrary hash value, used in function errors.
// DummyHash represents a valid hash value.
var DummyHash Hash

// EmptyHash is the all-zero hash. The external anchor contract reports
// unset slots with this value.
var EmptyHash Hash

// Sum returns the plain SHA-256 digest of the concatenation of the given byte slices.
func Sum(data ...[]byte) Hash {
	hasher := sha256.New()
	for _, d := range data {
		_, _ = hasher.Write(d)
	}
	var h Hash
	hasher.Sum(h[:0])
	return h
}

// HashLeaf returns the hash value for sparse tree leaf nodes: H(0x00 || value32).
//
// value must be the fixed-width 32 byte encoding of the leaf value.
func HashLeaf(value [HashLen]byte) Hash {
	return Sum([]byte{leafPrefix}, value[:])
}

// HashInterNode returns the hash value for sparse tree intermediate nodes: H(0x01 || left || right).
func HashInterNode(left Hash, right Hash) Hash {
	return Sum([]byte{nodePrefix}, left[:], right[:])
}

// SumHex returns the SHA-256 of the ASCII concatenation of the lowercase,
// unprefixed hex forms of the given hashes.
func SumHex(hashes ...Hash) Hash {
	var b strings.Builder
	b.Grow(len(hashes) * HashLen * 2)
	for _, h := range hashes {
		b.WriteString(h.String())
	}
	return Sum([]byte(b.String()))
}

// HashPair returns H(hex(left) || hex(right)), the node rule of the block
// transaction tree. Operands are hashed as 64 character hex strings, not raw bytes.
func HashPair(left Hash, right Hash) Hash {
	return SumHex(left, right)
}

// ToHash converts a byte slice into a Hash.
// It returns an error if the slice has an invalid length.
func ToHash(bytes []byte) (Hash, error) {
	var h Hash
	if len(bytes) != len(h) {
		return DummyHash, fmt.Errorf("expecting %d bytes but got %d bytes", len(h), len(bytes))
	}
	copy(h[:], bytes)
	return h, nil
}

// FromHex parses a hex encoded hash, with or without the 0x prefix.
func FromHex(s string) (Hash, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*HashLen {
		return DummyHash, fmt.Errorf("expecting %d hex characters but got %d", 2*HashLen, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return DummyHash, fmt.Errorf("could not decode hex hash: %w", err)
	}
	return ToHash(b)
}

// String returns the lower-case hex encoding of the hash without prefix.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Hex returns the "0x" prefixed lower-case hex encoding of the hash.
func (h Hash) Hex() string {
	return "0x" + h.String()
}

// IsEmpty reports whether the hash is all zeros.
func (h Hash) IsEmpty() bool {
	return h == EmptyHash
}
