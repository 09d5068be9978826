package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// KeyLen is the size of a state key in bytes. The sparse tree has exactly
// KeyLen*8 levels below its root.
const KeyLen = hash.HashLen

// Key addresses a balance in the state tree. Keys are opaque bit strings:
// bit 0 is the most significant bit of the first byte.
type Key [KeyLen]byte

// KeyOf derives the state key of an account: Key = H(account_id).
func KeyOf(accountID string) Key {
	return Key(hash.Sum([]byte(accountID)))
}

// ToKey converts a byte slice into a Key.
// It returns a ValidationError if the slice has an invalid length.
func ToKey(b []byte) (Key, error) {
	var k Key
	if len(b) != len(k) {
		return k, NewValidationErrorf("key must be %d bytes but got %d bytes", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// String returns the hex encoding of the key
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Balance is a non-negative amount of grams. The zero balance is the
// default value of every key of the state tree.
type Balance uint64

// MaxBalance is the largest representable balance. Its 32 byte encoding has
// the upper 24 bytes zero.
const MaxBalance = Balance(math.MaxUint64)

// Bytes32 returns the fixed-width 32 byte big-endian encoding of the balance,
// which is the input of the leaf hash.
func (b Balance) Bytes32() [32]byte {
	var out [32]byte
	binary.BigEndian.PutUint64(out[24:], uint64(b))
	return out
}

// LeafHash returns H(0x00 || balance32).
func (b Balance) LeafHash() hash.Hash {
	return hash.HashLeaf(b.Bytes32())
}

// State captures a state root of the balance tree
type State hash.Hash

// DummyState is an arbitrary value used in function failure cases,
// although it can represent a valid state.
var DummyState = State(hash.DummyHash)

// String returns the hex encoding of the state
func (sc State) String() string {
	return hash.Hash(sc).String()
}

// Hex returns the "0x" prefixed hex encoding of the state
func (sc State) Hex() string {
	return hash.Hash(sc).Hex()
}

// Equals compares the state to another state
func (sc State) Equals(o State) bool {
	return sc == o
}

// ToState converts a byte slice into a State.
// It returns an error if the slice has an invalid length.
func ToState(stateBytes []byte) (State, error) {
	h, err := hash.ToHash(stateBytes)
	if err != nil {
		return DummyState, NewValidationErrorf("invalid state: %s", err.Error())
	}
	return State(h), nil
}

// StateFromHex parses a hex encoded state root, with or without 0x prefix.
func StateFromHex(s string) (State, error) {
	h, err := hash.FromHex(s)
	if err != nil {
		return DummyState, NewValidationErrorf("invalid state root %q: %s", s, err.Error())
	}
	return State(h), nil
}

// Rules describe how the balance tree is built. They are published next to
// every state root so that third parties can recompute it.
const (
	LeafRule = "H(0x00 || balance32)"
	NodeRule = "H(0x01 || left || right)"
	KeyRule  = "H(account_id)"
	TreeKind = "Sparse Merkle Tree (binary, 256-depth)"
)
