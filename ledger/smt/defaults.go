package smt

import (
	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// Depth is the number of levels below the root. Leaves live at depth 256,
// the root at depth 0.
const Depth = ledger.KeyLen * 8

// defaultHashes[d] is the hash of an entirely empty subtree rooted at depth d.
var defaultHashes [Depth + 1]hash.Hash

func init() {
	defaultHashes[Depth] = ledger.Balance(0).LeafHash()
	for d := Depth - 1; d >= 0; d-- {
		defaultHashes[d] = hash.HashInterNode(defaultHashes[d+1], defaultHashes[d+1])
	}
}

// DefaultHash returns the hash of an empty subtree rooted at the given depth.
// The function panics if depth is not in [0, Depth].
func DefaultHash(depth int) hash.Hash {
	return defaultHashes[depth]
}

// EmptyRoot is the state root of a tree holding no non-zero balance.
func EmptyRoot() ledger.State {
	return ledger.State(defaultHashes[0])
}
