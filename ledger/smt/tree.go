package smt

import (
	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/bitutils"
	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// level maps the position of every materialized node at one depth to its hash.
// A position at depth d is the key of any leaf below the node with all bits
// at index >= d cleared. Positions missing from the map resolve to the
// default hash of that depth.
type level map[ledger.Key]hash.Hash

// Tree is an immutable sparse Merkle tree built from one balance snapshot.
//
// DEFINITIONS and CONVENTIONS:
//   - DEPTH of a node is the number of edges between the root and the node.
//     The root has depth 0, leaves have depth 256.
//   - the node at depth d on the path to key k is the left child of its
//     parent iff bit d-1 of k is 0 (bit 0 is the most significant bit).
//   - only keys with a non-zero balance are materialized.
//
// A Tree keeps all materialized levels, so any number of proofs can be read
// from one build. Trees are safe for concurrent reads.
type Tree struct {
	levels   [Depth + 1]level
	balances map[ledger.Key]ledger.Balance
	root     ledger.State
}

// NewTree builds the tree committing to the given balances.
// Zero balances are equivalent to absent keys and do not change the root.
func NewTree(balances map[ledger.Key]ledger.Balance) *Tree {
	t := &Tree{
		balances: make(map[ledger.Key]ledger.Balance, len(balances)),
	}

	leaves := make(level, len(balances))
	for k, b := range balances {
		if b == 0 {
			continue
		}
		t.balances[k] = b
		leaves[k] = b.LeafHash()
	}
	t.levels[Depth] = leaves

	for d := Depth; d > 0; d-- {
		t.levels[d-1] = foldLevel(t.levels[d], d)
	}

	t.root = rootOf(t.levels[0])
	return t
}

// BuildRoot computes the state root of the given balances without keeping
// the intermediate levels.
func BuildRoot(balances map[ledger.Key]ledger.Balance) ledger.State {
	cur := make(level, len(balances))
	for k, b := range balances {
		if b == 0 {
			continue
		}
		cur[k] = b.LeafHash()
	}
	for d := Depth; d > 0; d-- {
		cur = foldLevel(cur, d)
	}
	return rootOf(cur)
}

// foldLevel combines every node at depth d with its sibling (materialized,
// or the default hash of depth d) and returns the parents at depth d-1.
func foldLevel(cur level, d int) level {
	parents := make(level, len(cur))
	bit := d - 1
	for pos, h := range cur {
		parent := pos
		bitutils.ClearBit(parent[:], bit)
		if _, done := parents[parent]; done {
			continue
		}

		sibling := pos
		bitutils.FlipBit(sibling[:], bit)
		siblingHash, ok := cur[sibling]
		if !ok {
			siblingHash = defaultHashes[d]
		}

		if bitutils.ReadBit(pos[:], bit) == 0 {
			parents[parent] = hash.HashInterNode(h, siblingHash)
		} else {
			parents[parent] = hash.HashInterNode(siblingHash, h)
		}
	}
	return parents
}

func rootOf(top level) ledger.State {
	var zero ledger.Key
	if h, ok := top[zero]; ok {
		return ledger.State(h)
	}
	return EmptyRoot()
}

// Root returns the state root of the tree.
func (t *Tree) Root() ledger.State {
	return t.root
}

// Balance returns the balance stored under key, 0 for absent keys.
func (t *Tree) Balance(key ledger.Key) ledger.Balance {
	return t.balances[key]
}

// Size returns the number of keys holding a non-zero balance.
func (t *Tree) Size() int {
	return len(t.balances)
}

// Prove returns the leaf hash of key and its 256 step proof, ordered from the
// leaf up to the root. Proving an absent key is a proof of a zero balance.
func (t *Tree) Prove(key ledger.Key) (hash.Hash, Proof) {
	proof := make(Proof, Depth)
	for d := Depth; d > 0; d-- {
		bit := d - 1
		// a node at depth d is addressed by the first d bits of the key
		pos := key
		bitutils.KeepPrefix(pos[:], d)
		sibling := pos
		bitutils.FlipBit(sibling[:], bit)
		siblingHash, ok := t.levels[d][sibling]
		if !ok {
			siblingHash = defaultHashes[d]
		}
		proof[Depth-d] = Step{
			Sibling: siblingHash,
			IsLeft:  bitutils.ReadBit(pos[:], bit) == 0,
		}
	}
	return t.Balance(key).LeafHash(), proof
}

// Prove builds the tree of balances and proves key against it.
func Prove(balances map[ledger.Key]ledger.Balance, key ledger.Key) (hash.Hash, Proof, ledger.State) {
	t := NewTree(balances)
	leaf, proof := t.Prove(key)
	return leaf, proof, t.Root()
}
