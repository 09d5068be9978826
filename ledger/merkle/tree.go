// Package merkle implements the binary Merkle tree committing to the ordered
// transaction hashes of a block.
//
// Each level pairs adjacent nodes left to right and hashes the concatenation
// of their lowercase hex strings, H(hex(left) || hex(right)), as ASCII. A level
// with an odd number of nodes pairs its last node with itself. The root of a single leaf is the leaf itself.
package merkle

import (
	"fmt"

	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// ConcatRule describes how a parent is computed. It is published next to
// every block.
const ConcatRule = "left||right, duplicate last if odd"

// Root returns the Merkle root of the leaves, in the given order.
// ErrEmptyTree is returned for an empty leaf list.
func Root(leaves []hash.Hash) (hash.Hash, error) {
	if len(leaves) == 0 {
		return hash.DummyHash, ErrEmptyTree
	}

	layer := make([]hash.Hash, len(leaves))
	copy(layer, leaves)
	for len(layer) > 1 {
		layer = nextLayer(layer)
	}
	return layer[0], nil
}

// nextLayer hashes the pairs of layer into the (reused) front of the slice.
func nextLayer(layer []hash.Hash) []hash.Hash {
	n := 0
	for i := 0; i < len(layer); i += 2 {
		left := layer[i]
		right := left
		if i+1 < len(layer) {
			right = layer[i+1]
		}
		layer[n] = hash.HashPair(left, right)
		n++
	}
	return layer[:n]
}

// Height returns the number of pairing rounds of a tree over n leaves,
// which is also the number of steps of each of its inclusion proofs.
func Height(n int) int {
	h := 0
	for n > 1 {
		n = (n + 1) / 2
		h++
	}
	return h
}

// IndexOf returns the index of the first occurrence of target, -1 if absent.
func IndexOf(leaves []hash.Hash, target hash.Hash) int {
	for i, l := range leaves {
		if l == target {
			return i
		}
	}
	return -1
}

// Prove returns the inclusion proof of the leaf at index.
func Prove(leaves []hash.Hash, index int) (*InclusionProof, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d): %w", index, len(leaves), ErrLeafNotFound)
	}

	proof := &InclusionProof{
		Index:     index,
		LeafCount: len(leaves),
		Steps:     make([]Step, 0, Height(len(leaves))),
	}

	layer := make([]hash.Hash, len(leaves))
	copy(layer, leaves)
	idx := index
	for len(layer) > 1 {
		var step Step
		if idx%2 == 0 {
			// accumulated node is the left operand, odd tail pairs with itself
			step.IsRight = true
			step.Sibling = layer[idx]
			if idx+1 < len(layer) {
				step.Sibling = layer[idx+1]
			}
		} else {
			step.Sibling = layer[idx-1]
		}
		proof.Steps = append(proof.Steps, step)

		layer = nextLayer(layer)
		idx /= 2
	}
	return proof, nil
}

// ProveLeaf returns the inclusion proof of the first occurrence of target.
// ErrLeafNotFound is returned if target is not a leaf.
func ProveLeaf(leaves []hash.Hash, target hash.Hash) (*InclusionProof, error) {
	idx := IndexOf(leaves, target)
	if idx < 0 {
		return nil, fmt.Errorf("could not prove %x: %w", target, ErrLeafNotFound)
	}
	return Prove(leaves, idx)
}
