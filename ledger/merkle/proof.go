package merkle

import (
	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// Step is one level of an inclusion proof. IsRight reports whether the
// sibling sits to the right of the accumulated node, i.e. the accumulated
// node is the left operand of the pair hash.
type Step struct {
	Sibling hash.Hash
	IsRight bool
}

// InclusionProof captures the path of one leaf up to the root, ordered from
// the leaf upward.
type InclusionProof struct {
	// Index of the proven leaf in the ordered leaf list
	Index int
	// LeafCount is the number of leaves of the tree. Zero means unknown, in
	// which case the shape of the proof is not checked against the index.
	LeafCount int
	Steps     []Step
}

// Fold computes the root implied by leaf and the proof steps.
func (p *InclusionProof) Fold(leaf hash.Hash) hash.Hash {
	cur := leaf
	for _, step := range p.Steps {
		if step.IsRight {
			cur = hash.HashPair(cur, step.Sibling)
		} else {
			cur = hash.HashPair(step.Sibling, cur)
		}
	}
	return cur
}

// Check verifies the proof of leaf against root. It returns a
// MalformedProofError if the proof shape is inconsistent with its index and
// leaf count, and an InvalidProofError if it does not fold into root.
func (p *InclusionProof) Check(leaf hash.Hash, root hash.Hash) error {
	if p == nil {
		return NewMalformedProofErrorf("proof is nil")
	}
	if p.LeafCount > 0 {
		if p.Index < 0 || p.Index >= p.LeafCount {
			return NewMalformedProofErrorf("index %d out of range [0, %d)", p.Index, p.LeafCount)
		}
		if expected := Height(p.LeafCount); len(p.Steps) != expected {
			return NewMalformedProofErrorf("expected %d steps for %d leaves, got %d", expected, p.LeafCount, len(p.Steps))
		}
		idx := p.Index
		for i, step := range p.Steps {
			if step.IsRight != (idx%2 == 0) {
				return NewMalformedProofErrorf("step %d direction does not match index %d", i, p.Index)
			}
			idx /= 2
		}
	}

	if computed := p.Fold(leaf); computed != root {
		return NewInvalidProofErrorf("root hash mismatch: computed %s, expected %s", computed, root)
	}
	return nil
}

// Verify reports whether the proof of leaf folds into root.
// It never fails: malformed proofs are reported as false.
func Verify(leaf hash.Hash, proof *InclusionProof, root hash.Hash) bool {
	return proof.Check(leaf, root) == nil
}
