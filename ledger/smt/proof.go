package smt

import (
	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/bitutils"
	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// Step is one level of a proof. IsLeft reports whether the proven node (not
// the sibling) is the left child at that level.
type Step struct {
	Sibling hash.Hash
	IsLeft  bool
}

// Proof is the ordered list of steps from the leaf (depth 256) up to the
// root. A well-formed proof has exactly Depth steps.
type Proof []Step

// Verify checks that the balance of key folds, through proof, into root.
// The leaf is re-derived from balance and must match leaf. Every step's
// direction must agree with the bits of key, so a proof can not be replayed
// for another key holding the same balance.
//
// Verify never fails: a malformed proof is reported as false.
func Verify(key ledger.Key, balance ledger.Balance, leaf hash.Hash, proof Proof, root ledger.State) bool {
	if len(proof) != Depth {
		return false
	}
	if balance.LeafHash() != leaf {
		return false
	}

	cur := leaf
	for i, step := range proof {
		bit := Depth - 1 - i
		isLeft := bitutils.ReadBit(key[:], bit) == 0
		if step.IsLeft != isLeft {
			return false
		}
		if step.IsLeft {
			cur = hash.HashInterNode(cur, step.Sibling)
		} else {
			cur = hash.HashInterNode(step.Sibling, cur)
		}
	}
	return ledger.State(cur) == root
}

// CompactStep is a proof step whose sibling is not the default hash of its
// level. Depth numbers the steps from the leaf, 1 for the step next to the
// leaf up to 256 for the step below the root, so the sibling of a step sits
// at tree depth 257-Depth.
type CompactStep struct {
	Depth   int
	Sibling hash.Hash
	IsLeft  bool
}

// CompactProof holds the non-default steps of a proof, ordered from the leaf
// up to the root (increasing Depth).
type CompactProof []CompactStep

// SkippedDefaults returns the number of steps omitted from the full proof.
func (c CompactProof) SkippedDefaults() int {
	return Depth - len(c)
}

// siblingDepth returns the tree depth of the sibling of the step labelled
// label.
func siblingDepth(label int) int {
	return Depth + 1 - label
}

// Compress drops every step whose sibling equals the default hash of its
// level. Steps are kept in proof order and labelled with their position.
func Compress(proof Proof) CompactProof {
	compact := make(CompactProof, 0)
	for i, step := range proof {
		label := i + 1
		if label > Depth {
			break
		}
		if step.Sibling == defaultHashes[siblingDepth(label)] {
			continue
		}
		compact = append(compact, CompactStep{
			Depth:   label,
			Sibling: step.Sibling,
			IsLeft:  step.IsLeft,
		})
	}
	return compact
}

// Expand re-inserts the default siblings dropped by Compress. The direction
// of the re-inserted steps is read from key. Expand is the inverse of
// Compress for proofs of key.
//
// A ValidationError is returned if a label is out of range or the steps are
// not in strictly increasing label order.
func Expand(key ledger.Key, compact CompactProof) (Proof, error) {
	proof := make(Proof, Depth)
	for i := range proof {
		d := siblingDepth(i + 1)
		proof[i] = Step{
			Sibling: defaultHashes[d],
			IsLeft:  bitutils.ReadBit(key[:], d-1) == 0,
		}
	}

	last := 0
	for _, step := range compact {
		if step.Depth < 1 || step.Depth > Depth {
			return nil, ledger.NewValidationErrorf("compact proof step depth %d out of range [1, %d]", step.Depth, Depth)
		}
		if step.Depth <= last {
			return nil, ledger.NewValidationErrorf("compact proof steps not in increasing depth order (%d after %d)", step.Depth, last)
		}
		last = step.Depth
		proof[step.Depth-1] = Step{
			Sibling: step.Sibling,
			IsLeft:  step.IsLeft,
		}
	}
	return proof, nil
}
