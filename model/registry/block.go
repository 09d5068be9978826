package registry

import (
	"time"

	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// Block seals an ordered batch of transactions under a Merkle root, and
// links to its predecessor through the chain hash.
//
// A block is immutable once created, except AnchorTx which may be set once.
type Block struct {
	ID string
	// Height is 0 for the genesis block and increments by one per block
	Height uint64
	// PrevHash is the merkle root of the previous block. It is meaningless
	// for the genesis block.
	PrevHash   hash.Hash
	MerkleRoot hash.Hash
	ChainHash  hash.Hash
	TxCount    uint64
	Note       string
	CreatedAt  time.Time
	// ExternalID is the decimal uint256 under which the block root is anchored
	ExternalID string
	// AnchorTx is the external transaction reference, empty until anchored
	AnchorTx string
}

// IsGenesis returns true for the first block of the chain.
func (b *Block) IsGenesis() bool {
	return b.Height == 0
}

// Anchored returns true if an external anchor reference is attached.
func (b *Block) Anchored() bool {
	return b.AnchorTx != ""
}

// Prev returns the previous merkle root, or nil for the genesis block.
func (b *Block) Prev() *hash.Hash {
	if b.IsGenesis() {
		return nil
	}
	prev := b.PrevHash
	return &prev
}

// ChainHash computes H(hex(prev) || hex(root)) over the hex strings, where
// prev is the empty string for the genesis block.
func ChainHash(prev *hash.Hash, root hash.Hash) hash.Hash {
	if prev == nil {
		return hash.SumHex(root)
	}
	return hash.SumHex(*prev, root)
}
