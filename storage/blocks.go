package storage

import (
	"github.com/h2registry/h2-registry/model/registry"
)

// Blocks represents persistent storage for the blocks of the ledger chain.
type Blocks interface {

	// Seal stores a new block and seals the given transactions into it, in
	// one database transaction: the block, its height index, the latest
	// height, the leaf order of the block, and the block id of every
	// transaction. The transactions must be pending, in leaf order.
	// Error returns:
	//   - ErrAlreadyExists if the block id or its height is already stored
	//   - ErrDataMismatch if a transaction is already sealed
	Seal(block *registry.Block, txs []*registry.Transaction) error

	// ByID returns the block with the given id.
	// Returns ErrNotFound if the block is unknown.
	ByID(blockID string) (*registry.Block, error)

	// ByHeight returns the block at the given height.
	// Returns ErrNotFound if no block has that height.
	ByHeight(height uint64) (*registry.Block, error)

	// Latest returns the block with the greatest height.
	// Returns ErrNotFound if no block was sealed yet.
	Latest() (*registry.Block, error)

	// Transactions returns the transactions of a block, in leaf order.
	// Returns ErrNotFound if the block is unknown.
	Transactions(blockID string) ([]*registry.Transaction, error)

	// AttachAnchor sets the anchor reference of a block, and appends the
	// given transaction to the pending log in the same database transaction.
	// The transaction may be nil.
	// Error returns:
	//   - ErrNotFound if the block is unknown
	//   - ErrAlreadyExists if the block is already anchored
	AttachAnchor(blockID string, anchorTx string, tx *registry.Transaction) error
}
