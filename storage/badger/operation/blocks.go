package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/h2registry/h2-registry/model/registry"
)

// InsertBlock inserts a block keyed by its id.
func InsertBlock(block *registry.Block) func(*badger.Txn) error {
	return insert(makePrefix(codeBlock, block.ID), block)
}

// UpdateBlock overwrites a stored block.
func UpdateBlock(block *registry.Block) func(*badger.Txn) error {
	return update(makePrefix(codeBlock, block.ID), block)
}

// RetrieveBlock retrieves a block by id.
func RetrieveBlock(blockID string, block *registry.Block) func(*badger.Txn) error {
	return retrieve(makePrefix(codeBlock, blockID), block)
}

// IndexBlockHeight indexes a block id by height. Each height is indexed once.
func IndexBlockHeight(height uint64, blockID string) func(*badger.Txn) error {
	return insert(makePrefix(codeHeightIndex, height), blockID)
}

// LookupBlockHeight retrieves the id of the block at the given height.
func LookupBlockHeight(height uint64, blockID *string) func(*badger.Txn) error {
	return retrieve(makePrefix(codeHeightIndex, height), blockID)
}

// InsertLatestHeight initializes the height of the latest block.
func InsertLatestHeight(height uint64) func(*badger.Txn) error {
	return insert(makePrefix(codeLatestHeight), height)
}

// UpdateLatestHeight moves the height of the latest block.
func UpdateLatestHeight(height uint64) func(*badger.Txn) error {
	return update(makePrefix(codeLatestHeight), height)
}

// RetrieveLatestHeight retrieves the height of the latest block.
func RetrieveLatestHeight(height *uint64) func(*badger.Txn) error {
	return retrieve(makePrefix(codeLatestHeight), height)
}

// IndexBlockTransactions stores the sequence numbers of the transactions of a
// block, in leaf order.
func IndexBlockTransactions(blockID string, seqs []uint64) func(*badger.Txn) error {
	return insert(makePrefix(codeBlockTransactions, blockID), seqs)
}

// LookupBlockTransactions retrieves the sequence numbers of the transactions
// of a block, in leaf order.
func LookupBlockTransactions(blockID string, seqs *[]uint64) func(*badger.Txn) error {
	return retrieve(makePrefix(codeBlockTransactions, blockID), seqs)
}
