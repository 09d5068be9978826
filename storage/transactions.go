package storage

import (
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/model/registry"
)

// Transactions represents the persistent, append-only transaction log.
type Transactions interface {

	// Append assigns the next sequence number to tx, and stores it as
	// pending. tx.Seq is set on success.
	Append(tx *registry.Transaction) error

	// BySeq returns the transaction with the given sequence number.
	// Returns ErrNotFound if the sequence number is unknown.
	BySeq(seq uint64) (*registry.Transaction, error)

	// ByHash returns the first appended transaction with the given hash.
	// Returns ErrNotFound if no transaction has that hash.
	ByHash(txHash hash.Hash) (*registry.Transaction, error)

	// Pending returns the transactions not sealed in a block, ordered by
	// creation time, then by sequence number.
	Pending() ([]*registry.Transaction, error)

	// PendingCount returns the number of pending transactions.
	PendingCount() (uint64, error)
}
