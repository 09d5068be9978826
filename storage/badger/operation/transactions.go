package operation

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v2"

	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/storage"
)

// InsertTransaction inserts a transaction keyed by its sequence number.
func InsertTransaction(tx *registry.Transaction) func(*badger.Txn) error {
	return insert(makePrefix(codeTransaction, tx.Seq), tx)
}

// UpdateTransaction overwrites a stored transaction.
func UpdateTransaction(tx *registry.Transaction) func(*badger.Txn) error {
	return update(makePrefix(codeTransaction, tx.Seq), tx)
}

// RetrieveTransaction retrieves a transaction by sequence number.
func RetrieveTransaction(seq uint64, tx *registry.Transaction) func(*badger.Txn) error {
	return retrieve(makePrefix(codeTransaction, seq), tx)
}

// InsertLatestSeq initializes the sequence counter of the transaction log.
func InsertLatestSeq(seq uint64) func(*badger.Txn) error {
	return insert(makePrefix(codeLatestSeq), seq)
}

// UpdateLatestSeq moves the sequence counter of the transaction log.
func UpdateLatestSeq(seq uint64) func(*badger.Txn) error {
	return update(makePrefix(codeLatestSeq), seq)
}

// RetrieveLatestSeq retrieves the last assigned sequence number.
func RetrieveLatestSeq(seq *uint64) func(*badger.Txn) error {
	return retrieve(makePrefix(codeLatestSeq), seq)
}

// NextSeq increments the sequence counter and returns the new value in seq.
// The first assigned sequence number is 1.
func NextSeq(seq *uint64) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		var latest uint64
		err := RetrieveLatestSeq(&latest)(tx)
		if errors.Is(err, storage.ErrNotFound) {
			*seq = 1
			return InsertLatestSeq(*seq)(tx)
		}
		if err != nil {
			return fmt.Errorf("could not retrieve latest seq: %w", err)
		}
		*seq = latest + 1
		return UpdateLatestSeq(*seq)(tx)
	}
}

// IndexTransactionHash indexes the sequence number of a transaction by its
// hash. Several transactions may share a hash, the index keeps all of them.
func IndexTransactionHash(txHash hash.Hash, seq uint64) func(*badger.Txn) error {
	return insert(makePrefix(codeTxHashIndex, txHash, seq), seq)
}

// LookupTransactionHash retrieves the sequence numbers of all transactions
// with the given hash, in ascending order.
func LookupTransactionHash(txHash hash.Hash, seqs *[]uint64) func(*badger.Txn) error {
	return traverse(makePrefix(codeTxHashIndex, txHash), lookupSeqs(seqs))
}

func pendingKey(createdAt time.Time, seq uint64) []byte {
	return makePrefix(codePendingIndex, uint64(createdAt.UnixNano()), seq)
}

// IndexPending adds a transaction to the pending index.
func IndexPending(tx *registry.Transaction) func(*badger.Txn) error {
	return insert(pendingKey(tx.CreatedAt, tx.Seq), tx.Seq)
}

// RemovePending removes a transaction from the pending index.
func RemovePending(tx *registry.Transaction) func(*badger.Txn) error {
	return removeUnchecked(pendingKey(tx.CreatedAt, tx.Seq))
}

// LookupPending retrieves the sequence numbers of all pending transactions,
// ordered by creation time, then by sequence number.
func LookupPending(seqs *[]uint64) func(*badger.Txn) error {
	return traverse(makePrefix(codePendingIndex), lookupSeqs(seqs))
}

// CountPending counts the pending transactions.
func CountPending(count *uint64) func(*badger.Txn) error {
	return countPrefix(makePrefix(codePendingIndex), count)
}

// RetrieveTransactions retrieves the transactions with the given sequence
// numbers, in the same order.
func RetrieveTransactions(seqs []uint64, txs *[]*registry.Transaction) func(*badger.Txn) error {
	return func(btx *badger.Txn) error {
		*txs = make([]*registry.Transaction, 0, len(seqs))
		for _, seq := range seqs {
			var tx registry.Transaction
			err := RetrieveTransaction(seq, &tx)(btx)
			if err != nil {
				return fmt.Errorf("could not retrieve transaction %d: %w", seq, err)
			}
			*txs = append(*txs, &tx)
		}
		return nil
	}
}
