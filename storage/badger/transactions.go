package badger

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/storage"
	"github.com/h2registry/h2-registry/storage/badger/operation"
)

// Transactions implements the append-only transaction log.
type Transactions struct {
	db *badger.DB
}

var _ storage.Transactions = (*Transactions)(nil)

func NewTransactions(db *badger.DB) *Transactions {
	t := Transactions{
		db: db,
	}
	return &t
}

// Append assigns the next sequence number to tx and stores it as pending.
func (t *Transactions) Append(tx *registry.Transaction) error {
	if !tx.Pending() {
		return fmt.Errorf("could not append transaction %s sealed in block %s: %w", tx.ID, tx.BlockID, storage.ErrDataMismatch)
	}

	var seq uint64
	err := operation.RetryOnConflict(t.db.Update, func(btx *badger.Txn) error {
		return appendTransaction(btx, tx, &seq)
	})
	if err != nil {
		return fmt.Errorf("could not append transaction: %w", err)
	}
	tx.Seq = seq
	return nil
}

// appendTransaction stores tx under the next sequence number, within an
// existing badger transaction. tx is not modified.
func appendTransaction(btx *badger.Txn, tx *registry.Transaction, seq *uint64) error {
	err := operation.NextSeq(seq)(btx)
	if err != nil {
		return fmt.Errorf("could not assign sequence number: %w", err)
	}

	stored := *tx
	stored.Seq = *seq

	err = operation.InsertTransaction(&stored)(btx)
	if err != nil {
		return fmt.Errorf("could not insert transaction: %w", err)
	}
	err = operation.IndexTransactionHash(stored.Hash, stored.Seq)(btx)
	if err != nil {
		return fmt.Errorf("could not index transaction hash: %w", err)
	}
	err = operation.IndexPending(&stored)(btx)
	if err != nil {
		return fmt.Errorf("could not index pending transaction: %w", err)
	}
	return nil
}

func (t *Transactions) BySeq(seq uint64) (*registry.Transaction, error) {
	var tx registry.Transaction
	err := t.db.View(operation.RetrieveTransaction(seq, &tx))
	if err != nil {
		return nil, fmt.Errorf("could not retrieve transaction %d: %w", seq, err)
	}
	return normalize(&tx), nil
}

func (t *Transactions) ByHash(txHash hash.Hash) (*registry.Transaction, error) {
	var tx registry.Transaction
	err := t.db.View(func(btx *badger.Txn) error {
		var seqs []uint64
		err := operation.LookupTransactionHash(txHash, &seqs)(btx)
		if err != nil {
			return fmt.Errorf("could not look up transaction hash: %w", err)
		}
		if len(seqs) == 0 {
			return storage.ErrNotFound
		}
		return operation.RetrieveTransaction(seqs[0], &tx)(btx)
	})
	if err != nil {
		return nil, fmt.Errorf("could not retrieve transaction %s: %w", txHash, err)
	}
	return normalize(&tx), nil
}

func (t *Transactions) Pending() ([]*registry.Transaction, error) {
	var txs []*registry.Transaction
	err := t.db.View(func(btx *badger.Txn) error {
		var seqs []uint64
		err := operation.LookupPending(&seqs)(btx)
		if err != nil {
			return fmt.Errorf("could not look up pending transactions: %w", err)
		}
		return operation.RetrieveTransactions(seqs, &txs)(btx)
	})
	if err != nil {
		return nil, fmt.Errorf("could not retrieve pending transactions: %w", err)
	}
	for _, tx := range txs {
		normalize(tx)
	}
	return txs, nil
}

func (t *Transactions) PendingCount() (uint64, error) {
	var count uint64
	err := t.db.View(operation.CountPending(&count))
	if err != nil {
		return 0, fmt.Errorf("could not count pending transactions: %w", err)
	}
	return count, nil
}

// sealTransactions marks every transaction as sealed in blockID and removes
// it from the pending index. It returns the sequence numbers of txs.
func sealTransactions(btx *badger.Txn, blockID string, txs []*registry.Transaction) ([]uint64, error) {
	seqs := make([]uint64, 0, len(txs))
	for _, tx := range txs {
		var stored registry.Transaction
		err := operation.RetrieveTransaction(tx.Seq, &stored)(btx)
		if err != nil {
			return nil, fmt.Errorf("could not retrieve transaction %d: %w", tx.Seq, err)
		}
		if stored.Hash != tx.Hash {
			return nil, fmt.Errorf("transaction %d has hash %s, expected %s: %w", tx.Seq, stored.Hash, tx.Hash, storage.ErrDataMismatch)
		}
		if !stored.Pending() {
			return nil, fmt.Errorf("transaction %d already sealed in block %s: %w", tx.Seq, stored.BlockID, storage.ErrDataMismatch)
		}

		err = operation.RemovePending(&stored)(btx)
		if err != nil {
			return nil, fmt.Errorf("could not remove transaction %d from pending index: %w", tx.Seq, err)
		}
		stored.BlockID = blockID
		err = operation.UpdateTransaction(&stored)(btx)
		if err != nil {
			return nil, fmt.Errorf("could not seal transaction %d: %w", tx.Seq, err)
		}
		seqs = append(seqs, tx.Seq)
	}
	return seqs, nil
}

// normalize restores the UTC location of decoded timestamps.
func normalize(tx *registry.Transaction) *registry.Transaction {
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx
}

