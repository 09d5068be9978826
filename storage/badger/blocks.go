package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/module"
	"github.com/h2registry/h2-registry/module/metrics"
	"github.com/h2registry/h2-registry/storage"
	"github.com/h2registry/h2-registry/storage/badger/operation"
)

// Blocks implements the block store of the ledger chain around a badger DB.
// Blocks are cached by id.
type Blocks struct {
	db    *badger.DB
	cache *Cache[string, registry.Block]
}

var _ storage.Blocks = (*Blocks)(nil)

func NewBlocks(collector module.CacheMetrics, db *badger.DB, cacheSize uint) *Blocks {
	retrieve := func(blockID string) (registry.Block, error) {
		var block registry.Block
		err := db.View(operation.RetrieveBlock(blockID, &block))
		block.CreatedAt = block.CreatedAt.UTC()
		return block, err
	}

	b := &Blocks{
		db: db,
		cache: newCache[string, registry.Block](collector,
			withLimit[string, registry.Block](cacheSize),
			withRetrieve(retrieve),
			withResource[string, registry.Block](metrics.ResourceBlock)),
	}
	return b
}

// Seal stores the block and seals txs into it atomically. The block height
// must follow the latest stored block, the first block has height 0.
func (b *Blocks) Seal(block *registry.Block, txs []*registry.Transaction) error {
	if uint64(len(txs)) != block.TxCount {
		return fmt.Errorf("block %s counts %d transactions but %d were given: %w", block.ID, block.TxCount, len(txs), storage.ErrDataMismatch)
	}

	err := operation.RetryOnConflict(b.db.Update, func(tx *badger.Txn) error {
		var latest uint64
		err := operation.RetrieveLatestHeight(&latest)(tx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if block.Height != 0 {
				return fmt.Errorf("first block must have height 0, got %d: %w", block.Height, storage.ErrDataMismatch)
			}
			err = operation.InsertLatestHeight(block.Height)(tx)
		case err != nil:
			return fmt.Errorf("could not retrieve latest height: %w", err)
		default:
			if block.Height != latest+1 {
				if block.Height <= latest {
					return fmt.Errorf("height %d already has a block: %w", block.Height, storage.ErrAlreadyExists)
				}
				return fmt.Errorf("block height %d does not extend latest height %d: %w", block.Height, latest, storage.ErrDataMismatch)
			}
			err = operation.UpdateLatestHeight(block.Height)(tx)
		}
		if err != nil {
			return fmt.Errorf("could not update latest height: %w", err)
		}

		err = operation.InsertBlock(block)(tx)
		if err != nil {
			return fmt.Errorf("could not insert block: %w", err)
		}
		err = operation.IndexBlockHeight(block.Height, block.ID)(tx)
		if err != nil {
			return fmt.Errorf("could not index block height: %w", err)
		}

		seqs, err := sealTransactions(tx, block.ID, txs)
		if err != nil {
			return err
		}
		err = operation.IndexBlockTransactions(block.ID, seqs)(tx)
		if err != nil {
			return fmt.Errorf("could not index block transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not seal block %s: %w", block.ID, err)
	}

	b.cache.Insert(block.ID, *block)
	return nil
}

func (b *Blocks) ByID(blockID string) (*registry.Block, error) {
	block, err := b.cache.Get(blockID)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve block %s: %w", blockID, err)
	}
	return &block, nil
}

func (b *Blocks) ByHeight(height uint64) (*registry.Block, error) {
	var blockID string
	err := b.db.View(operation.LookupBlockHeight(height, &blockID))
	if err != nil {
		return nil, fmt.Errorf("could not look up block at height %d: %w", height, err)
	}
	return b.ByID(blockID)
}

func (b *Blocks) Latest() (*registry.Block, error) {
	var height uint64
	err := b.db.View(operation.RetrieveLatestHeight(&height))
	if err != nil {
		return nil, fmt.Errorf("could not retrieve latest height: %w", err)
	}
	return b.ByHeight(height)
}

func (b *Blocks) Transactions(blockID string) ([]*registry.Transaction, error) {
	var txs []*registry.Transaction
	err := b.db.View(func(tx *badger.Txn) error {
		var seqs []uint64
		err := operation.LookupBlockTransactions(blockID, &seqs)(tx)
		if err != nil {
			return fmt.Errorf("could not look up transactions: %w", err)
		}
		return operation.RetrieveTransactions(seqs, &txs)(tx)
	})
	if err != nil {
		return nil, fmt.Errorf("could not retrieve transactions of block %s: %w", blockID, err)
	}
	for _, tx := range txs {
		normalize(tx)
	}
	return txs, nil
}

// AttachAnchor sets the anchor reference of a block once, and appends the
// optional transaction to the pending log in the same database transaction.
func (b *Blocks) AttachAnchor(blockID string, anchorTx string, pending *registry.Transaction) error {
	if anchorTx == "" {
		return fmt.Errorf("empty anchor reference for block %s", blockID)
	}

	var block registry.Block
	var seq uint64
	err := operation.RetryOnConflict(b.db.Update, func(tx *badger.Txn) error {
		err := operation.RetrieveBlock(blockID, &block)(tx)
		if err != nil {
			return fmt.Errorf("could not retrieve block: %w", err)
		}
		if block.Anchored() {
			return fmt.Errorf("block already anchored by %s: %w", block.AnchorTx, storage.ErrAlreadyExists)
		}
		block.AnchorTx = anchorTx
		err = operation.UpdateBlock(&block)(tx)
		if err != nil {
			return fmt.Errorf("could not update block: %w", err)
		}

		if pending == nil {
			return nil
		}
		return appendTransaction(tx, pending, &seq)
	})
	if err != nil {
		return fmt.Errorf("could not attach anchor to block %s: %w", blockID, err)
	}

	block.CreatedAt = block.CreatedAt.UTC()
	b.cache.Insert(blockID, block)
	if pending != nil {
		pending.Seq = seq
	}
	return nil
}
