package badger

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/h2registry/h2-registry/module"
	"github.com/h2registry/h2-registry/storage"
)

// DefaultBlockCacheSize is the number of blocks cached by id.
const DefaultBlockCacheSize = 1000

// InitAllBadger returns the transaction log and block stores on top of db.
// Anchor records live in a separate pebble database and are left unset.
func InitAllBadger(metrics module.CacheMetrics, db *badger.DB) *storage.All {
	return &storage.All{
		Transactions: NewTransactions(db),
		Blocks:       NewBlocks(metrics, db, DefaultBlockCacheSize),
	}
}
