package common

import (
	"github.com/cockroachdb/pebble"
	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog/log"

	"github.com/h2registry/h2-registry/ledger/chain"
	"github.com/h2registry/h2-registry/module"
	bstorage "github.com/h2registry/h2-registry/storage/badger"
	pstorage "github.com/h2registry/h2-registry/storage/pebble"
)

// InitStorage opens the ledger database in datadir.
func InitStorage(datadir string) *badger.DB {
	if datadir == "" {
		log.Fatal().Msg("missing --data-dir")
	}
	opts := badger.
		DefaultOptions(datadir).
		WithKeepL0InMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal().Err(err).Str("data_dir", datadir).Msg("could not open ledger database")
	}
	return db
}

// InitLedger returns the block ledger on top of db.
func InitLedger(db *badger.DB, cache module.CacheMetrics, collector module.LedgerMetrics) *chain.Ledger {
	storages := bstorage.InitAllBadger(cache, db)
	l, err := chain.NewLedger(log.Logger, collector, storages.Transactions, storages.Blocks)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize ledger")
	}
	return l
}

// InitAnchorRecords opens the anchor record database in dir.
func InitAnchorRecords(dir string) (*pstorage.AnchorRecords, *pebble.DB) {
	if dir == "" {
		log.Fatal().Msg("missing --anchor-dir")
	}
	records, db, err := pstorage.NewAnchorRecordsWithPath(dir)
	if err != nil {
		log.Fatal().Err(err).Str("anchor_dir", dir).Msg("could not open anchor database")
	}
	return records, db
}
