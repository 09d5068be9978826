package badger_test

import (
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2registry/h2-registry/storage"
	bstorage "github.com/h2registry/h2-registry/storage/badger"
	"github.com/h2registry/h2-registry/utils/unittest"
)

func TestTransactions(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		store := bstorage.NewTransactions(db)

		expected := unittest.TransactionFixture()
		err := store.Append(expected)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), expected.Seq)

		actual, err := store.BySeq(expected.Seq)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)

		actual, err = store.ByHash(expected.Hash)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)

		_, err = store.ByHash(unittest.HashFixture())
		require.ErrorIs(t, err, storage.ErrNotFound)

		_, err = store.BySeq(42)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestTransactionsDuplicateHash(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		store := bstorage.NewTransactions(db)

		first := unittest.TransactionFixture()
		second := *first
		second.ID = "second"

		require.NoError(t, store.Append(first))
		require.NoError(t, store.Append(&second))
		assert.Equal(t, uint64(2), second.Seq)

		actual, err := store.ByHash(first.Hash)
		require.NoError(t, err)
		assert.Equal(t, first.ID, actual.ID)

		count, err := store.PendingCount()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), count)
	})
}

func TestTransactionsPendingOrder(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		store := bstorage.NewTransactions(db)

		txs := unittest.TransactionsFixture(5)
		// append out of creation order
		for _, i := range []int{3, 0, 4, 1, 2} {
			require.NoError(t, store.Append(txs[i]))
		}

		pending, err := store.Pending()
		require.NoError(t, err)
		require.Len(t, pending, len(txs))
		for i, tx := range pending {
			assert.Equal(t, txs[i].Hash, tx.Hash)
		}
	})
}

func TestTransactionsRejectSealed(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		store := bstorage.NewTransactions(db)

		tx := unittest.TransactionFixture()
		tx.BlockID = "block"
		err := store.Append(tx)
		require.ErrorIs(t, err, storage.ErrDataMismatch)
	})
}
