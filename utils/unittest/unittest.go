package unittest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/require"
)

// RequireReturnsBefore requires that f returns before the duration expires.
func RequireReturnsBefore(t testing.TB, f func(), duration time.Duration) {
	done := make(chan struct{})
	go func() {
		f()
		close(done)
	}()

	select {
	case <-time.After(duration):
		require.Fail(t, "function did not return in time")
	case <-done:
	}
}

// TempDir creates a directory that is removed by the caller.
func TempDir(t testing.TB) string {
	dir, err := os.MkdirTemp("", "h2-registry-testing-temp-")
	require.NoError(t, err)
	return dir
}

func RunWithTempDir(t testing.TB, f func(string)) {
	dir := TempDir(t)
	defer os.RemoveAll(dir)
	f(dir)
}

// BadgerDB opens a ledger database in dir with badger logging turned off.
func BadgerDB(t testing.TB, dir string) *badger.DB {
	opts := badger.
		DefaultOptions(dir).
		WithKeepL0InMemory(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	return db
}

func RunWithBadgerDB(t testing.TB, f func(*badger.DB)) {
	RunWithTempDir(t, func(dir string) {
		db := BadgerDB(t, dir)
		defer db.Close()
		f(db)
	})
}

// PebbleDB opens an anchor record database in dir.
func PebbleDB(t testing.TB, dir string) *pebble.DB {
	db, err := pebble.Open(dir, &pebble.Options{})
	require.NoError(t, err)
	return db
}

func RunWithPebbleDB(t testing.TB, f func(*pebble.DB)) {
	RunWithTempDir(t, func(dir string) {
		db := PebbleDB(t, dir)
		defer db.Close()
		f(db)
	})
}

// RunWithDatabases runs f with a ledger database and an anchor record
// database laid out the way the registry tool keeps them, side by side in
// one data directory.
func RunWithDatabases(t testing.TB, f func(ledgerDB *badger.DB, anchorDB *pebble.DB)) {
	RunWithTempDir(t, func(dir string) {
		ledgerDB := BadgerDB(t, filepath.Join(dir, "ledger"))
		defer ledgerDB.Close()
		anchorDB := PebbleDB(t, filepath.Join(dir, "anchors"))
		defer anchorDB.Close()
		f(ledgerDB, anchorDB)
	})
}
