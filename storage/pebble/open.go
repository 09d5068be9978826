package pebble

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/hashicorp/go-multierror"

	"github.com/h2registry/h2-registry/storage"
	"github.com/h2registry/h2-registry/storage/pebble/operation"
)

// SchemaVersion is the version of the anchor record encoding. A database
// written with another version is refused.
const SchemaVersion uint16 = 1

// ErrSchemaMismatch is returned when opening a database written with another
// version of the record encoding.
var ErrSchemaMismatch = errors.New("anchor database schema mismatch")

// NewAnchorRecordsWithPath opens the anchor database in dir and returns the
// record store on top of it. A new database is initialized with the current
// schema version. If the database has another schema version it is closed
// and ErrSchemaMismatch is returned.
func NewAnchorRecordsWithPath(dir string) (*AnchorRecords, *pebble.DB, error) {
	db, err := OpenAnchorPebbleDB(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize pebble db: %w", err)
	}
	err = checkSchema(db)
	if err != nil {
		// closing the db if the schema can not be used
		dbErr := db.Close()
		if dbErr != nil {
			err = multierror.Append(err, fmt.Errorf("failed to close db: %w", dbErr))
		}
		return nil, nil, fmt.Errorf("failed to initialize anchor records: %w", err)
	}
	return NewAnchorRecords(db), db, nil
}

// OpenAnchorPebbleDB opens the database
func OpenAnchorPebbleDB(dir string) (*pebble.DB, error) {
	cache := pebble.NewCache(1 << 20)
	defer cache.Unref()
	opts := &pebble.Options{
		Cache:                 cache,
		FormatMajorVersion:    pebble.FormatNewest,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 1000,
		MaxOpenFiles:          64,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	return db, nil
}

func checkSchema(db *pebble.DB) error {
	var version uint16
	err := operation.RetrieveSchemaVersion(&version)(db)
	if errors.Is(err, storage.ErrNotFound) {
		batch := db.NewBatch()
		defer batch.Close()
		err = operation.InsertSchemaVersion(SchemaVersion)(batch)
		if err != nil {
			return fmt.Errorf("could not add schema version to batch: %w", err)
		}
		err = batch.Commit(pebble.Sync)
		if err != nil {
			return fmt.Errorf("could not store schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("database has schema version %d, expected %d: %w", version, SchemaVersion, ErrSchemaMismatch)
	}
	return nil
}
