package pebble

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/storage"
	"github.com/h2registry/h2-registry/storage/pebble/operation"
)

// AnchorRecords stores the receipts of anchored roots in a pebble database.
type AnchorRecords struct {
	db *pebble.DB
	// pebble has no read-write transactions, the lock makes the existence
	// check and the insert of Store atomic
	mu sync.Mutex
}

var _ storage.AnchorRecords = (*AnchorRecords)(nil)

func NewAnchorRecords(db *pebble.DB) *AnchorRecords {
	return &AnchorRecords{
		db: db,
	}
}

func (a *AnchorRecords) Store(record *registry.AnchorRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var found bool
	err := operation.ExistsAnchorRecord(record.Kind, record.ExternalID, &found)(a.db)
	if err != nil {
		return fmt.Errorf("could not check anchor record: %w", err)
	}
	if found {
		return fmt.Errorf("%s anchor %s: %w", record.Kind, record.ExternalID, storage.ErrAlreadyExists)
	}

	batch := a.db.NewBatch()
	defer batch.Close()
	err = operation.InsertAnchorRecord(record)(batch)
	if err != nil {
		return fmt.Errorf("could not add anchor record to batch: %w", err)
	}
	err = batch.Commit(pebble.Sync)
	if err != nil {
		return fmt.Errorf("could not store anchor record: %w", err)
	}
	return nil
}

func (a *AnchorRecords) ByExternalID(kind registry.AnchorKind, externalID string) (*registry.AnchorRecord, error) {
	var record registry.AnchorRecord
	err := operation.RetrieveAnchorRecord(kind, externalID, &record)(a.db)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve %s anchor %s: %w", kind, externalID, err)
	}
	return &record, nil
}

func (a *AnchorRecords) All() ([]*registry.AnchorRecord, error) {
	var records []*registry.AnchorRecord
	for _, kind := range []registry.AnchorKind{registry.AnchorKindBlock, registry.AnchorKindState} {
		err := operation.LookupAnchorRecords(kind, &records)(a.db)
		if err != nil {
			return nil, fmt.Errorf("could not retrieve %s anchors: %w", kind, err)
		}
	}
	return records, nil
}
