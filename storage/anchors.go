package storage

import (
	"github.com/h2registry/h2-registry/model/registry"
)

// AnchorRecords represents persistent storage for the receipts of roots
// committed to the external ledger.
type AnchorRecords interface {

	// Store persists a record. Records are keyed by kind and external id.
	// Returns ErrAlreadyExists if a record with the same key is stored.
	Store(record *registry.AnchorRecord) error

	// ByExternalID returns the record of the given kind and external id.
	// Returns ErrNotFound if there is no such record.
	ByExternalID(kind registry.AnchorKind, externalID string) (*registry.AnchorRecord, error)

	// All returns every stored record ordered by kind, then external id.
	All() ([]*registry.AnchorRecord, error)
}
