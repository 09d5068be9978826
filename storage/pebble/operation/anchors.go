package operation

import (
	"github.com/cockroachdb/pebble"

	"github.com/h2registry/h2-registry/model/registry"
)

const (
	codeSchemaVersion byte = 0x01
	codeAnchorRecord  byte = 0x10
)

func anchorPrefix(kind registry.AnchorKind) []byte {
	key := make([]byte, 0, 2+len(kind))
	key = append(key, codeAnchorRecord)
	key = append(key, kind...)
	return append(key, '/')
}

func anchorKey(kind registry.AnchorKind, externalID string) []byte {
	return append(anchorPrefix(kind), externalID...)
}

// InsertSchemaVersion stores the version of the record encoding.
func InsertSchemaVersion(version uint16) func(pebble.Writer) error {
	return insert([]byte{codeSchemaVersion}, version)
}

// RetrieveSchemaVersion reads the version of the record encoding.
func RetrieveSchemaVersion(version *uint16) func(pebble.Reader) error {
	return retrieve([]byte{codeSchemaVersion}, version)
}

// InsertAnchorRecord stores a record keyed by kind and external id. An
// existing record under the same key is overwritten.
func InsertAnchorRecord(record *registry.AnchorRecord) func(pebble.Writer) error {
	return insert(anchorKey(record.Kind, record.ExternalID), record)
}

// RetrieveAnchorRecord reads the record of the given kind and external id.
func RetrieveAnchorRecord(kind registry.AnchorKind, externalID string, record *registry.AnchorRecord) func(pebble.Reader) error {
	return retrieve(anchorKey(kind, externalID), record)
}

// ExistsAnchorRecord checks whether a record is stored under the given key.
func ExistsAnchorRecord(kind registry.AnchorKind, externalID string, found *bool) func(pebble.Reader) error {
	return exists(anchorKey(kind, externalID), found)
}

// LookupAnchorRecords reads every record of the given kind in key order.
func LookupAnchorRecords(kind registry.AnchorKind, records *[]*registry.AnchorRecord) func(pebble.Reader) error {
	var current *registry.AnchorRecord
	create := func() interface{} {
		current = new(registry.AnchorRecord)
		return current
	}
	handle := func() error {
		*records = append(*records, current)
		return nil
	}
	return traverse(anchorPrefix(kind), create, handle)
}
