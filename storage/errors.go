package storage

import (
	"errors"
)

var (
	// ErrNotFound is returned for a missing transaction, block or anchor
	// record. Stores translate the database specific not found errors of
	// badger and pebble into it.
	ErrNotFound = errors.New("key not found")

	// ErrAlreadyExists is returned when a write-once entry is written twice,
	// e.g. a second anchor attached to a block.
	ErrAlreadyExists = errors.New("key already exists")

	// ErrDataMismatch is returned when a write contradicts stored data, e.g.
	// sealing a transaction that is already sealed in another block.
	ErrDataMismatch = errors.New("data for key is different")
)
