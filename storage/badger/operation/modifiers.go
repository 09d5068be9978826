package operation

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"
)

// maxConflictRetries bounds how often a write is replayed after badger
// reports a conflict with a concurrent transaction.
const maxConflictRetries = 32

// RetryOnConflict runs op through action, replaying it while badger reports
// a transaction conflict. After maxConflictRetries replays the conflict is
// returned wrapped.
func RetryOnConflict(action func(func(*badger.Txn) error) error, op func(tx *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		err = action(op)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("write still conflicting after %d retries: %w", maxConflictRetries, err)
}
