package module

import (
	"time"
)

type CacheMetrics interface {
	// CacheEntries report the total number of cached items
	CacheEntries(resource string, entries uint)
	// CacheHit report the number of times the queried item is found in the cache
	CacheHit(resource string)
	// CacheNotFound records the number of times the queried item was not found in either cache or database.
	CacheNotFound(resource string)
	// CacheMiss report the number of times the queried item is not found in the cache, but found in the database.
	CacheMiss(resource string)
}

// LedgerMetrics reports on the state tree and the block ledger.
type LedgerMetrics interface {
	// TransactionAppended counts a transaction appended to the pending log, by kind.
	TransactionAppended(kind string)

	// PendingTransactions reports the number of transactions waiting for a block.
	PendingTransactions(count uint64)

	// BlockClosed reports a sealed block with its number of transactions and
	// the time spent building and persisting it.
	BlockClosed(txCount int, duration time.Duration)

	// InclusionProofGenerated reports the time spent proving a transaction
	// against the root of its block.
	InclusionProofGenerated(duration time.Duration)

	// StateRootComputed reports the size of a balance snapshot and the time
	// spent building its sparse tree.
	StateRootComputed(accounts int, duration time.Duration)

	// StateProofsGenerated reports a batch of state proofs.
	StateProofsGenerated(count int, duration time.Duration)
}

// AnchorMetrics reports on the submission of roots to the external ledger.
type AnchorMetrics interface {
	// AnchorAttempt counts one send of an anchor transaction.
	AnchorAttempt()

	// AnchorFeeBump counts a resubmission with increased fees.
	AnchorFeeBump()

	// AnchorSequenceConflict counts a send rejected for a stale nonce.
	AnchorSequenceConflict()

	// AnchorSubmitted reports the outcome of one submission and its total duration.
	AnchorSubmitted(outcome string, duration time.Duration)

	// AnchorsInFlight reports the number of submissions in progress.
	AnchorsInFlight(count int64)
}
