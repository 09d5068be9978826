package metrics

import (
	"time"

	"github.com/h2registry/h2-registry/module"
)

type NoopCollector struct{}

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

var _ module.CacheMetrics = (*NoopCollector)(nil)
var _ module.LedgerMetrics = (*NoopCollector)(nil)
var _ module.AnchorMetrics = (*NoopCollector)(nil)

func (nc *NoopCollector) CacheEntries(resource string, entries uint)             {}
func (nc *NoopCollector) CacheHit(resource string)                               {}
func (nc *NoopCollector) CacheNotFound(resource string)                          {}
func (nc *NoopCollector) CacheMiss(resource string)                              {}
func (nc *NoopCollector) TransactionAppended(kind string)                        {}
func (nc *NoopCollector) PendingTransactions(count uint64)                       {}
func (nc *NoopCollector) BlockClosed(txCount int, duration time.Duration)        {}
func (nc *NoopCollector) InclusionProofGenerated(duration time.Duration)         {}
func (nc *NoopCollector) StateRootComputed(accounts int, duration time.Duration) {}
func (nc *NoopCollector) StateProofsGenerated(count int, duration time.Duration) {}
func (nc *NoopCollector) AnchorAttempt()                                         {}
func (nc *NoopCollector) AnchorFeeBump()                                         {}
func (nc *NoopCollector) AnchorSequenceConflict()                                {}
func (nc *NoopCollector) AnchorSubmitted(outcome string, duration time.Duration) {}
func (nc *NoopCollector) AnchorsInFlight(count int64)                            {}
