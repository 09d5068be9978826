package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/h2registry/h2-registry/module"
)

// Collectors groups the collectors of one process, registered on the same registerer.
type Collectors struct {
	Cache  module.CacheMetrics
	Ledger module.LedgerMetrics
	Anchor module.AnchorMetrics
}

// NewCollectors registers every collector on registerer.
func NewCollectors(registerer prometheus.Registerer) *Collectors {
	return &Collectors{
		Cache:  NewCacheCollector(registerer),
		Ledger: NewLedgerCollector(registerer),
		Anchor: NewAnchorCollector(registerer),
	}
}

// NewNoopCollectors returns collectors that discard every observation.
func NewNoopCollectors() *Collectors {
	noop := NewNoopCollector()
	return &Collectors{
		Cache:  noop,
		Ledger: noop,
		Anchor: noop,
	}
}
