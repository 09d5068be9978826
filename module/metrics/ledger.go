package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerCollector implements module.LedgerMetrics.
type LedgerCollector struct {
	txAppended        *prometheus.CounterVec
	pendingTxs        prometheus.Gauge
	blocksClosed      prometheus.Counter
	blockSize         prometheus.Histogram
	blockDuration     prometheus.Histogram
	inclusionDuration prometheus.Histogram
	stateAccounts     prometheus.Gauge
	stateDuration     prometheus.Histogram
	stateProofs       prometheus.Counter
	stateProofsTime   prometheus.Histogram
}

func NewLedgerCollector(registerer prometheus.Registerer) *LedgerCollector {
	lc := &LedgerCollector{
		txAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemChain,
			Name:      "transactions_appended_total",
			Help:      "the number of transactions appended to the pending log",
		}, []string{LabelKind}),
		pendingTxs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemChain,
			Name:      "pending_transactions",
			Help:      "the number of transactions waiting to be sealed in a block",
		}),
		blocksClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemChain,
			Name:      "blocks_closed_total",
			Help:      "the number of blocks sealed",
		}),
		blockSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemChain,
			Name:      "block_transactions",
			Help:      "the number of transactions per sealed block",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		blockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemChain,
			Name:      "close_block_seconds",
			Help:      "the time spent building and persisting a block",
			Buckets:   prometheus.DefBuckets,
		}),
		inclusionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemChain,
			Name:      "inclusion_proof_seconds",
			Help:      "the time spent proving a transaction against its block root",
			Buckets:   prometheus.DefBuckets,
		}),
		stateAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemState,
			Name:      "accounts",
			Help:      "the number of accounts in the last balance snapshot",
		}),
		stateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemState,
			Name:      "root_seconds",
			Help:      "the time spent building the sparse tree of a snapshot",
			Buckets:   prometheus.DefBuckets,
		}),
		stateProofs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemState,
			Name:      "proofs_total",
			Help:      "the number of state proofs generated",
		}),
		stateProofsTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemState,
			Name:      "proof_batch_seconds",
			Help:      "the time spent generating a batch of state proofs",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	registerer.MustRegister(
		lc.txAppended,
		lc.pendingTxs,
		lc.blocksClosed,
		lc.blockSize,
		lc.blockDuration,
		lc.inclusionDuration,
		lc.stateAccounts,
		lc.stateDuration,
		lc.stateProofs,
		lc.stateProofsTime,
	)
	return lc
}

func (lc *LedgerCollector) TransactionAppended(kind string) {
	lc.txAppended.With(prometheus.Labels{LabelKind: kind}).Inc()
}

func (lc *LedgerCollector) PendingTransactions(count uint64) {
	lc.pendingTxs.Set(float64(count))
}

func (lc *LedgerCollector) BlockClosed(txCount int, duration time.Duration) {
	lc.blocksClosed.Inc()
	lc.blockSize.Observe(float64(txCount))
	lc.blockDuration.Observe(duration.Seconds())
}

func (lc *LedgerCollector) InclusionProofGenerated(duration time.Duration) {
	lc.inclusionDuration.Observe(duration.Seconds())
}

func (lc *LedgerCollector) StateRootComputed(accounts int, duration time.Duration) {
	lc.stateAccounts.Set(float64(accounts))
	lc.stateDuration.Observe(duration.Seconds())
}

func (lc *LedgerCollector) StateProofsGenerated(count int, duration time.Duration) {
	lc.stateProofs.Add(float64(count))
	lc.stateProofsTime.Observe(duration.Seconds())
}
