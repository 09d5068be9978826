package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AnchorCollector implements metric collection for the anchor submitter.
type AnchorCollector struct {
	attempts  prometheus.Counter
	feeBumps  prometheus.Counter
	conflicts prometheus.Counter
	outcomes  *prometheus.CounterVec
	duration  prometheus.Histogram
	inFlight  prometheus.Gauge
}

func NewAnchorCollector(registerer prometheus.Registerer) *AnchorCollector {
	attempts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespaceAnchor,
		Subsystem: subsystemSubmitter,
		Name:      "attempts_total",
		Help:      "the number of anchor transactions sent to the external ledger",
	})
	feeBumps := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespaceAnchor,
		Subsystem: subsystemSubmitter,
		Name:      "fee_bumps_total",
		Help:      "the number of resubmissions with increased fees after an underpriced rejection",
	})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespaceAnchor,
		Subsystem: subsystemSubmitter,
		Name:      "sequence_conflicts_total",
		Help:      "the number of sends rejected because the nonce was already used",
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespaceAnchor,
		Subsystem: subsystemSubmitter,
		Name:      "submissions_total",
		Help:      "the number of finished submissions, by outcome",
	}, []string{LabelOutcome})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespaceAnchor,
		Subsystem: subsystemSubmitter,
		Name:      "submission_seconds",
		Help:      "the time spent on one submission, retries included",
		Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
	})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespaceAnchor,
		Subsystem: subsystemSubmitter,
		Name:      "in_flight",
		Help:      "the number of submissions in progress",
	})
	registerer.MustRegister(attempts, feeBumps, conflicts, outcomes, duration, inFlight)

	return &AnchorCollector{
		attempts:  attempts,
		feeBumps:  feeBumps,
		conflicts: conflicts,
		outcomes:  outcomes,
		duration:  duration,
		inFlight:  inFlight,
	}
}

func (ac *AnchorCollector) AnchorAttempt() {
	ac.attempts.Inc()
}

func (ac *AnchorCollector) AnchorFeeBump() {
	ac.feeBumps.Inc()
}

func (ac *AnchorCollector) AnchorSequenceConflict() {
	ac.conflicts.Inc()
}

func (ac *AnchorCollector) AnchorSubmitted(outcome string, duration time.Duration) {
	ac.outcomes.With(prometheus.Labels{LabelOutcome: outcome}).Inc()
	ac.duration.Observe(duration.Seconds())
}

func (ac *AnchorCollector) AnchorsInFlight(count int64) {
	ac.inFlight.Set(float64(count))
}
