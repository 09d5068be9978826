package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CacheCollector implements module.CacheMetrics.
type CacheCollector struct {
	entries   *prometheus.GaugeVec
	hits      *prometheus.CounterVec
	notFounds *prometheus.CounterVec
	misses    *prometheus.CounterVec
}

func NewCacheCollector(registerer prometheus.Registerer) *CacheCollector {
	cm := &CacheCollector{
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespaceCache,
			Name:      "entries_total",
			Help:      "the number of entries in the cache",
		}, []string{LabelResource}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceCache,
			Name:      "hits_total",
			Help:      "the number of hits for the cache",
		}, []string{LabelResource}),
		notFounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceCache,
			Name:      "notfound_total",
			Help:      "the number of times the queried item was not found in either cache or database",
		}, []string{LabelResource}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceCache,
			Name:      "misses_total",
			Help:      "the number of misses for the cache",
		}, []string{LabelResource}),
	}
	registerer.MustRegister(cm.entries, cm.hits, cm.notFounds, cm.misses)
	return cm
}

// CacheEntries records the size of the cache for the given resource.
func (cc *CacheCollector) CacheEntries(resource string, entries uint) {
	cc.entries.With(prometheus.Labels{LabelResource: resource}).Set(float64(entries))
}

// CacheHit records the number of hits in the cache for the given resource.
func (cc *CacheCollector) CacheHit(resource string) {
	cc.hits.With(prometheus.Labels{LabelResource: resource}).Inc()
}

// CacheNotFound records the number of times the queried item was not found in either cache
// or database.
func (cc *CacheCollector) CacheNotFound(resource string) {
	cc.notFounds.With(prometheus.Labels{LabelResource: resource}).Inc()
}

// CacheMiss records the number of items that were not found in the cache for the given resource.
func (cc *CacheCollector) CacheMiss(resource string) {
	cc.misses.With(prometheus.Labels{LabelResource: resource}).Inc()
}
