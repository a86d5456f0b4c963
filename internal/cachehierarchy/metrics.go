package cachehierarchy

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports cache hits/misses and bytes per cache type (spec.md §6
// Observability), grounded on the MetricSet pattern in other_examples'
// dcache package (CounterVec/GaugeVec keyed by a "cache" label).
type Metrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
	Bytes  *prometheus.GaugeVec
}

// NewMetrics registers the cache hierarchy's counters/gauges on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratadb",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by tier.",
		}, []string{"cache"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratadb",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by tier.",
		}, []string{"cache"}),
		Bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stratadb",
			Subsystem: "cache",
			Name:      "bytes",
			Help:      "Live entry bytes by tier; must equal the sum of live entry weights.",
		}, []string{"cache"}),
	}
	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Bytes)
	}
	return m
}

func (m *Metrics) hit(cache string) {
	if m != nil {
		m.Hits.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) miss(cache string) {
	if m != nil {
		m.Misses.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) setBytes(cache string, n int64) {
	if m != nil {
		m.Bytes.WithLabelValues(cache).Set(float64(n))
	}
}
