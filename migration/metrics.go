package migration

import "github.com/prometheus/client_golang/prometheus"

// executorMetrics instruments migration execution. All methods are safe
// on a nil receiver so the executor never has to check whether metrics
// were configured.
type executorMetrics struct {
	applied    *prometheus.CounterVec
	rolledBack *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newExecutorMetrics(reg prometheus.Registerer) *executorMetrics {
	const namespace = "docshift"

	m := &executorMetrics{
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "applied_total",
			Help:      "Number of migration units applied.",
		}, nil),
		rolledBack: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "rolled_back_total",
			Help:      "Number of migration units rolled back.",
		}, nil),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "failures_total",
			Help:      "Number of migration units that failed.",
		}, []string{"direction"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "migration",
			Name:      "unit_duration_seconds",
			Help:      "Wall time spent executing a single migration unit.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"direction"}),
	}

	reg.MustRegister(m.applied, m.rolledBack, m.failures, m.duration)
	return m
}

func (m *executorMetrics) Applied(seconds float64) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues().Inc()
	m.duration.WithLabelValues("up").Observe(seconds)
}

func (m *executorMetrics) RolledBack(seconds float64) {
	if m == nil {
		return
	}
	m.rolledBack.WithLabelValues().Inc()
	m.duration.WithLabelValues("down").Observe(seconds)
}

func (m *executorMetrics) Failed(direction string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(direction).Inc()
}
