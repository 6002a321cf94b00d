package syncer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments of the sync loop.
type Metrics struct {
	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	LastUpdate    prometheus.Gauge
	Statements    prometheus.Gauge
}

// NewMetrics registers the sync instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ontowatch_sync_cycles_total",
			Help: "Sync cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ontowatch_sync_cycle_duration_seconds",
			Help:    "Duration of sync cycles",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		LastUpdate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ontowatch_last_update_timestamp_seconds",
			Help: "Unix time of the last committed ontology update",
		}),
		Statements: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ontowatch_snapshot_statements",
			Help: "Statements in the last fetched snapshot",
		}),
	}
}

// observe records a finished cycle. A nil receiver records nothing.
func (m *Metrics) observe(o Outcome, elapsed time.Duration, statements int) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(o.Kind.String()).Inc()
	m.CycleDuration.Observe(elapsed.Seconds())
	if statements > 0 {
		m.Statements.Set(float64(statements))
	}
	if o.Kind == Updated {
		m.LastUpdate.SetToCurrentTime()
	}
}
