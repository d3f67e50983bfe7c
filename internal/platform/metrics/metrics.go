package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters and gauges of a clustering run.
type Metrics struct {
	RecordsRead      *prometheus.CounterVec
	CodingsExtracted *prometheus.CounterVec
	CodingsDropped   *prometheus.CounterVec
	Observations     prometheus.Counter
	UnknownSystems   prometheus.Gauge
	MissingConcepts  prometheus.Gauge
	Clusters         prometheus.Gauge
	KnownCodes       prometheus.Gauge
	PassDuration     *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates the run metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		RecordsRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coderecon",
				Subsystem: "source",
				Name:      "records_total",
				Help:      "Records read, by origin and category",
			},
			[]string{"origin", "category"},
		),
		CodingsExtracted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coderecon",
				Subsystem: "extract",
				Name:      "codings_total",
				Help:      "Codings extracted, by origin",
			},
			[]string{"origin"},
		),
		CodingsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "coderecon",
				Subsystem: "extract",
				Name:      "codings_dropped_total",
				Help:      "Malformed or unresolvable codings dropped, by origin",
			},
			[]string{"origin"},
		),
		Observations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coderecon",
			Subsystem: "cluster",
			Name:      "observations_total",
			Help:      "Coding observations fed to the clusterer",
		}),
		UnknownSystems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coderecon",
			Subsystem: "vocabulary",
			Name:      "unknown_systems",
			Help:      "Distinct unrecognized coding systems seen",
		}),
		MissingConcepts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coderecon",
			Subsystem: "vocabulary",
			Name:      "missing_concepts",
			Help:      "Distinct concept ids not found in any concept table",
		}),
		Clusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coderecon",
			Subsystem: "cluster",
			Name:      "clusters",
			Help:      "Synonym clusters after the last pass",
		}),
		KnownCodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coderecon",
			Subsystem: "cluster",
			Name:      "codes",
			Help:      "Distinct code identifiers after the last pass",
		}),
		PassDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "coderecon",
				Subsystem: "pipeline",
				Name:      "pass_duration_seconds",
				Help:      "Duration of each pipeline pass",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pass"},
		),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.RecordsRead,
		m.CodingsExtracted,
		m.CodingsDropped,
		m.Observations,
		m.UnknownSystems,
		m.MissingConcepts,
		m.Clusters,
		m.KnownCodes,
		m.PassDuration,
	)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
