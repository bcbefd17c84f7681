// Package metrics exposes ingest counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	BatchesAccepted prometheus.Counter
	BatchesRejected prometheus.Counter
	RowsPersisted   prometheus.Counter
	ReindexRuns     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		BatchesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avr_ingest_batches_accepted_total",
			Help: "Batches that passed validation and were persisted.",
		}),
		BatchesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avr_ingest_batches_rejected_total",
			Help: "Batches aborted by validation or persistence failure.",
		}),
		RowsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avr_ingest_rows_persisted_total",
			Help: "Antibody records created through the ingest pipeline.",
		}),
		ReindexRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avr_reindex_runs_total",
			Help: "Full search index rebuilds.",
		}),
	}
	registry.MustRegister(m.BatchesAccepted, m.BatchesRejected, m.RowsPersisted, m.ReindexRuns)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
