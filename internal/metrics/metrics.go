// Package metrics registers the service's Prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service updates. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	PassagesUpserted  prometheus.Counter
	DocumentsIngested *prometheus.CounterVec
	Retrievals        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		PassagesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webrag_passages_upserted_total",
			Help: "Passages written to the vector store.",
		}),
		DocumentsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webrag_documents_ingested_total",
			Help: "Documents processed by ingestion, by outcome.",
		}, []string{"status"}),
		Retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webrag_retrievals_total",
			Help: "Retrievals served, by whether any context was found.",
		}, []string{"context_found"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webrag_operation_duration_seconds",
			Help:    "Latency of service operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PassagesUpserted,
		m.DocumentsIngested,
		m.Retrievals,
		m.OperationDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// PassageStored counts one successful upsert.
func (m *Metrics) PassageStored() {
	if m == nil {
		return
	}
	m.PassagesUpserted.Inc()
}

// DocumentDone counts one ingested document with its final status.
func (m *Metrics) DocumentDone(status string) {
	if m == nil {
		return
	}
	m.DocumentsIngested.WithLabelValues(status).Inc()
}

// Retrieved counts one retrieval.
func (m *Metrics) Retrieved(found bool) {
	if m == nil {
		return
	}
	m.Retrievals.WithLabelValues(strconv.FormatBool(found)).Inc()
}

// Since observes the time elapsed since start under op.
func (m *Metrics) Since(op string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
