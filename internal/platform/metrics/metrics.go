// Package metrics owns the prometheus collectors of the counter backend.
// All recording methods are nil-safe so components can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	queries       *prometheus.CounterVec
	refreshes     prometheus.Counter
	counterValue  prometheus.Gauge
	queryDuration *prometheus.HistogramVec
	connects      *prometheus.CounterVec
	submits       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "counter_reader_queries_total",
			Help: "Read-only contract queries by function and outcome.",
		}, []string{"function", "outcome"}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "counter_reader_refreshes_total",
			Help: "State refresh cycles started.",
		}),
		counterValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "counter_reader_value",
			Help: "Last decoded counter value (float approximation).",
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "counter_stacks_request_duration_seconds",
			Help:    "Latency of read-only endpoint requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"function"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "counter_wallet_connect_total",
			Help: "Wallet connect attempts by capability source and outcome.",
		}, []string{"source", "outcome"}),
		submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "counter_wallet_submit_total",
			Help: "Contract call submissions by function and outcome.",
		}, []string{"function", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queries, m.refreshes, m.counterValue, m.queryDuration, m.connects, m.submits,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveQuery(function, outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(function, outcome).Inc()
}

func (m *Metrics) ObserveQueryDuration(function string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(function).Observe(d.Seconds())
}

func (m *Metrics) ObserveRefresh() {
	if m == nil {
		return
	}
	m.refreshes.Inc()
}

func (m *Metrics) SetCounterValue(v float64) {
	if m == nil {
		return
	}
	m.counterValue.Set(v)
}

func (m *Metrics) ObserveConnect(source, outcome string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveSubmit(function, outcome string) {
	if m == nil {
		return
	}
	m.submits.WithLabelValues(function, outcome).Inc()
}
