// Package metrics turns view, store and HTTP events into Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanpama/mongoview/internal/eventbus"
	"github.com/hanpama/mongoview/internal/events"
)

const namespace = "mongoview"

type Metrics struct {
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runDocuments  *prometheus.CounterVec
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	requests      *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of view runs",
			},
			[]string{"view", "mode", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "View run latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"view", "mode"},
		),
		runDocuments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "run_documents_total",
				Help:      "Total number of view documents written",
			},
			[]string{"view", "mode"},
		),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_queries_total",
				Help:      "Total number of store calls",
			},
			[]string{"collection", "op", "outcome"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_query_duration_seconds",
				Help:      "Store call latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of trigger requests",
			},
			[]string{"route", "status"},
		),
	}
}

// Register adds every collector to r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.runs, m.runDuration, m.runDocuments, m.queries, m.queryDuration, m.requests} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe attaches m to the global event bus.
func (m *Metrics) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.RunFinish) {
			m.runs.WithLabelValues(e.View, e.Mode, outcome(e.Err)).Inc()
			m.runDuration.WithLabelValues(e.View, e.Mode).Observe(e.Duration.Seconds())
			m.runDocuments.WithLabelValues(e.View, e.Mode).Add(float64(e.Documents))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.QueryFinish) {
			m.queries.WithLabelValues(e.Collection, e.Op, outcome(e.Err)).Inc()
			m.queryDuration.WithLabelValues(e.Op).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			m.requests.WithLabelValues(e.Route, strconv.Itoa(e.Status)).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
