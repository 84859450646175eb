// Package metrics exposes ledger runtime metrics to Prometheus.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/router"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletsaga"

var durationBuckets = []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5}

// Metrics holds the ledger collectors on its own registry.
type Metrics struct {
	registry     *prometheus.Registry
	deliveries   *prometheus.CounterVec
	deliveryTime *prometheus.HistogramVec
	steps        *prometheus.CounterVec
	stepTime     *prometheus.HistogramVec
}

// New registers the collectors, plus process and Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_deliveries_total",
			Help:      "Routed event deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		deliveryTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "router_delivery_duration_seconds",
			Help:      "Time spent delivering one routed event to its reactors.",
			Buckets:   durationBuckets,
		}, []string{"event_type"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Workflow step attempts by step and result.",
		}, []string{"step", "result"}),
		stepTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Time spent running one workflow step attempt.",
			Buckets:   durationBuckets,
		}, []string{"step"}),
	}
}

// ObserveDelivery implements router.Observer.
func (m *Metrics) ObserveDelivery(eventType string, outcome router.Outcome, elapsed time.Duration) {
	m.deliveries.WithLabelValues(eventType, string(outcome)).Inc()
	m.deliveryTime.WithLabelValues(eventType).Observe(elapsed.Seconds())
}

// ObserveStep records one workflow step attempt.
func (m *Metrics) ObserveStep(step string, failed bool, elapsed time.Duration) {
	result := "ok"
	if failed {
		result = "failed"
	}
	m.steps.WithLabelValues(step, result).Inc()
	m.stepTime.WithLabelValues(step).Observe(elapsed.Seconds())
}

// WatchOutbox exports outbox backlog gauges read from store at scrape time.
func (m *Metrics) WatchOutbox(store storage.OutboxStore) {
	m.registry.MustRegister(&outboxCollector{
		store: store,
		backlog: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "outbox", "entries"),
			"Outbox entries by status.",
			[]string{"status"}, nil,
		),
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type outboxCollector struct {
	store   storage.OutboxStore
	backlog *prometheus.Desc
}

func (c *outboxCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.backlog
}

func (c *outboxCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	summary, err := c.store.GetOutboxSummary(ctx)
	if err != nil {
		log.Printf("metrics: outbox summary: %v", err)
		return
	}
	for status, count := range map[string]int{
		"pending":    summary.PendingCount,
		"processing": summary.ProcessingCount,
		"failed":     summary.FailedCount,
		"dead":       summary.DeadCount,
	} {
		ch <- prometheus.MustNewConstMetric(c.backlog, prometheus.GaugeValue, float64(count), status)
	}
}
