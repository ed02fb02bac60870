// Package metrics holds the Prometheus collectors and the structured metric
// handler registry.
//
// Registers:
//
//	#energylink_submissions_total{regulation,outcome}
//	#energylink_submission_attempts{regulation}
//	#energylink_submission_duration_seconds{regulation}
//	#energylink_price_fetch_total{symbol,outcome}
//	#energylink_price_served_total{source}
//	#energylink_audit_entries
//	#energylink_orders_total{exchange,outcome}
//	#energylink_component_metric{component,name}
//	#go_* and process_* system metrics
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"energylink/logger"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	submissions        *prometheus.CounterVec
	submissionAttempts *prometheus.HistogramVec
	submissionDuration *prometheus.HistogramVec
	priceFetches       *prometheus.CounterVec
	pricesServed       *prometheus.CounterVec
	auditEntries       prometheus.Gauge
	orders             *prometheus.CounterVec
	componentMetrics   *prometheus.GaugeVec
)

func initCollectors() {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		submissions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energylink_submissions_total",
				Help: "Regulatory submissions by terminal outcome",
			},
			[]string{"regulation", "outcome"},
		)
		submissionAttempts = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "energylink_submission_attempts",
				Help:    "Network attempts used per regulatory submission",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"regulation"},
		)
		submissionDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "energylink_submission_duration_seconds",
				Help:    "Wall time from first attempt to terminal outcome",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"regulation"},
		)
		priceFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energylink_price_fetch_total",
				Help: "Market data fetch attempts by outcome",
			},
			[]string{"symbol", "outcome"},
		)
		pricesServed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energylink_price_served_total",
				Help: "Current price requests by source (live, cache, unavailable)",
			},
			[]string{"source"},
		)
		auditEntries = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "energylink_audit_entries",
			Help: "Entries currently held in the audit log",
		})
		orders = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energylink_orders_total",
				Help: "Orders routed by exchange and outcome",
			},
			[]string{"exchange", "outcome"},
		)

		componentMetrics = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "energylink_component_metric",
				Help: "Latest value (gauges) or running total (counters) of metrics emitted by components",
			},
			[]string{"component", "name"},
		)

		registry.MustRegister(
			submissions,
			submissionAttempts,
			submissionDuration,
			priceFetches,
			pricesServed,
			auditEntries,
			orders,
			componentMetrics,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Registry returns the process registry, creating the collectors on first use.
func Registry() *prometheus.Registry {
	initCollectors()
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

// RecordSubmission counts one terminal submission outcome.
func RecordSubmission(regulation, outcome string, attempts int, elapsed time.Duration) {
	initCollectors()
	submissions.WithLabelValues(regulation, outcome).Inc()
	if attempts > 0 {
		submissionAttempts.WithLabelValues(regulation).Observe(float64(attempts))
		submissionDuration.WithLabelValues(regulation).Observe(elapsed.Seconds())
	}
	EmitMetric(nil, "compliance", "submission_attempts", attempts, "gauge", logger.Fields{
		"regulation":  regulation,
		"outcome":     outcome,
		"duration_ms": elapsed.Milliseconds(),
	})
}

func RecordPriceFetch(symbol string, ok bool) {
	initCollectors()
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	priceFetches.WithLabelValues(symbol, outcome).Inc()
	EmitMetric(nil, "marketdata", "price_fetch_"+outcome, 1, "counter", logger.Fields{"symbol": symbol})
}

// RecordPriceServed counts GetCurrentPrice answers by source.
func RecordPriceServed(source string) {
	initCollectors()
	pricesServed.WithLabelValues(source).Inc()
}

func SetAuditEntries(n int) {
	initCollectors()
	auditEntries.Set(float64(n))
}

func RecordOrder(exchange, outcome string) {
	initCollectors()
	orders.WithLabelValues(exchange, outcome).Inc()
	EmitMetric(nil, "routing", "orders_"+outcome, 1, "counter", logger.Fields{"exchange": exchange})
}
